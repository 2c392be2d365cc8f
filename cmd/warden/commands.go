package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardenhq/warden"
)

// command holds method-style handlers for the CLI subcommands.
type command struct {
	global *GlobalFlags
}

func (c command) apiClient(apiURL string, timeout time.Duration) (*APIClient, error) {
	client := NewAPIClient(apiURL, timeout)
	if !client.IsReachable() {
		return nil, fmt.Errorf("daemon not reachable - please start daemon first with 'warden serve'")
	}
	return client, nil
}

func (c command) Start(f ProcessFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	started, err := client.StartProcess(f.Name)
	if err != nil {
		return err
	}
	switch {
	case f.Name == "":
		fmt.Println("started all")
	case started:
		fmt.Printf("started %s\n", f.Name)
	default:
		fmt.Printf("%s already running\n", f.Name)
	}
	return nil
}

func (c command) Stop(f ProcessFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Wait <= 0 {
		f.Wait = 3 * time.Second
	}
	if err := client.StopProcess(f.Name, f.Wait); err != nil {
		return err
	}
	if f.Name == "" {
		fmt.Println("stopped all")
	} else {
		fmt.Printf("stopped %s\n", f.Name)
	}
	return nil
}

func (c command) Restart(f ProcessFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if f.Wait <= 0 {
		f.Wait = 3 * time.Second
	}
	if err := client.RestartProcess(f.Name, f.Wait); err != nil {
		return err
	}
	if f.Name == "" {
		fmt.Println("restarted all")
	} else {
		fmt.Printf("restarted %s\n", f.Name)
	}
	return nil
}

func (c command) Status(f ProcessFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	result, err := client.GetStatus(f.Name)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

// Check runs diagnostics locally from the config file: static credential
// validation plus live probes. Exits non-zero when any check is not OK.
func (c command) Check() error {
	if c.global.ConfigPath == "" {
		return fmt.Errorf("config file required for check command. Use --config=warden.toml")
	}
	cfg, err := warden.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if len(cfg.Checks) == 0 {
		return fmt.Errorf("no checks configured in %s", c.global.ConfigPath)
	}
	log := warden.NewLogger(cfg.LogLevel)
	diag, err := warden.NewDiagnostics(log, cfg.Checks, cfg.ProbeTimeout)
	if err != nil {
		return err
	}
	rep := diag.Run(context.Background(), cfg.Snapshot())
	printJSON(rep)
	if !rep.AllOK {
		bad := 0
		for _, r := range rep.Results {
			if r.Status != warden.StatusOK {
				bad++
			}
		}
		return fmt.Errorf("%d check(s) not ok", bad)
	}
	return nil
}

func runServe(configPath string) error {
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=warden.toml or provide as argument")
	}
	cfg, err := warden.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log := warden.NewLogger(cfg.LogLevel)

	if err := warden.RegisterMetricsDefault(); err != nil {
		fmt.Printf("Warning: failed to register metrics: %v\n", err)
	}

	opts := []warden.SupervisorOption{warden.WithLogger(log)}

	var st warden.Store
	if cfg.Store != nil {
		switch cfg.Store.Type {
		case "sqlite":
			st, err = warden.NewSQLiteStore(cfg.Store.Path)
		case "postgres":
			st, err = warden.NewPostgresStore(cfg.Store.DSN)
		case "":
			// no persistence
		default:
			return fmt.Errorf("unknown store type %q", cfg.Store.Type)
		}
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		if st != nil {
			if err := st.EnsureSchema(context.Background()); err != nil {
				return fmt.Errorf("failed to ensure store schema: %w", err)
			}
			opts = append(opts, warden.WithStore(st))
		}
	}

	var sinks []warden.HistorySink
	if cfg.History != nil && cfg.History.ClickHouseAddr != "" {
		sink, err := warden.NewClickHouseSink(context.Background(), warden.ClickHouseOptions{
			Addr:     cfg.History.ClickHouseAddr,
			Database: cfg.History.Database,
			Username: cfg.History.Username,
			Password: cfg.History.Password,
			Table:    cfg.History.Table,
		})
		if err != nil {
			return fmt.Errorf("failed to connect history sink: %w", err)
		}
		sinks = append(sinks, sink)
		opts = append(opts, warden.WithHistorySinks(sink))
	}

	sup := warden.New(opts...)
	sup.SetGlobalEnv(cfg.GlobalEnv)
	for _, spec := range cfg.Specs {
		if err := sup.Register(spec); err != nil {
			return fmt.Errorf("failed to register %s: %w", spec.Name, err)
		}
	}

	var diag *warden.Diagnostics
	if len(cfg.Checks) > 0 {
		diag, err = warden.NewDiagnostics(log, cfg.Checks, cfg.ProbeTimeout)
		if err != nil {
			return err
		}
	}

	// Gate automatic startup on readiness: processes stay stopped when a
	// dependency check fails, but remain startable through the API.
	startAll := true
	if diag != nil {
		rep := diag.Run(context.Background(), cfg.Snapshot())
		if err := warden.RecordReport(context.Background(), rep, st, sinks...); err != nil {
			fmt.Printf("Warning: failed to record diagnostics report: %v\n", err)
		}
		if !rep.AllOK {
			startAll = false
			fmt.Println("Warning: readiness diagnostics failed; skipping automatic process start")
		}
	}
	if startAll {
		if err := sup.StartAll(); err != nil {
			fmt.Printf("Warning: failed to start some processes: %v\n", err)
		}
	}

	listen := ":8080"
	basePath := "/api"
	if cfg.Server != nil {
		if cfg.Server.Listen != "" {
			listen = cfg.Server.Listen
		}
		if cfg.Server.BasePath != "" {
			basePath = cfg.Server.BasePath
		}
	}
	server := warden.NewHTTPServer(listen, basePath, sup, diag, cfg.Snapshot)
	fmt.Printf("Starting warden server on %s%s\n", listen, basePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	_ = server.Close()
	sup.Shutdown(3 * time.Second)
	if st != nil {
		_ = st.Close()
	}
	return nil
}
