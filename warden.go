package warden

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/diagnostics"
	"github.com/wardenhq/warden/internal/history"
	chsink "github.com/wardenhq/warden/internal/history/clickhouse"
	"github.com/wardenhq/warden/internal/logger"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/process"
	iapi "github.com/wardenhq/warden/internal/server"
	"github.com/wardenhq/warden/internal/store"
	"github.com/wardenhq/warden/internal/store/postgres"
	"github.com/wardenhq/warden/internal/store/sqlite"
	"github.com/wardenhq/warden/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type RestartPolicy = process.RestartPolicy

type Status = process.Status

type State = process.State

const (
	StateStopped     = process.StateStopped
	StateStarting    = process.StateStarting
	StateRunning     = process.StateRunning
	StateCrashed     = process.StateCrashed
	StateMemExceeded = process.StateMemExceeded
	StateRestarting  = process.StateRestarting
	StateStopping    = process.StateStopping
	StateFailed      = process.StateFailed
)

type CheckSpec = diagnostics.CheckSpec

type Rule = diagnostics.Rule

type Probe = diagnostics.Probe

type CheckResult = diagnostics.CheckResult

type CheckStatus = diagnostics.Status

const (
	StatusOK            = diagnostics.StatusOK
	StatusMissing       = diagnostics.StatusMissing
	StatusInvalidFormat = diagnostics.StatusInvalidFormat
	StatusProbeFailed   = diagnostics.StatusProbeFailed
	StatusProbeTimeout  = diagnostics.StatusProbeTimeout
)

type Report = diagnostics.Report

type Snapshot = diagnostics.Snapshot

type Store = store.Store

type HistorySink = history.Sink

type Config = cfg.Config

// Supervisor is a thin facade over internal/supervisor.Supervisor.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *supervisor.Supervisor }

type SupervisorOption = supervisor.Option

func WithLogger(l *slog.Logger) SupervisorOption { return supervisor.WithLogger(l) }
func WithStore(st Store) SupervisorOption        { return supervisor.WithStore(st) }
func WithHistorySinks(sinks ...HistorySink) SupervisorOption {
	return supervisor.WithHistorySinks(sinks...)
}
func WithMemoryInterval(d time.Duration) SupervisorOption {
	return supervisor.WithMemoryInterval(d)
}

func New(opts ...SupervisorOption) *Supervisor {
	return &Supervisor{inner: supervisor.New(opts...)}
}

func (s *Supervisor) SetGlobalEnv(kvs []string)       { s.inner.SetGlobalEnv(kvs) }
func (s *Supervisor) Register(spec Spec) error        { return s.inner.Register(spec) }
func (s *Supervisor) Start(name string) (bool, error) { return s.inner.Start(name) }
func (s *Supervisor) Stop(name string, wait time.Duration) error {
	return s.inner.Stop(name, wait)
}
func (s *Supervisor) Restart(name string, wait time.Duration) error {
	return s.inner.Restart(name, wait)
}
func (s *Supervisor) StartAll() error                     { return s.inner.StartAll() }
func (s *Supervisor) StopAll(wait time.Duration) error    { return s.inner.StopAll(wait) }
func (s *Supervisor) RestartAll(wait time.Duration) error { return s.inner.RestartAll(wait) }
func (s *Supervisor) Status(name string) (Status, error)  { return s.inner.Status(name) }
func (s *Supervisor) StatusAll() []Status                 { return s.inner.StatusAll() }
func (s *Supervisor) Shutdown(wait time.Duration)         { s.inner.Shutdown(wait) }

// Diagnostics facade

type Diagnostics struct{ inner *diagnostics.Runner }

// NewDiagnostics builds a diagnostics runner from check specs. Invalid
// specs are rejected here, before any probe fires.
func NewDiagnostics(log *slog.Logger, checks []CheckSpec, probeTimeout time.Duration) (*Diagnostics, error) {
	r, err := diagnostics.NewRunner(log, checks, probeTimeout)
	if err != nil {
		return nil, err
	}
	return &Diagnostics{inner: r}, nil
}

func (d *Diagnostics) Run(ctx context.Context, snap Snapshot) Report {
	return d.inner.Run(ctx, snap)
}

// RecordReport persists a diagnostics report to the store and streams it to
// history sinks. Either destination may be absent.
func RecordReport(ctx context.Context, rep Report, st Store, sinks ...HistorySink) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	if st != nil {
		rr := store.ReportRecord{AllOK: rep.AllOK, ReportJSON: string(b), GeneratedAt: rep.GeneratedAt}
		if err := st.SaveReport(ctx, rr); err != nil {
			return err
		}
	}
	evt := history.Event{Type: history.EventReport, OccurredAt: rep.GeneratedAt, ReportJSON: string(b)}
	var firstErr error
	for _, snk := range sinks {
		if err := snk.Send(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// NewLogger builds the default structured logger at the given level
// ("debug", "info", "warn", "error").
func NewLogger(level string) *slog.Logger { return logger.New(level) }

// Store constructors

func NewSQLiteStore(path string) (Store, error)  { return sqlite.New(path) }
func NewPostgresStore(dsn string) (Store, error) { return postgres.New(dsn) }

type ClickHouseOptions = chsink.Options

// NewClickHouseSink connects to ClickHouse and ensures the events table
// exists before returning the sink.
func NewClickHouseSink(ctx context.Context, opts ClickHouseOptions) (HistorySink, error) {
	s, err := chsink.New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// NewHTTPServer starts an HTTP server exposing the management API.
// diag and snapshot may be nil when diagnostics are not configured.
func NewHTTPServer(addr, basePath string, s *Supervisor, diag *Diagnostics, snapshot func() Snapshot) *http.Server {
	var runner *diagnostics.Runner
	if diag != nil {
		runner = diag.inner
	}
	r := iapi.NewRouter(s.inner, runner, snapshot, basePath)
	return iapi.NewServer(addr, r)
}

// Handler returns the management API as an http.Handler for embedding
// into an existing mux or framework.
func Handler(basePath string, s *Supervisor, diag *Diagnostics, snapshot func() Snapshot) http.Handler {
	var runner *diagnostics.Runner
	if diag != nil {
		runner = diag.inner
	}
	return iapi.NewRouter(s.inner, runner, snapshot, basePath).Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
