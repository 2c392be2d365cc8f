package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// ProcessFlags holds flags for process lifecycle commands.
type ProcessFlags struct {
	Name       string
	Wait       time.Duration
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	wardenCommand := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(wardenCommand),
		createStopCommand(wardenCommand),
		createRestartCommand(wardenCommand),
		createStatusCommand(wardenCommand),
		createCheckCommand(wardenCommand),
		createServeCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Process supervision and readiness diagnostics",
		Long: `Warden keeps a fleet of worker processes alive under a sliding-window
crash budget and verifies the credentials and endpoints they depend on.

Examples:
  warden serve --config=warden.toml      # Start the supervisor daemon
  warden status                          # All process statuses
  warden start --name=worker-a           # Start one process
  warden check --config=warden.toml      # Run readiness diagnostics`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")
	return root
}

func createStartCommand(wardenCommand command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start one or all registered processes",
		Long: `Start a registered process by name via the daemon API, or every
registered process when --name is omitted. Starting a process that is
already running is a no-op.

Examples:
  warden start                    # Start all
  warden start --name=worker-a
  warden start --name=worker-a --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return wardenCommand.Start(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "process name (all when omitted)")
	addAPIFlags(cmd, flags)
	return cmd
}

func createStopCommand(wardenCommand command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop one or all processes",
		Long: `Stop a supervised process, or every process when --name is omitted.
The supervisor will not restart a stopped process until an explicit start.

Examples:
  warden stop                     # Stop all
  warden stop --name=worker-a
  warden stop --name=worker-a --wait=5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return wardenCommand.Stop(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "process name (all when omitted)")
	cmd.Flags().DurationVar(&flags.Wait, "wait", 3*time.Second, "time to wait for graceful shutdown")
	addAPIFlags(cmd, flags)
	return cmd
}

func createRestartCommand(wardenCommand command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart one or all processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return wardenCommand.Restart(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "process name (all when omitted)")
	cmd.Flags().DurationVar(&flags.Wait, "wait", 3*time.Second, "time to wait for graceful shutdown")
	addAPIFlags(cmd, flags)
	return cmd
}

func createStatusCommand(wardenCommand command) *cobra.Command {
	flags := &ProcessFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show process status",
		Long: `Show the status of supervised processes.

Examples:
  warden status                     # All processes
  warden status --name=worker-a     # One process`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return wardenCommand.Status(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Name, "name", "", "process name (optional)")
	addAPIFlags(cmd, flags)
	return cmd
}

func createCheckCommand(wardenCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run readiness diagnostics",
		Long: `Run all configured readiness checks: static credential validation plus
live endpoint probes. Prints the full report as JSON and exits non-zero
when any check is not OK.

Examples:
  warden check --config=warden.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return wardenCommand.Check()
		},
	}
	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the warden daemon",
		Long: `Start the warden daemon: supervise all configured processes and expose
the management API.

Examples:
  warden serve --config=warden.toml
  warden serve warden.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return runServe(configPath)
		},
	}
	return cmd
}

func addAPIFlags(cmd *cobra.Command, flags *ProcessFlags) {
	cmd.Flags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
}
