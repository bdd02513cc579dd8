// Package main is the CLI entry point for filewatchd.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/filewatchd/internal/daemon"
	"github.com/eliteGoblin/filewatchd/internal/domain"
	"github.com/eliteGoblin/filewatchd/internal/infra"
	"github.com/eliteGoblin/filewatchd/internal/policy"
	"github.com/eliteGoblin/filewatchd/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

const usageText = `Not enough arguments.  Execute like this:
	filewatchd <directory_to_watch>
`

var errMissingDirectory = errors.New("missing directory to watch")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		foreground  bool
		metricsAddr string
	)

	rootCmd := &cobra.Command{
		Use:   "filewatchd <directory>",
		Short: "Delete files older than a day from a directory",
		Long: `filewatchd is a daemon that watches one directory and deletes every
regular file whose status has not changed for 24 hours. It checks once a
minute, never descends into subdirectories, and logs to syslog.`,
		Version:      Version,
		SilenceUsage: true,
		Args:         requireDirectory,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := infra.ResolveWatchTargetFromCwd(args[0])
			if err != nil {
				return err
			}
			if err := infra.CheckDirectory(target); err != nil {
				return fmt.Errorf("cannot watch %s: %w", target, err)
			}

			opts := daemon.Options{MetricsAddr: metricsAddr}
			if foreground {
				return runService(target, opts, true)
			}
			return runLaunch(cmd.OutOrStdout(), target, opts)
		},
	}
	rootCmd.Flags().BoolVar(&foreground, "foreground", false, "Run in the foreground without detaching (containers, supervisors)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9310)")

	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDaemonCmd())

	return rootCmd
}

// requireDirectory prints the usage text to stdout when the directory is missing.
func requireDirectory(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		fmt.Fprint(cmd.OutOrStdout(), usageText)
		return errMissingDirectory
	}
	if len(args) > 1 {
		return fmt.Errorf("expected one directory, got %d arguments", len(args))
	}
	return nil
}

// runLaunch starts the session stage and returns; the shell gets its prompt back.
func runLaunch(out io.Writer, target domain.WatchTarget, opts daemon.Options) error {
	detacher, err := daemon.NewDetacher()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "watching: %s\n", target)
	if err := detacher.Spawn(daemon.StageSession, target, opts); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return nil
}

// Hidden daemon command - used for self-exec when detaching
func newDaemonCmd() *cobra.Command {
	var (
		stage       string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:    "daemon",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := domain.WatchTarget(args[0])
			opts := daemon.Options{MetricsAddr: metricsAddr}

			switch daemon.Stage(stage) {
			case daemon.StageSession:
				daemon.IgnoreSessionSignals()
				detacher, err := daemon.NewDetacher()
				if err != nil {
					return err
				}
				return detacher.Spawn(daemon.StageService, target, opts)

			case daemon.StageService:
				daemon.IgnoreSessionSignals()
				return runService(target, opts, false)

			default:
				return fmt.Errorf("unknown stage: %s", stage)
			}
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "Detach stage (session/service)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics address")
	return cmd
}

// runService is the final stage: chdir into the target, open the log
// channel and sweep until the process is terminated.
func runService(target domain.WatchTarget, opts daemon.Options, foreground bool) error {
	if err := daemon.EnterService(target); err != nil {
		return err
	}

	logger := infra.NewDaemonLogger(target, foreground)
	defer func() { _ = logger.Sync() }()

	// Detached: no handler, SIGTERM keeps its default disposition.
	// Foreground: the process may be PID 1 in a container, where unhandled
	// SIGTERM is ignored, so cancel the loop instead.
	ctx := context.Background()
	if foreground {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	execMode := infra.DetectExecMode()
	registry := infra.NewFileRegistry()
	retention := policy.Default()
	sweeper := usecase.NewSweeper(infra.NewFileSystem(), infra.SystemClock{}, retention, logger)

	config := daemon.ServiceConfig{
		Target:      target,
		Scheduler:   daemon.SchedulerConfig{CheckInterval: retention.CheckInterval},
		MetricsAddr: opts.MetricsAddr,
		AppVersion:  Version,
		Mode:        string(execMode.Mode),
		Foreground:  foreground,
	}

	var metrics daemon.MetricsServer
	if opts.MetricsAddr != "" {
		metrics = infra.NewMetrics()
	}

	err := daemon.NewService(config, sweeper, registry, metrics, logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		logger.Error("filewatchd exiting", zap.Error(err))
	}
	return err
}
