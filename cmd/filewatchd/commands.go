package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/filewatchd/internal/domain"
	"github.com/eliteGoblin/filewatchd/internal/infra"
	"github.com/eliteGoblin/filewatchd/internal/policy"
	"github.com/eliteGoblin/filewatchd/internal/usecase"
)

func newSweepCmd() *cobra.Command {
	var (
		dryRun  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "sweep <directory>",
		Short: "Run one retention sweep immediately",
		Long: `Runs a single sweep in the foreground without waiting for the daemon's
next cycle. Expired regular files are deleted; use --dry-run to only list them.`,
		Args: requireDirectory,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := infra.ResolveWatchTargetFromCwd(args[0])
			if err != nil {
				return err
			}
			if err := infra.CheckDirectory(target); err != nil {
				return err
			}

			logger := infra.NewConsoleLogger(verbose)
			defer func() { _ = logger.Sync() }()

			fs := infra.NewFileSystem()
			var sweeper domain.Sweeper
			if dryRun {
				sweeper = usecase.NewDryRunSweeper(fs, infra.SystemClock{}, policy.Default(), logger)
			} else {
				sweeper = usecase.NewSweeper(fs, infra.SystemClock{}, policy.Default(), logger)
			}

			result := sweeper.Sweep(context.Background(), target)
			printSweepResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List expired files without deleting them")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func printSweepResult(out io.Writer, result domain.SweepResult) {
	action := "deleted"
	if result.DryRun {
		action = "would delete"
	}

	fmt.Fprintf(out, "\n=== Sweep %s ===\n", result.Target)

	if len(result.Deleted) > 0 || len(result.Errors) > 0 {
		tw := table.NewWriter()
		tw.SetStyle(table.StyleRounded)
		tw.AppendHeader(table.Row{"File", "Result"})
		for _, path := range result.Deleted {
			tw.AppendRow(table.Row{filepath.Base(path), action})
		}
		for _, e := range result.Errors {
			tw.AppendRow(table.Row{filepath.Base(e.Path), fmt.Sprintf("%s failed: %v", e.Op, e.Err)})
		}
		fmt.Fprintln(out, tw.Render())
	}

	if len(result.Deleted) == 0 && len(result.Errors) == 0 {
		fmt.Fprintln(out, "No expired files found.")
	}

	fmt.Fprintf(out, "Scanned: %d  Kept: %d  Skipped (not regular): %d\n",
		result.Scanned, result.Retained, result.Skipped)
	fmt.Fprintf(out, "Total: %d files %s (%s)\n",
		len(result.Deleted), action, humanize.Bytes(uint64(result.BytesReclaimed)))
	fmt.Fprintln(out, "================================")
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <directory>",
		Short: "Check whether a daemon is watching a directory",
		Args:  requireDirectory,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := infra.ResolveWatchTargetFromCwd(args[0])
			if err != nil {
				return err
			}

			return printStatus(cmd.OutOrStdout(), target, infra.NewFileRegistry())
		},
	}
}

func printStatus(out io.Writer, target domain.WatchTarget, registry domain.DaemonRegistry) error {
	fmt.Fprintln(out, "\n=== filewatchd Status ===")
	fmt.Fprintf(out, "Directory: %s\n", target)

	record, err := liveRecord(target, registry)
	if err != nil {
		return err
	}
	if record == nil {
		fmt.Fprintln(out, "Status: NOT RUNNING")
		fmt.Fprintf(out, "\nRun 'filewatchd %s' to start watching.\n", target)
		fmt.Fprintln(out, "=========================")
		return nil
	}

	fmt.Fprintln(out, "Status: RUNNING")
	fmt.Fprintf(out, "PID: %d\n", record.PID)
	fmt.Fprintf(out, "Started: %s\n", humanize.Time(record.StartedAt))
	if record.Mode != "" {
		fmt.Fprintf(out, "Execution mode: %s\n", record.Mode)
	}
	if record.AppVersion != "" {
		fmt.Fprintf(out, "Version: %s\n", record.AppVersion)
	}
	if record.Foreground {
		fmt.Fprintln(out, "Detached: no (foreground)")
	}
	fmt.Fprintf(out, "Log channel: %s\n", infra.ChannelName(target))
	fmt.Fprintf(out, "Policy: delete regular files older than %s, check every %s\n",
		policy.DefaultFileLifespan, policy.DefaultCheckInterval)
	fmt.Fprintln(out, "=========================")
	return nil
}

// liveRecord returns the record of the daemon holding the instance lock for
// target. Records without a lock holder are never trusted: their PID may
// have been reused by an unrelated process.
func liveRecord(target domain.WatchTarget, registry domain.DaemonRegistry) (*domain.DaemonRecord, error) {
	alive, err := registry.IsAlive(target)
	if err != nil || !alive {
		return nil, err
	}
	return registry.Lookup(target)
}

func newStopCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "stop <directory>",
		Short: "Terminate the daemon watching a directory",
		Args:  requireDirectory,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := infra.ResolveWatchTargetFromCwd(args[0])
			if err != nil {
				return err
			}

			pm := infra.NewProcessManager()
			registry := infra.NewFileRegistry()
			return stopDaemon(cmd.OutOrStdout(), target, registry, pm, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Send SIGKILL instead of SIGTERM")
	return cmd
}

func stopDaemon(out io.Writer, target domain.WatchTarget, registry domain.DaemonRegistry, pm domain.ProcessManager, force bool) error {
	record, err := liveRecord(target, registry)
	if err != nil {
		return err
	}
	if record == nil || !pm.IsRunning(record.PID) {
		fmt.Fprintf(out, "filewatchd is not running for %s\n", target)
		return nil
	}

	if force {
		err = pm.Kill(record.PID)
	} else {
		err = pm.Terminate(record.PID)
	}
	if err != nil {
		return fmt.Errorf("failed to stop pid %d: %w", record.PID, err)
	}

	fmt.Fprintf(out, "Stopped filewatchd (pid %d) for %s\n", record.PID, target)
	return nil
}

func newVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if jsonOutput {
				fmt.Fprintf(out, `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
					Version, Commit, BuildTime)
			} else {
				fmt.Fprintf(out, "filewatchd %s (commit: %s, built: %s)\n",
					Version, Commit, BuildTime)
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	return cmd
}
