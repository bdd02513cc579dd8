package domain

import (
	"context"
	"time"
)

// FileSystem is the view of the filesystem the sweeper works against.
type FileSystem interface {
	// ReadDir lists the direct entries of dir. Order is unspecified.
	ReadDir(dir string) ([]DirectoryEntry, error)

	// Stat returns metadata for path, following symlinks.
	Stat(path string) (FileMeta, error)

	// Remove deletes a single file.
	Remove(path string) error
}

// Clock returns the current wall-clock time.
type Clock interface {
	Now() time.Time
}

// Sweeper runs one retention pass over a watch target.
type Sweeper interface {
	Sweep(ctx context.Context, target WatchTarget) SweepResult
}

// SweepRecorder observes finished sweeps (metrics).
type SweepRecorder interface {
	ObserveSweep(result SweepResult)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// Terminate sends SIGTERM to a process.
	Terminate(pid int) error

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error
}

// DaemonRegistry guarantees one daemon per watch target and lets the CLI
// find the daemon watching a given directory.
type DaemonRegistry interface {
	// Register takes the instance lock for record.WatchDir and publishes the record.
	Register(record DaemonRecord) error

	// Unregister releases the lock and removes the record.
	Unregister(target WatchTarget) error

	// Lookup returns the record of the live daemon for target, or nil if
	// no daemon holds the instance lock.
	Lookup(target WatchTarget) (*DaemonRecord, error)

	// IsAlive reports whether a daemon holds the instance lock for target.
	IsAlive(target WatchTarget) (bool, error)
}
