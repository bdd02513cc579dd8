// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"path/filepath"
	"time"
)

// WatchTarget is the absolute, normalized path of the watched directory.
// Once the daemon is running its working directory is permanently set to it.
type WatchTarget string

// String returns the path.
func (t WatchTarget) String() string {
	return string(t)
}

// Join returns the absolute path of a direct entry of the target.
func (t WatchTarget) Join(name string) string {
	return filepath.Join(string(t), name)
}

// EntryKind classifies a directory entry.
type EntryKind int

const (
	EntryRegular EntryKind = iota
	EntryDirectory
	EntryOther // symlinks, sockets, devices, fifos
)

func (k EntryKind) String() string {
	switch k {
	case EntryRegular:
		return "regular"
	case EntryDirectory:
		return "directory"
	default:
		return "other"
	}
}

// DirectoryEntry is a transient view of one item found while enumerating
// the watch target. It is never cached across sweeps.
type DirectoryEntry struct {
	Name string
	Kind EntryKind
}

// FileMeta is the metadata of a regular file needed to decide retention.
type FileMeta struct {
	Size       int64
	ChangeTime time.Time // last status change (ctime)
	ModTime    time.Time
}

// RetentionPolicy holds the time between sweeps and the maximum file age.
type RetentionPolicy struct {
	CheckInterval time.Duration
	FileLifespan  time.Duration
}

// SweepOp names the filesystem operation that failed during a sweep.
type SweepOp string

const (
	OpReadDir SweepOp = "readdir"
	OpStat    SweepOp = "stat"
	OpRemove  SweepOp = "remove"
)

// SweepError records a failure that did not abort the sweep.
type SweepError struct {
	Op   SweepOp
	Path string
	Err  error
}

func (e SweepError) Error() string {
	return string(e.Op) + " " + e.Path + ": " + e.Err.Error()
}

func (e SweepError) Unwrap() error {
	return e.Err
}

// SweepResult captures what happened during a single sweep.
type SweepResult struct {
	ID             string
	Target         WatchTarget
	StartedAt      time.Time
	Duration       time.Duration
	Scanned        int      // entries returned by enumeration
	Skipped        int      // non-regular entries
	Retained       int      // regular files younger than the lifespan
	Deleted        []string // absolute paths (would-be deleted in dry-run)
	BytesReclaimed int64
	Errors         []SweepError
	DryRun         bool
}

// HasActivity reports whether the sweep deleted anything or hit an error.
func (r SweepResult) HasActivity() bool {
	return len(r.Deleted) > 0 || len(r.Errors) > 0
}

// DaemonRecord is what a running daemon publishes about itself so that
// status and stop can find it. Persisted next to the instance lock.
type DaemonRecord struct {
	PID        int       `json:"pid"`
	WatchDir   string    `json:"watch_dir"`
	StartedAt  time.Time `json:"started_at"`
	AppVersion string    `json:"app_version,omitempty"`
	Mode       string    `json:"mode,omitempty"` // "user" or "system"
	Foreground bool      `json:"foreground,omitempty"`
}
