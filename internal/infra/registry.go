package infra

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

const registryDir = "/var/tmp"

// ErrAlreadyRunning is returned by Register when another daemon holds the
// instance lock for the same watch directory.
var ErrAlreadyRunning = errors.New("another filewatchd instance is already watching this directory")

// ErrUnsafeRuntimeDir is returned when the registry directory is a symlink,
// belongs to another user, or is writable by group or others.
var ErrUnsafeRuntimeDir = errors.New("unsafe filewatchd runtime directory")

// FileRegistry implements domain.DaemonRegistry with one lock file and one
// JSON record per watch directory. File names are derived from a hash of the
// directory so any path length maps to a short name.
//
// The lock is the liveness signal: a record counts only while some process
// holds the matching lock. The kernel drops the lock when the daemon dies,
// whatever signal killed it.
type FileRegistry struct {
	dir string

	mu    sync.Mutex
	locks map[domain.WatchTarget]*flock.Flock
}

// NewFileRegistry creates a registry in the runtime directory of the current exec mode.
func NewFileRegistry() *FileRegistry {
	return NewFileRegistryWithDir(DetectExecMode().RuntimeDir)
}

// NewFileRegistryWithDir creates a registry rooted at dir (for testing).
func NewFileRegistryWithDir(dir string) *FileRegistry {
	return &FileRegistry{
		dir:   dir,
		locks: make(map[domain.WatchTarget]*flock.Flock),
	}
}

func (r *FileRegistry) baseName(target domain.WatchTarget) string {
	hash := md5.Sum([]byte(target))
	return filepath.Join(r.dir, "filewatchd-"+hex.EncodeToString(hash[:])[:8])
}

// LockPath returns the instance lock path for target.
func (r *FileRegistry) LockPath(target domain.WatchTarget) string {
	return r.baseName(target) + ".lock"
}

// RecordPath returns the daemon record path for target.
func (r *FileRegistry) RecordPath(target domain.WatchTarget) string {
	return r.baseName(target) + ".json"
}

// Register takes the instance lock for record.WatchDir and publishes the record.
// The lock is held until Unregister or process exit.
func (r *FileRegistry) Register(record domain.DaemonRecord) error {
	target := domain.WatchTarget(record.WatchDir)

	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return fmt.Errorf("failed to create registry dir: %w", err)
	}
	if err := checkRuntimeDir(r.dir); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.locks[target]; held {
		return ErrAlreadyRunning
	}

	lock := flock.New(r.LockPath(target))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := r.atomicWrite(r.RecordPath(target), record); err != nil {
		_ = lock.Unlock()
		return err
	}

	r.locks[target] = lock
	return nil
}

// Unregister releases the lock and removes the record.
func (r *FileRegistry) Unregister(target domain.WatchTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, held := r.locks[target]
	if !held {
		return nil
	}
	delete(r.locks, target)

	if err := os.Remove(r.RecordPath(target)); err != nil && !os.IsNotExist(err) {
		_ = lock.Unlock()
		return err
	}
	return lock.Unlock()
}

// Lookup returns the record of the daemon holding the instance lock for
// target, or nil if no daemon holds it. A record whose lock is free was
// left by a daemon that died without unregistering; it is removed.
func (r *FileRegistry) Lookup(target domain.WatchTarget) (*domain.DaemonRecord, error) {
	if _, err := os.Lstat(r.dir); os.IsNotExist(err) {
		return nil, nil
	}
	if err := checkRuntimeDir(r.dir); err != nil {
		return nil, err
	}

	held, err := r.lockHeld(target)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, nil
	}
	return r.readRecord(target)
}

// IsAlive reports whether a daemon currently holds the instance lock for target.
func (r *FileRegistry) IsAlive(target domain.WatchTarget) (bool, error) {
	record, err := r.Lookup(target)
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

// lockHeld reports whether some process holds the lock for target. When the
// lock is free, the stale record is removed while the lock is taken.
func (r *FileRegistry) lockHeld(target domain.WatchTarget) (bool, error) {
	r.mu.Lock()
	_, own := r.locks[target]
	r.mu.Unlock()
	if own {
		return true, nil
	}

	lockPath := r.LockPath(target)
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		return false, nil
	}

	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to test lock: %w", err)
	}
	if !ok {
		return true, nil
	}
	defer func() { _ = lock.Unlock() }()

	if err := os.Remove(r.RecordPath(target)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to remove stale record: %w", err)
	}
	return false, nil
}

func (r *FileRegistry) readRecord(target domain.WatchTarget) (*domain.DaemonRecord, error) {
	data, err := os.ReadFile(r.RecordPath(target))
	if err != nil {
		// Lock taken but record not written yet.
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var record domain.DaemonRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("corrupt daemon record: %w", err)
	}
	return &record, nil
}

// checkRuntimeDir refuses a registry directory another user could have
// planted: it must be a real directory owned by the effective user and
// not writable by group or others.
func checkRuntimeDir(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnsafeRuntimeDir, dir)
	}
	if info.Mode().Perm()&0022 != 0 {
		return fmt.Errorf("%w: %s is writable by others (%s)", ErrUnsafeRuntimeDir, dir, info.Mode().Perm())
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && int(st.Uid) != os.Geteuid() {
		return fmt.Errorf("%w: %s is owned by uid %d", ErrUnsafeRuntimeDir, dir, st.Uid)
	}
	return nil
}

// atomicWrite writes the record to file atomically (write + rename).
func (r *FileRegistry) atomicWrite(path string, record domain.DaemonRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Ensure FileRegistry implements domain.DaemonRegistry.
var _ domain.DaemonRegistry = (*FileRegistry)(nil)
