// Package fixtures builds directory layouts for integration tests.
package fixtures

import (
	"os"
	"path/filepath"
	"syscall"
)

// WatchedDir is a directory populated with every kind of entry the
// sweeper has to classify.
type WatchedDir struct {
	Root string
}

// Regular files created at the top level.
var RegularFiles = []string{"report.csv", "upload.bin", ".hidden"}

const (
	SubDir      = "nested"
	NestedFile  = "nested/inner.txt"
	Symlink     = "latest"
	NamedPipe   = "events.fifo"
	linkTarget  = "report.csv"
	fileContent = "filewatchd fixture\n"
)

// NewWatchedDir returns a fixture rooted at root.
func NewWatchedDir(root string) *WatchedDir {
	return &WatchedDir{Root: root}
}

// Create populates the directory.
func (w *WatchedDir) Create() error {
	for _, name := range RegularFiles {
		if err := os.WriteFile(w.Path(name), []byte(fileContent), 0644); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(w.Path(SubDir), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(w.Path(NestedFile), []byte(fileContent), 0644); err != nil {
		return err
	}
	if err := os.Symlink(w.Path(linkTarget), w.Path(Symlink)); err != nil {
		return err
	}
	return syscall.Mkfifo(w.Path(NamedPipe), 0644)
}

// Path returns the absolute path of a fixture entry.
func (w *WatchedDir) Path(name string) string {
	return filepath.Join(w.Root, name)
}

// Exists reports whether the entry is still present (symlinks are not followed).
func (w *WatchedDir) Exists(name string) bool {
	_, err := os.Lstat(w.Path(name))
	return err == nil
}

// NonRegular lists the entries that must survive every sweep.
func NonRegular() []string {
	return []string{SubDir, NestedFile, Symlink, NamedPipe}
}
