package infra

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

// FileSystemImpl implements domain.FileSystem on the local filesystem.
type FileSystemImpl struct{}

// NewFileSystem creates a new filesystem adapter.
func NewFileSystem() domain.FileSystem {
	return &FileSystemImpl{}
}

// ReadDir lists the direct entries of dir. The directory handle is closed
// before returning.
func (fs *FileSystemImpl) ReadDir(dir string) ([]domain.DirectoryEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := make([]domain.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, domain.DirectoryEntry{
			Name: e.Name(),
			Kind: kindOf(e.Type()),
		})
	}
	return result, nil
}

// Stat returns size and timestamps for path, including the status change
// time which os.FileInfo does not expose portably.
func (fs *FileSystemImpl) Stat(path string) (domain.FileMeta, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return domain.FileMeta{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}

	return domain.FileMeta{
		Size:       st.Size,
		ChangeTime: time.Unix(st.Ctim.Unix()),
		ModTime:    time.Unix(st.Mtim.Unix()),
	}, nil
}

// Remove deletes a single file. Directories are never removed recursively.
func (fs *FileSystemImpl) Remove(path string) error {
	return os.Remove(path)
}

func kindOf(mode os.FileMode) domain.EntryKind {
	switch {
	case mode.IsRegular():
		return domain.EntryRegular
	case mode.IsDir():
		return domain.EntryDirectory
	default:
		return domain.EntryOther
	}
}

// SystemClock implements domain.Clock with time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Ensure FileSystemImpl implements domain.FileSystem.
var _ domain.FileSystem = (*FileSystemImpl)(nil)

var _ domain.Clock = SystemClock{}
