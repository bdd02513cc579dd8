package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

var (
	// ErrEmptyPath is returned when no directory was supplied.
	ErrEmptyPath = errors.New("watch directory is empty")

	// ErrPathTooLong is returned when the absolute path exceeds PATH_MAX.
	ErrPathTooLong = errors.New("absolute path exceeds PATH_MAX")
)

// ResolveWatchTarget turns a user-supplied path into a WatchTarget.
// Relative paths are joined with cwd, the launch-time working directory.
func ResolveWatchTarget(arg, cwd string) (domain.WatchTarget, error) {
	if strings.TrimSpace(arg) == "" {
		return "", ErrEmptyPath
	}

	abs := arg
	if !filepath.IsAbs(arg) {
		if !filepath.IsAbs(cwd) {
			return "", fmt.Errorf("working directory %q is not absolute", cwd)
		}
		abs = filepath.Join(cwd, arg)
	} else {
		abs = filepath.Clean(arg)
	}

	// PathMax counts the terminating NUL.
	if len(abs) >= unix.PathMax {
		return "", fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(abs))
	}

	return domain.WatchTarget(abs), nil
}

// ResolveWatchTargetFromCwd resolves arg against the current working directory.
func ResolveWatchTargetFromCwd(arg string) (domain.WatchTarget, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return ResolveWatchTarget(arg, cwd)
}

// CheckDirectory verifies that target exists and is a directory.
func CheckDirectory(target domain.WatchTarget) error {
	info, err := os.Stat(target.String())
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", target)
	}
	return nil
}
