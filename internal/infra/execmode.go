package infra

import (
	"fmt"
	"os"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser runs as a regular user
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root
	ExecModeSystem ExecMode = "system"
)

const systemRuntimeDir = "/var/run/filewatchd"

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode       ExecMode
	RuntimeDir string // Where instance locks and daemon records live
}

// DetectExecMode determines the execution mode based on effective UID.
// Regular users get $XDG_RUNTIME_DIR/filewatchd when the session provides
// one, and a per-uid directory under /var/tmp otherwise.
func DetectExecMode() *ExecModeConfig {
	euid := os.Geteuid()
	if euid == 0 {
		return &ExecModeConfig{
			Mode:       ExecModeSystem,
			RuntimeDir: systemRuntimeDir,
		}
	}

	dir := filepath.Join(registryDir, fmt.Sprintf("filewatchd-%d", euid))
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); filepath.IsAbs(xdg) {
		dir = filepath.Join(xdg, ProgramName)
	}
	return &ExecModeConfig{
		Mode:       ExecModeUser,
		RuntimeDir: dir,
	}
}
