package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/filewatchd/internal/domain"
)

// Stage names a step of the detach sequence. The Go runtime cannot fork
// without exec, so each fork is a re-exec of the binary into the next stage:
//
//	launcher --setsid--> session --> service
//
// The launcher and the session stage exit as soon as their child has started.
type Stage string

const (
	// StageSession runs as session leader, ignores SIGCHLD/SIGHUP and
	// spawns the service stage.
	StageSession Stage = "session"
	// StageService is the final, non-leader process that runs the scheduler.
	StageService Stage = "service"
)

// Options are carried across the detach stages as flags.
type Options struct {
	MetricsAddr string
}

// Detacher spawns the next detach stage.
type Detacher struct {
	executable string
	start      func(cmd *exec.Cmd) error
}

// NewDetacher creates a detacher that re-executes the running binary.
func NewDetacher() (*Detacher, error) {
	executable, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	return &Detacher{
		executable: executable,
		start:      func(cmd *exec.Cmd) error { return cmd.Start() },
	}, nil
}

// Command builds the self-exec command for stage.
// Hidden "daemon" command: filewatchd daemon --stage session /abs/dir
func (d *Detacher) Command(stage Stage, target domain.WatchTarget, opts Options) *exec.Cmd {
	args := []string{"daemon", "--stage", string(stage)}
	if opts.MetricsAddr != "" {
		args = append(args, "--metrics-addr", opts.MetricsAddr)
	}
	args = append(args, "--", target.String())

	cmd := exec.Command(d.executable, args...)

	// Only the first child becomes session leader; the second must not be,
	// so it can never acquire a controlling terminal.
	if stage == StageSession {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setsid: true,
		}
	}

	// No stdin/stdout/stderr - os/exec connects them to /dev/null
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Dir = "/"

	return cmd
}

// Spawn starts the next stage. Descriptors inherited from the invoking
// shell are marked close-on-exec first so the child only sees /dev/null
// on 0, 1 and 2. The caller should exit with success afterwards.
func (d *Detacher) Spawn(stage Stage, target domain.WatchTarget, opts Options) error {
	closeInheritedOnExec()

	cmd := d.Command(stage, target, opts)
	if err := d.start(cmd); err != nil {
		return fmt.Errorf("failed to start %s stage: %w", stage, err)
	}
	return nil
}

// IgnoreSessionSignals ignores SIGCHLD and SIGHUP. Ignored dispositions
// survive exec, so the service stage inherits them.
func IgnoreSessionSignals() {
	signal.Ignore(syscall.SIGCHLD, syscall.SIGHUP)
}

// EnterService performs the in-process part of daemon setup: clear the
// umask and make target the working directory. A chdir failure is fatal
// for the caller.
func EnterService(target domain.WatchTarget) error {
	unix.Umask(0)

	if err := os.Chdir(target.String()); err != nil {
		return fmt.Errorf("error while accessing directory: %w", err)
	}
	return nil
}

// closeInheritedOnExec sets FD_CLOEXEC on every descriptor above stderr.
// Descriptors owned by the Go runtime already carry the flag.
func closeInheritedOnExec() {
	if fds, err := os.ReadDir("/proc/self/fd"); err == nil {
		for _, e := range fds {
			fd, err := strconv.Atoi(e.Name())
			if err != nil || fd <= 2 {
				continue
			}
			unix.CloseOnExec(fd)
		}
		return
	}

	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		rlim.Cur = 0
	}
	limit := fdScanLimit(rlim.Cur)
	for fd := 3; uint64(fd) < limit; fd++ {
		unix.CloseOnExec(fd)
	}
}

const (
	defaultFDScanLimit = 1024
	maxFDScanLimit     = 1 << 20
)

// fdScanLimit bounds the descriptor scan when /proc is unavailable. An
// unknown soft limit scans the traditional 1024, an unlimited or huge one
// is capped.
func fdScanLimit(cur uint64) uint64 {
	switch {
	case cur == 0:
		return defaultFDScanLimit
	case cur > maxFDScanLimit:
		return maxFDScanLimit
	default:
		return cur
	}
}
