package launcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

// ErrLaunchFailed means the wrapped command could not be started at all.
// This is the only filter-unrelated fatal condition in the whole program.
var ErrLaunchFailed = errors.New("failed to launch wrapped command")

// Launcher hands the process over to the wrapped command and forwards its
// exit status.
type Launcher interface {
	// Launch runs the command with inherited standard streams and returns
	// its exit code. ErrLaunchFailed is returned when the command cannot be
	// found or started.
	Launch(name string, args []string) (int, error)
}

// ExecLauncher implements Launcher by spawning the command and waiting for
// it. Spawn-and-wait rather than execve keeps the forwarding contract
// portable and testable; the wrapped command owns stdin, stdout and stderr
// either way.
type ExecLauncher struct {
	logger *slog.Logger
}

// NewExecLauncher creates a launcher logging through logger.
func NewExecLauncher(logger *slog.Logger) *ExecLauncher {
	return &ExecLauncher{logger: logger}
}

// Launch starts the wrapped command and blocks until it exits. Once the
// child is running, no cancellation applies; the wrapper's job is done.
func (l *ExecLauncher) Launch(name string, args []string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	l.logger.Info("launching wrapped command", "command", name, "args", args)

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			// Shell convention for a signal-terminated child.
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}

	return 0, fmt.Errorf("%w: %s: %v", ErrLaunchFailed, name, err)
}
