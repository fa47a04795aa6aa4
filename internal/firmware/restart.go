// internal/firmware/restart.go
package firmware

import (
	"os"

	"golang.org/x/exp/slog"
	"golang.org/x/sys/unix"
)

// ExitCodeRestart asks the service manager to start the process again.
const ExitCodeRestart = 3

// ExecRestarter replaces the running process with the image at Path.
// If exec fails, it exits and relies on the service manager.
type ExecRestarter struct {
	Path string
	Args []string
	Log  *slog.Logger

	// Before runs right before exec, e.g. to close the serial port.
	Before func()

	exec func(path string, args, env []string) error
	exit func(code int)
}

// Restart does not return.
func (r *ExecRestarter) Restart() {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	execFn := r.exec
	if execFn == nil {
		execFn = unix.Exec
	}
	exitFn := r.exit
	if exitFn == nil {
		exitFn = os.Exit
	}

	if r.Before != nil {
		r.Before()
	}

	args := r.Args
	if len(args) == 0 {
		args = os.Args
	}

	log.Info("restarting", "path", r.Path)
	err := execFn(r.Path, args, os.Environ())

	// exec only returns on failure
	log.Error("exec failed, exiting for the service manager", "err", err)
	exitFn(ExitCodeRestart)
}
