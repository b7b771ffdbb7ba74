//go:build !windows

package relaunch

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

var forwardedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

func platformExec(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}

// exitStatus follows the shell convention of 128+signal for a child killed
// by a signal, matching what the caller sees after an in-place exec.
func exitStatus(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
