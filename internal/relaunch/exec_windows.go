//go:build windows

package relaunch

import (
	"errors"
	"os"
)

var forwardedSignals = []os.Signal{os.Interrupt}

func platformExec(string, []string, []string) error {
	return errors.New("process image replacement is not supported on windows")
}

func exitStatus(state *os.ProcessState) int {
	return state.ExitCode()
}
