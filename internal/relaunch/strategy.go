package relaunch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
)

// execFunc replaces the current process image. Tests override it to capture
// the call instead of replacing the test binary.
var execFunc = platformExec

// ExecStrategy replaces the process image in place.
type ExecStrategy struct{}

// Name implements Strategy.
func (ExecStrategy) Name() string { return "exec" }

// Start implements Strategy. It only returns on failure.
func (ExecStrategy) Start(_ context.Context, l Launch) (int, error) {
	if l.Dir != "" {
		if err := os.Chdir(l.Dir); err != nil {
			return 1, fmt.Errorf("chdir %s: %w", l.Dir, err)
		}
	}
	if err := execFunc(l.Path, l.Args, l.Env); err != nil {
		return 1, fmt.Errorf("exec %s: %w", l.Path, err)
	}
	return 0, nil
}

// SpawnStrategy starts a child with inherited stdio, forwards interrupt and
// termination signals to it and waits for its exit code.
type SpawnStrategy struct{}

// Name implements Strategy.
func (SpawnStrategy) Name() string { return "spawn" }

// Start implements Strategy.
func (SpawnStrategy) Start(ctx context.Context, l Launch) (int, error) {
	args := l.Args
	if len(args) > 0 {
		args = args[1:]
	}
	//nolint:gosec // G204: relaunches this same executable
	cmd := exec.Command(l.Path, args...)
	cmd.Env = l.Env
	cmd.Dir = l.Dir
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("start %s: %w", l.Path, err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, forwardedSignals...)
	defer signal.Stop(sigs)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigs:
			_ = cmd.Process.Signal(sig)
		case <-ctx.Done():
			// The child shares the terminal and receives the interrupt itself;
			// keep waiting so its exit code is reported.
			ctx = context.Background()
		case err := <-done:
			if err == nil {
				return 0, nil
			}
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return exitStatus(exitErr.ProcessState), nil
			}
			return 1, fmt.Errorf("wait %s: %w", l.Path, err)
		}
	}
}
