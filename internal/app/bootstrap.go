package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"pyseed/internal/environment"
	apperrors "pyseed/internal/errors"
	"pyseed/internal/journal"
	"pyseed/internal/relaunch"
)

// Stages reported right before the process is replaced. Progress displays
// must be torn down when they arrive.
const (
	StageRelaunching = "relaunching"
	StageRestarting  = "restarting"
)

// Bootstrap is the outcome of Bootstrap.
type Bootstrap struct {
	Context     environment.ExecutionContext
	Interpreter string
	// HandedOff is true when a child process ran the command. The caller
	// must exit with ExitCode and do nothing else.
	HandedOff bool
	ExitCode  int
}

// Bootstrap makes sure the command runs inside the environment. From a bare
// interpreter the environment is ensured and the process hands off to it;
// inside the environment a changed manifest is re-synced; packaged builds
// skip everything.
func (a *App) Bootstrap(ctx context.Context) (Bootstrap, error) {
	ec := a.Probe.Detect()
	log := a.logger().With("context", ec)
	out := Bootstrap{Context: ec}

	switch ec {
	case environment.PackagedExecutable:
		log.Debug("packaged executable, skipping environment bootstrap")
		return out, nil
	case environment.InsideTargetEnvironment:
		interp, err := a.Manager.Ensure(ctx, a.Descriptor)
		if err != nil {
			return out, err
		}
		out.Interpreter = interp
		return out, nil
	}

	if a.getenv(relaunch.GuardEnv) != "" {
		return out, apperrors.New(apperrors.CodeRelaunchFailed,
			fmt.Sprintf("relaunched process is still outside the environment; run %s directly", a.Descriptor.Interpreter), nil)
	}

	a.Manager.Progress = a.Progress
	started := a.clock()
	interp, err := a.Manager.Ensure(ctx, a.Descriptor)
	entry := journal.Entry{
		Kind:       journal.KindEnvironment,
		StartedAt:  started,
		FinishedAt: a.clock(),
		Message:    a.Descriptor.Root,
	}
	if err != nil {
		entry.Outcome = string(apperrors.CodeOf(err))
		entry.Message = err.Error()
		a.record(ctx, entry)
		return out, err
	}
	a.record(ctx, entry)
	out.Interpreter = interp

	a.stage(StageRelaunching)
	code, err := a.Supervisor.Handoff(ctx, interp, a.Supervisor.Args)
	if err != nil {
		return out, err
	}
	out.HandedOff = true
	out.ExitCode = code
	return out, nil
}

// Status is a read-only report for the status command.
type Status struct {
	Context     environment.ExecutionContext
	DataRoot    string
	Environment environment.Status
	Descriptor  environment.Descriptor
}

// EnvironmentStatus inspects the environment without changing it.
func (a *App) EnvironmentStatus(ctx context.Context) Status {
	return Status{
		Context:     a.Probe.Detect(),
		DataRoot:    a.Layout.Root,
		Environment: a.Manager.Inspect(ctx, a.Descriptor),
		Descriptor:  a.Descriptor,
	}
}

// RemoveEnvironment deletes the environment. It is only reachable from an
// explicit user command.
func (a *App) RemoveEnvironment(ctx context.Context) error {
	return a.Manager.Remove(ctx, a.Descriptor)
}

// RunProject runs project/__main__.py with the environment interpreter and
// returns its exit code.
func (a *App) RunProject(ctx context.Context, args []string) (int, error) {
	interp := a.Descriptor.Interpreter
	if a.Probe.Detect() == environment.PackagedExecutable {
		return 1, apperrors.New(apperrors.CodeConfigurationError, "packaged executables have no environment to run in", nil)
	}
	environ := os.Environ
	if a.Supervisor.Environ != nil {
		environ = a.Supervisor.Environ
	}
	goos := a.Supervisor.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	main := filepath.Join(a.Root, "project", "__main__.py")
	l := relaunch.Launch{
		Path: interp,
		Args: append([]string{interp, main}, args...),
		Env:  relaunch.ActivationEnv(environ(), a.Descriptor.Root, a.Root, goos),
		Dir:  a.Root,
	}
	a.logger().Info("running project", "interpreter", interp, "args", args)
	return relaunch.SpawnStrategy{}.Start(ctx, l)
}
