// Package relaunch hands the process over to the isolated environment and
// restarts it after an update.
package relaunch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/logging"
)

// GuardEnv is set on every relaunched process. A process that carries it and
// still finds itself outside the environment must not relaunch again.
const GuardEnv = "PYSEED_RELAUNCHED"

// RestartEnv is set on a process restarted after an update. Such a process
// must not restart again.
const RestartEnv = "PYSEED_RESTARTED"

// Launch describes the replacement process.
type Launch struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Strategy starts the replacement process. Strategies that replace the
// process image only return on failure.
type Strategy interface {
	Name() string
	Start(ctx context.Context, l Launch) (int, error)
}

// Supervisor re-executes the manager binary inside the environment.
type Supervisor struct {
	Strategy Strategy
	// ProjectRoot is prepended to PYTHONPATH.
	ProjectRoot string
	// Args are the original command-line arguments, without the program name.
	Args []string
	// RestartArgs are the arguments for a restart after an update: the
	// global flags without the command that triggered it.
	RestartArgs []string
	Executable  func() (string, error)
	Environ     func() []string
	Getwd       func() (string, error)
	GOOS        string
	Logger      *slog.Logger
}

// NewSupervisor returns a Supervisor for the running process. strategy is
// "exec", "spawn" or "" for the platform default.
func NewSupervisor(strategy, projectRoot string) (*Supervisor, error) {
	st, err := StrategyByName(strategy, runtime.GOOS)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		Strategy:    st,
		ProjectRoot: projectRoot,
		Args:        append([]string(nil), os.Args[1:]...),
		Executable:  os.Executable,
		Environ:     os.Environ,
		Getwd:       os.Getwd,
		GOOS:        runtime.GOOS,
	}, nil
}

// StrategyByName selects a Strategy. Exec is the default except on Windows,
// which has no process-image replacement.
func StrategyByName(name, goos string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		if goos == "windows" {
			return SpawnStrategy{}, nil
		}
		return ExecStrategy{}, nil
	case "exec":
		if goos == "windows" {
			return nil, apperrors.New(apperrors.CodeConfigurationError, "exec relaunch is not available on windows", nil)
		}
		return ExecStrategy{}, nil
	case "spawn":
		return SpawnStrategy{}, nil
	default:
		return nil, apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("unknown relaunch strategy %q (want exec or spawn)", name), nil)
	}
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.L()
}

// Handoff re-executes the manager with args and the environment of
// interpreter activated. On success with the exec strategy it does not
// return; with spawn it returns the child's exit code for the caller to exit
// with.
func (s *Supervisor) Handoff(ctx context.Context, interpreter string, args []string) (int, error) {
	exe, err := s.executable()
	if err != nil {
		return 1, relaunchError(interpreter, err)
	}
	envRoot := filepath.Dir(filepath.Dir(interpreter))
	l := Launch{
		Path: exe,
		Args: append([]string{exe}, args...),
		Env:  ActivationEnv(s.environ(), envRoot, s.ProjectRoot, s.goos()),
		Dir:  s.workdir(),
	}
	s.logger().Info("handing off to environment",
		"interpreter", interpreter, "strategy", s.Strategy.Name(), "args", args)
	code, err := s.Strategy.Start(ctx, l)
	if err != nil {
		return 1, relaunchError(interpreter, err)
	}
	return code, nil
}

// Restart re-executes the manager with RestartArgs and the current
// environment plus RestartEnv, so the whole bootstrap runs again against
// updated sources without repeating the update.
func (s *Supervisor) Restart(ctx context.Context) (int, error) {
	exe, err := s.executable()
	if err != nil {
		return 1, apperrors.New(apperrors.CodeRelaunchFailed, "locate manager executable for restart", err)
	}
	l := Launch{
		Path: exe,
		Args: append([]string{exe}, s.RestartArgs...),
		Env:  setEnv(s.environ(), RestartEnv, "1"),
		Dir:  s.workdir(),
	}
	s.logger().Info("restarting", "strategy", s.Strategy.Name(), "args", s.RestartArgs)
	code, err := s.Strategy.Start(ctx, l)
	if err != nil {
		return 1, apperrors.New(apperrors.CodeRelaunchFailed,
			strings.TrimSpace(fmt.Sprintf("restart failed; run %s %s manually", exe, strings.Join(s.RestartArgs, " "))), err)
	}
	return code, nil
}

func setEnv(environ []string, key, value string) []string {
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if k, _, _ := strings.Cut(kv, "="); k == key {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

func relaunchError(interpreter string, err error) error {
	return apperrors.New(apperrors.CodeRelaunchFailed,
		fmt.Sprintf("could not relaunch inside the environment; its interpreter is %s", interpreter), err)
}

func (s *Supervisor) executable() (string, error) {
	if s.Executable == nil {
		return os.Executable()
	}
	return s.Executable()
}

func (s *Supervisor) environ() []string {
	if s.Environ == nil {
		return os.Environ()
	}
	return s.Environ()
}

func (s *Supervisor) workdir() string {
	getwd := s.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	dir, err := getwd()
	if err != nil {
		return ""
	}
	return dir
}

func (s *Supervisor) goos() string {
	if s.GOOS == "" {
		return runtime.GOOS
	}
	return s.GOOS
}

// ActivationEnv returns environ with the environment at envRoot activated:
// VIRTUAL_ENV set, its executables first on PATH, projectRoot first on
// PYTHONPATH, PYTHONHOME removed and the relaunch guard set.
func ActivationEnv(environ []string, envRoot, projectRoot, goos string) []string {
	sep := ":"
	binDir := filepath.Join(envRoot, "bin")
	if goos == "windows" {
		sep = ";"
		binDir = filepath.Join(envRoot, "Scripts")
	}

	vars := make(map[string]string, len(environ))
	order := make([]string, 0, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := vars[k]; !seen {
			order = append(order, k)
		}
		vars[k] = v
	}
	set := func(k, v string) {
		if _, seen := vars[k]; !seen {
			order = append(order, k)
		}
		vars[k] = v
	}

	set("VIRTUAL_ENV", envRoot)
	set("PATH", prefixList(binDir, vars["PATH"], sep))
	if projectRoot != "" {
		set("PYTHONPATH", prefixList(projectRoot, vars["PYTHONPATH"], sep))
	}
	set(GuardEnv, "1")
	delete(vars, "PYTHONHOME")

	out := make([]string, 0, len(order))
	for _, k := range order {
		if v, ok := vars[k]; ok {
			out = append(out, k+"="+v)
		}
	}
	return out
}

func prefixList(head, list, sep string) string {
	if list == "" {
		return head
	}
	for _, entry := range strings.Split(list, sep) {
		if entry == head {
			return list
		}
	}
	return head + sep + list
}
