package environment

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// InterpreterInfo captures what a liveness check learned about an interpreter.
type InterpreterInfo struct {
	Bin       string
	Installed string
	Required  string
}

// InterpreterErrorKind categorizes liveness failures.
type InterpreterErrorKind string

const (
	InterpreterNotInstalled  InterpreterErrorKind = "not_installed"
	InterpreterCommandFailed InterpreterErrorKind = "command_failed"
	InterpreterParse         InterpreterErrorKind = "parse_failed"
	InterpreterTooOld        InterpreterErrorKind = "too_old"
)

// InterpreterError wraps liveness failures with their category.
type InterpreterError struct {
	Kind InterpreterErrorKind
	Info InterpreterInfo
	Err  error
}

// Error implements the error interface.
func (e InterpreterError) Error() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Kind == InterpreterNotInstalled:
		return "python interpreter not found"
	case e.Kind == InterpreterTooOld:
		return fmt.Sprintf("python %s is older than required %s", e.Info.Installed, e.Info.Required)
	case e.Kind == InterpreterParse:
		return "failed to parse python version"
	default:
		return "failed to run python"
	}
}

// Unwrap exposes the wrapped error.
func (e InterpreterError) Unwrap() error {
	return e.Err
}

// CommandRunner executes external commands, allowing tests to inject stubs.
// Output is stdout and stderr combined.
type CommandRunner interface {
	Run(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	return cmd.CombinedOutput()
}

// PythonVersion is a parsed "Python X.Y[.Z]" banner.
type PythonVersion struct {
	Major, Minor, Patch int
}

func (v PythonVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports whether v is major.minor or newer within the same major line.
func (v PythonVersion) AtLeast(major, minor int) bool {
	if v.Major != major {
		return false
	}
	return v.Minor >= minor
}

var pythonVersionRegex = regexp.MustCompile(`(\d+)\.(\d+)(?:\.(\d+))?`)

// ParsePythonVersion extracts the version from `python --version` output.
func ParsePythonVersion(out string) (PythonVersion, error) {
	match := pythonVersionRegex.FindStringSubmatch(strings.TrimSpace(out))
	if match == nil {
		return PythonVersion{}, fmt.Errorf("no python version found in %q", strings.TrimSpace(out))
	}
	var v PythonVersion
	var err error
	if v.Major, err = strconv.Atoi(match[1]); err != nil {
		return PythonVersion{}, fmt.Errorf("parse major %q: %w", match[1], err)
	}
	if v.Minor, err = strconv.Atoi(match[2]); err != nil {
		return PythonVersion{}, fmt.Errorf("parse minor %q: %w", match[2], err)
	}
	if match[3] != "" {
		if v.Patch, err = strconv.Atoi(match[3]); err != nil {
			return PythonVersion{}, fmt.Errorf("parse patch %q: %w", match[3], err)
		}
	}
	return v, nil
}

// InterpreterCheck configures CheckInterpreter.
type InterpreterCheck struct {
	Bin      string
	MinMajor int
	MinMinor int
	Runner   CommandRunner
	LookPath LookPathFunc
}

// CheckInterpreter runs `<bin> --version` and verifies the result against the
// minimum version. A bare name is resolved through LookPath first.
func CheckInterpreter(ctx context.Context, opts InterpreterCheck) (InterpreterInfo, error) {
	bin := strings.TrimSpace(opts.Bin)
	if bin == "" {
		bin = "python3"
	}
	info := InterpreterInfo{
		Bin:      bin,
		Required: fmt.Sprintf("%d.%d", opts.MinMajor, opts.MinMinor),
	}

	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	runner := opts.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	resolved, err := lookPath(bin)
	if err != nil {
		return info, InterpreterError{Kind: InterpreterNotInstalled, Info: info, Err: err}
	}
	info.Bin = resolved

	out, err := runner.Run(ctx, resolved, "--version")
	if err != nil {
		return info, InterpreterError{Kind: InterpreterCommandFailed, Info: info, Err: err}
	}
	v, err := ParsePythonVersion(string(out))
	if err != nil {
		return info, InterpreterError{Kind: InterpreterParse, Info: info, Err: err}
	}
	info.Installed = v.String()

	if !v.AtLeast(opts.MinMajor, opts.MinMinor) {
		return info, InterpreterError{Kind: InterpreterTooOld, Info: info}
	}
	return info, nil
}

// FindBaseInterpreter resolves the interpreter used to create environments:
// the configured one when set, else the first python3 or python on PATH.
func FindBaseInterpreter(configured string, lookPath LookPathFunc) (string, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if configured = strings.TrimSpace(configured); configured != "" {
		return lookPath(configured)
	}
	var firstErr error
	for _, name := range []string{"python3", "python"} {
		p, err := lookPath(name)
		if err == nil {
			return p, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}
