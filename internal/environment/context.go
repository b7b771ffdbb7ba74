// Package environment detects the execution context and owns the isolated
// Python environment a project runs in.
package environment

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// packaged is set at link time for self-contained builds:
//
//	go build -ldflags "-X pyseed/internal/environment.packaged=true"
var packaged = "false"

// Packaged reports whether this binary was built as a packaged executable.
func Packaged() bool {
	return packaged == "true"
}

// ExecutionContext classifies how the current process was launched.
type ExecutionContext int

const (
	// BareInterpreter means the process is not bound to the target environment.
	BareInterpreter ExecutionContext = iota
	// InsideTargetEnvironment means the active interpreter is the environment's own.
	InsideTargetEnvironment
	// PackagedExecutable means dependencies ship with the binary; bootstrap is skipped.
	PackagedExecutable
)

func (c ExecutionContext) String() string {
	switch c {
	case PackagedExecutable:
		return "packaged"
	case InsideTargetEnvironment:
		return "inside-environment"
	default:
		return "bare"
	}
}

// LookPathFunc resolves a binary reference to an executable path.
type LookPathFunc func(bin string) (string, error)

// Probe derives the ExecutionContext. It has no side effects, so Detect may
// be called any number of times with the same result.
type Probe struct {
	Packaged bool
	// Active returns the interpreter the process is currently bound to.
	Active func() string
	// Interpreter is the environment interpreter from the Descriptor.
	Interpreter string
}

// NewProbe returns a Probe for the running process.
func NewProbe(d Descriptor) Probe {
	return Probe{
		Packaged:    Packaged(),
		Active:      func() string { return ActiveInterpreter(os.Getenv, exec.LookPath, runtime.GOOS) },
		Interpreter: d.Interpreter,
	}
}

// Detect applies the rules in order: packaged build, active interpreter
// matching the environment, otherwise bare.
func (p Probe) Detect() ExecutionContext {
	if p.Packaged {
		return PackagedExecutable
	}
	if p.Active == nil || p.Interpreter == "" {
		return BareInterpreter
	}
	active := p.Active()
	if active != "" && samePath(active, p.Interpreter) {
		return InsideTargetEnvironment
	}
	return BareInterpreter
}

// ActiveInterpreter returns $VIRTUAL_ENV's interpreter when an environment is
// activated, otherwise the first python or python3 on PATH, otherwise "".
func ActiveInterpreter(getenv func(string) string, lookPath LookPathFunc, goos string) string {
	if venv := strings.TrimSpace(getenv("VIRTUAL_ENV")); venv != "" {
		return InterpreterPath(venv, goos)
	}
	if lookPath == nil {
		return ""
	}
	for _, name := range []string{"python", "python3"} {
		if p, err := lookPath(name); err == nil && p != "" {
			return p
		}
	}
	return ""
}

// InterpreterPath returns the interpreter inside an environment root.
func InterpreterPath(root, goos string) string {
	if goos == "windows" {
		return filepath.Join(root, "Scripts", "python.exe")
	}
	return filepath.Join(root, "bin", "python")
}

// BinDir returns the executables directory of an environment root.
func BinDir(root, goos string) string {
	return filepath.Dir(InterpreterPath(root, goos))
}

// samePath compares interpreter paths. Only the directory is resolved: the
// interpreter inside an environment is usually a symlink to the base
// interpreter, and following it would make every environment look bare.
func samePath(a, b string) bool {
	return canonical(a) == canonical(b)
}

func canonical(p string) string {
	p = filepath.Clean(p)
	dir, base := filepath.Dir(p), filepath.Base(p)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	out := filepath.Join(dir, base)
	if runtime.GOOS == "windows" {
		out = strings.ToLower(out)
	}
	return out
}
