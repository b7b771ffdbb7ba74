package environment

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"pyseed/internal/appdir"
)

// MarkerFileName is written inside the environment root after a complete build.
const MarkerFileName = ".pyseed-complete"

// DefaultManifest is the dependency manifest of a standard project layout,
// relative to the project root.
var DefaultManifest = filepath.Join("project", "requirements", "requirements.txt")

// Descriptor locates the isolated environment for one project. All paths are
// derived from the application data layout; none are discovered at runtime.
type Descriptor struct {
	// Root is the environment directory.
	Root string
	// Interpreter is the environment's python executable.
	Interpreter string
	// Marker is present only after a fully successful Ensure.
	Marker string
	// Manifest is the requirements file installed into the environment.
	// It may not exist, in which case no dependencies are installed.
	Manifest string
	// Lock serializes environment creation across processes.
	Lock string
	// ProjectRoot is prepended to PYTHONPATH after handoff.
	ProjectRoot string
}

// NewDescriptor builds the Descriptor for a project. manifest may be relative
// to projectRoot; empty selects DefaultManifest.
func NewDescriptor(layout appdir.Layout, projectRoot, manifest string) (Descriptor, error) {
	if strings.TrimSpace(layout.Root) == "" {
		return Descriptor{}, fmt.Errorf("application data root not set")
	}
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return Descriptor{}, fmt.Errorf("resolve project root: %w", err)
	}
	manifest = strings.TrimSpace(manifest)
	if manifest == "" {
		manifest = DefaultManifest
	}
	if !filepath.IsAbs(manifest) {
		manifest = filepath.Join(root, manifest)
	}
	envRoot := layout.EnvironmentDir()
	return Descriptor{
		Root:        envRoot,
		Interpreter: InterpreterPath(envRoot, runtime.GOOS),
		Marker:      filepath.Join(envRoot, MarkerFileName),
		Manifest:    manifest,
		Lock:        layout.LockPath(),
		ProjectRoot: root,
	}, nil
}

// interpreterExists reports whether the interpreter file is present and,
// outside Windows, executable.
func interpreterExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
