package environment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/logging"
)

// Manager materializes environments described by a Descriptor.
type Manager struct {
	// BasePython is the configured interpreter used to create environments.
	// Empty selects python3 or python from PATH.
	BasePython string
	MinMajor   int
	MinMinor   int
	// LockWait bounds how long Ensure waits for another process to finish.
	LockWait time.Duration
	Runner   CommandRunner
	LookPath LookPathFunc
	Logger   *slog.Logger
	// Progress receives short stage names ("creating environment", ...).
	Progress func(stage string)
	now      func() time.Time
}

// Status describes an environment without modifying it.
type Status struct {
	Present      bool
	Python       string
	Marker       *Marker
	ManifestSync bool
	Reason       string
}

func (m *Manager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return logging.L()
}

func (m *Manager) runner() CommandRunner {
	if m.Runner != nil {
		return m.Runner
	}
	return ExecRunner{}
}

func (m *Manager) stage(name string) {
	m.logger().Info("environment", "stage", name)
	if m.Progress != nil {
		m.Progress(name)
	}
}

func (m *Manager) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now().UTC()
}

func (m *Manager) minVersion() (int, int) {
	if m.MinMajor == 0 {
		return 3, m.MinMinor
	}
	return m.MinMajor, m.MinMinor
}

// Inspect reports whether d is present: interpreter exists and is
// executable, the completion marker is readable, the liveness check passes
// and the manifest has not changed since the marker was written.
func (m *Manager) Inspect(ctx context.Context, d Descriptor) Status {
	if !interpreterExists(d.Interpreter) {
		return Status{Reason: "interpreter missing"}
	}
	marker, err := ReadMarker(d.Marker)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Status{Reason: "completion marker missing"}
		}
		return Status{Reason: err.Error()}
	}
	info, err := m.checkEnvironmentInterpreter(ctx, d)
	if err != nil {
		return Status{Marker: &marker, Reason: "liveness check failed: " + err.Error()}
	}
	digest, err := ManifestDigest(d.Manifest)
	if err != nil {
		return Status{Python: info.Installed, Marker: &marker, Reason: err.Error()}
	}
	if digest != marker.ManifestDigest {
		return Status{Python: info.Installed, Marker: &marker, Reason: "dependency manifest changed"}
	}
	return Status{Present: true, Python: info.Installed, Marker: &marker, ManifestSync: true}
}

// Ensure returns the environment interpreter, creating or repairing the
// environment when it is not present. A present environment is returned
// without any installation work. Creation runs under the descriptor's lock;
// a build interrupted at any point leaves no completion marker and is
// resumed by the next call.
func (m *Manager) Ensure(ctx context.Context, d Descriptor) (string, error) {
	log := m.logger().With("environment", d.Root)
	st := m.Inspect(ctx, d)
	if st.Present {
		log.Debug("environment present", "python", st.Python)
		return d.Interpreter, nil
	}
	log.Info("environment not present", "reason", st.Reason)

	wait := m.LockWait
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	release, err := acquireLock(ctx, d.Lock, wait)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return "", apperrors.New(apperrors.CodeEnvironmentLocked,
				fmt.Sprintf("another pyseed process is building the environment (lock %s)", d.Lock), err)
		}
		return "", apperrors.New(apperrors.CodeEnvironmentCreation, "acquire environment lock", err)
	}
	defer release()

	// Another process may have finished while we waited.
	if st := m.Inspect(ctx, d); st.Present {
		log.Info("environment completed by another process")
		return d.Interpreter, nil
	}

	if err := os.Remove(d.Marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", apperrors.New(apperrors.CodeEnvironmentCreation, "remove stale completion marker", err)
	}

	if !interpreterExists(d.Interpreter) {
		if err := m.create(ctx, d, log); err != nil {
			return "", err
		}
	} else if _, err := m.checkEnvironmentInterpreter(ctx, d); err != nil {
		// Present but broken, e.g. its base installation was removed.
		log.Warn("environment interpreter unusable, recreating", "error", err)
		if err := m.create(ctx, d, log, "--clear"); err != nil {
			return "", err
		}
	}

	if err := m.install(ctx, d, log); err != nil {
		return "", err
	}

	info, err := m.checkEnvironmentInterpreter(ctx, d)
	if err != nil {
		return "", apperrors.New(apperrors.CodeEnvironmentCreation,
			fmt.Sprintf("environment interpreter %s failed verification", d.Interpreter), err)
	}
	digest, err := ManifestDigest(d.Manifest)
	if err != nil {
		return "", apperrors.New(apperrors.CodeDependencyInstall, "hash dependency manifest", err)
	}
	marker := Marker{Python: info.Installed, ManifestDigest: digest, CompletedAt: m.clock()}
	if err := writeMarker(d.Marker, marker); err != nil {
		return "", apperrors.New(apperrors.CodeEnvironmentCreation, "write completion marker", err)
	}
	log.Info("environment ready", "python", info.Installed, "interpreter", d.Interpreter)
	return d.Interpreter, nil
}

func (m *Manager) checkEnvironmentInterpreter(ctx context.Context, d Descriptor) (InterpreterInfo, error) {
	major, minor := m.minVersion()
	return CheckInterpreter(ctx, InterpreterCheck{
		Bin:      d.Interpreter,
		MinMajor: major,
		MinMinor: minor,
		Runner:   m.runner(),
		LookPath: func(bin string) (string, error) { return bin, nil },
	})
}

func (m *Manager) create(ctx context.Context, d Descriptor, log *slog.Logger, extra ...string) error {
	base, err := FindBaseInterpreter(m.BasePython, m.LookPath)
	if err != nil {
		return apperrors.New(apperrors.CodeUnsupportedInterpreter,
			"no python interpreter found; install Python 3 and make sure it is on PATH", err)
	}
	major, minor := m.minVersion()
	info, err := CheckInterpreter(ctx, InterpreterCheck{
		Bin:      base,
		MinMajor: major,
		MinMinor: minor,
		Runner:   m.runner(),
		LookPath: func(bin string) (string, error) { return bin, nil },
	})
	if err != nil {
		msg := fmt.Sprintf("python %d.%d or newer is required", major, minor)
		if info.Installed != "" {
			msg = fmt.Sprintf("python %s at %s is too old; %d.%d or newer is required", info.Installed, info.Bin, major, minor)
		}
		return apperrors.New(apperrors.CodeUnsupportedInterpreter, msg, err)
	}

	m.stage("creating environment")
	args := append([]string{"-m", "venv"}, extra...)
	args = append(args, d.Root)
	log.Info("creating environment", "base", base, "python", info.Installed)
	if out, err := m.runner().Run(ctx, base, args...); err != nil {
		return apperrors.New(apperrors.CodeEnvironmentCreation,
			fmt.Sprintf("python -m venv failed:\n%s", strings.TrimSpace(logging.Clean(string(out)))), err)
	}
	if !interpreterExists(d.Interpreter) {
		return apperrors.New(apperrors.CodeEnvironmentCreation,
			fmt.Sprintf("environment interpreter %s missing after creation", d.Interpreter), nil)
	}
	return nil
}

func (m *Manager) install(ctx context.Context, d Descriptor, log *slog.Logger) error {
	if _, err := os.Stat(d.Manifest); errors.Is(err, fs.ErrNotExist) {
		log.Info("no dependency manifest, skipping install", "manifest", d.Manifest)
		return nil
	}
	m.stage("installing dependencies")
	out, err := m.runner().Run(ctx, d.Interpreter, "-m", "pip", "install",
		"--disable-pip-version-check", "-r", d.Manifest)
	clean := strings.TrimSpace(logging.Clean(string(out)))
	if err != nil {
		log.Error("dependency install failed", "manifest", d.Manifest, "output", clean)
		return apperrors.New(apperrors.CodeDependencyInstall,
			fmt.Sprintf("pip install -r %s failed:\n%s", d.Manifest, clean), err)
	}
	log.Debug("dependencies installed", "output", clean)
	return nil
}

// Remove deletes the environment under its lock. It is only reached through
// an explicit user command.
func (m *Manager) Remove(ctx context.Context, d Descriptor) error {
	wait := m.LockWait
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	release, err := acquireLock(ctx, d.Lock, wait)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return apperrors.New(apperrors.CodeEnvironmentLocked, "environment is in use by another pyseed process", err)
		}
		return err
	}
	defer release()

	if err := os.Remove(d.Marker); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove completion marker: %w", err)
	}
	if err := os.RemoveAll(d.Root); err != nil {
		return fmt.Errorf("remove environment %s: %w", d.Root, err)
	}
	m.logger().Info("environment removed", "environment", d.Root)
	return nil
}
