// Package appdir derives the per-user application data layout for a project.
//
// Every file the manager owns outside the project tree lives under one
// directory keyed by the lower-cased project folder name:
//
//	Windows: %LOCALAPPDATA%\<name>
//	Linux:   $XDG_DATA_HOME/<name> (default ~/.local/share/<name>)
//	other:   ~/.<name>
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// File and directory names inside the application data root.
const (
	EnvironmentDirName    = "venv"
	LockFileName          = "venv.lock"
	LogsDirName           = "logs"
	AuthConfigFileName    = "github_auth.json"
	TokenCacheFileName    = "github_token.json"
	ProjectConfigFileName = "project_config.json"
	UserConfigFileName    = "config.yaml"
	JournalFileName       = "history.db"
)

// Platform captures the process facts used to resolve the data root.
// Tests substitute their own values.
type Platform struct {
	GOOS    string
	Getenv  func(string) string
	HomeDir func() (string, error)
}

// CurrentPlatform returns the Platform for the running process.
func CurrentPlatform() Platform {
	return Platform{
		GOOS:    runtime.GOOS,
		Getenv:  os.Getenv,
		HomeDir: os.UserHomeDir,
	}
}

// Layout is the resolved set of paths for one project.
type Layout struct {
	Name string
	Root string
}

// ProjectName returns the identity used for the data root. For packaged
// executables the binary lives in <project>/<dist dir>/, so the name comes
// from the executable's grandparent directory instead of the project root.
func ProjectName(projectRoot string, packaged bool, executable string) string {
	dir := projectRoot
	if packaged && strings.TrimSpace(executable) != "" {
		dir = filepath.Dir(filepath.Dir(executable))
	}
	return strings.ToLower(filepath.Base(filepath.Clean(dir)))
}

// Resolve computes the Layout for name on the given platform.
func Resolve(name string, p Platform) (Layout, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return Layout{}, fmt.Errorf("invalid project name %q", name)
	}
	getenv := p.Getenv
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	home := p.HomeDir
	if home == nil {
		home = os.UserHomeDir
	}

	switch p.GOOS {
	case "windows":
		base := getenv("LOCALAPPDATA")
		if base == "" {
			return Layout{}, fmt.Errorf("LOCALAPPDATA environment variable not set")
		}
		return Layout{Name: name, Root: filepath.Join(base, name)}, nil
	case "linux":
		if xdg := getenv("XDG_DATA_HOME"); xdg != "" {
			return Layout{Name: name, Root: filepath.Join(xdg, name)}, nil
		}
		dir, err := home()
		if err != nil {
			return Layout{}, fmt.Errorf("determine user home: %w", err)
		}
		return Layout{Name: name, Root: filepath.Join(dir, ".local", "share", name)}, nil
	default:
		dir, err := home()
		if err != nil {
			return Layout{}, fmt.Errorf("determine user home: %w", err)
		}
		return Layout{Name: name, Root: filepath.Join(dir, "."+name)}, nil
	}
}

// EnvironmentDir is the root of the isolated Python environment.
func (l Layout) EnvironmentDir() string { return filepath.Join(l.Root, EnvironmentDirName) }

// LockPath guards environment creation against concurrent invocations.
func (l Layout) LockPath() string { return filepath.Join(l.Root, LockFileName) }

// LogsDir holds the dated log files.
func (l Layout) LogsDir() string { return filepath.Join(l.Root, LogsDirName) }

// AuthConfigPath holds an explicit {"token": ...} credential.
func (l Layout) AuthConfigPath() string { return filepath.Join(l.Root, AuthConfigFileName) }

// TokenCachePath holds the token obtained through the device flow.
func (l Layout) TokenCachePath() string { return filepath.Join(l.Root, TokenCacheFileName) }

// ProjectConfigPath holds the recorded project mode and manifest paths.
func (l Layout) ProjectConfigPath() string { return filepath.Join(l.Root, ProjectConfigFileName) }

// UserConfigPath holds the manager settings read by internal/config.
func (l Layout) UserConfigPath() string { return filepath.Join(l.Root, UserConfigFileName) }

// JournalPath is the SQLite history database.
func (l Layout) JournalPath() string { return filepath.Join(l.Root, JournalFileName) }

// Ensure creates the data root if needed.
func (l Layout) Ensure() error {
	//nolint:gosec // G301: per-user data directory
	if err := os.MkdirAll(l.Root, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", l.Root, err)
	}
	return nil
}
