package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	KeyGitHubRepo     = "github.repo"
	KeyGitHubClientID = "github.client-id"
	KeyGitHubAPIURL   = "github.api-url"
	KeyGitHubWebURL   = "github.web-url"

	KeyPython       = "environment.python"
	KeyMinPython    = "environment.min-python"
	KeyLockWait     = "environment.lock-wait"
	KeyRelaunch     = "environment.relaunch"
	KeyRequirements = "environment.requirements"

	KeyProjectMode   = "project.mode"
	KeyPathVersion   = "project.paths.version"
	KeyPathRequire   = "project.paths.requirements"
	KeyPathRequireIn = "project.paths.requirements-in"

	KeyPreserve = "update.preserve"

	KeyDeviceTimeout = "auth.device-timeout"
	KeyDebug         = "debug"
)

const (
	// DefaultMinPython is the oldest interpreter minor version (3.x) accepted.
	DefaultMinPython = "3.9"
	// DefaultLockWait bounds how long a second invocation waits for environment creation.
	DefaultLockWait = 2 * time.Minute
	// DefaultDeviceTimeout bounds interactive device authorization.
	DefaultDeviceTimeout = 15 * time.Minute
	// PublicClientID marks a repository that never needs authentication.
	PublicClientID = "public_repo"

	envPrefix = "PYSEED"
	dirName   = ".pyseed"
)

type initSettings struct {
	workingDir        string
	projectConfigPath string
	userConfigPath    string
	envFile           string
}

// Option configures Initialize behaviour. Useful for tests to override paths.
type Option func(*initSettings)

// WithWorkingDir overrides the directory used for project config discovery.
func WithWorkingDir(dir string) Option {
	return func(cfg *initSettings) {
		cfg.workingDir = dir
	}
}

// WithProjectConfig explicitly sets the project config path instead of discovery.
func WithProjectConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.projectConfigPath = path
	}
}

// WithUserConfig sets the user config path, normally <appdata>/<name>/config.yaml.
func WithUserConfig(path string) Option {
	return func(cfg *initSettings) {
		cfg.userConfigPath = path
	}
}

// WithEnvFile loads a dotenv file before environment variables are bound.
// A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(cfg *initSettings) {
		cfg.envFile = path
	}
}

var (
	configOnce sync.Once
	configMu   sync.RWMutex
	configInst *viper.Viper
	initErr    error
)

// Initialize loads configuration using the precedence:
// defaults < user config < project config < environment variables < overrides.
func Initialize(opts ...Option) error {
	configOnce.Do(func() {
		settings := initSettings{}
		for _, opt := range opts {
			opt(&settings)
		}
		initErr = configure(&settings)
	})
	return initErr
}

// ApplyOverrides injects values typically coming from CLI flags.
func ApplyOverrides(overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	for k, v := range overrides {
		configInst.Set(k, v)
	}
	return nil
}

// GetString fetches a string configuration value, initializing on demand.
func GetString(key string) string {
	v, err := getViper()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v.GetString(key))
}

// GetBool fetches a bool configuration value, initializing on demand.
func GetBool(key string) bool {
	v, err := getViper()
	if err != nil {
		return false
	}
	return v.GetBool(key)
}

// GetDuration fetches a duration configuration value, initializing on demand.
func GetDuration(key string) time.Duration {
	v, err := getViper()
	if err != nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice fetches a list value, initializing on demand. Empty lists
// are returned as nil.
func GetStringSlice(key string) []string {
	v, err := getViper()
	if err != nil {
		return nil
	}
	var out []string
	for _, s := range v.GetStringSlice(key) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Set updates a configuration key at runtime, initializing on demand.
func Set(key string, value any) error {
	if err := Initialize(); err != nil {
		return err
	}
	configMu.Lock()
	defer configMu.Unlock()
	if configInst == nil {
		return fmt.Errorf("configuration not initialized")
	}
	configInst.Set(key, value)
	return nil
}

// ManifestPaths returns the configured project.paths.* values keyed by
// manifest name ("version", "requirements", "requirements-in"). Empty values
// are omitted.
func ManifestPaths() map[string]string {
	out := make(map[string]string, 3)
	for name, key := range map[string]string{
		"version":         KeyPathVersion,
		"requirements":    KeyPathRequire,
		"requirements-in": KeyPathRequireIn,
	} {
		if v := GetString(key); v != "" {
			out[name] = v
		}
	}
	return out
}

// MinPython parses environment.min-python ("3.9").
func MinPython() (major, minor int, err error) {
	raw := GetString(KeyMinPython)
	if raw == "" {
		raw = DefaultMinPython
	}
	if _, err := fmt.Sscanf(raw, "%d.%d", &major, &minor); err != nil {
		return 0, 0, fmt.Errorf("invalid %s %q: %w", KeyMinPython, raw, err)
	}
	return major, minor, nil
}

func configure(settings *initSettings) error {
	workingDir := strings.TrimSpace(settings.workingDir)
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		workingDir = wd
	}

	projectConfigPath := strings.TrimSpace(settings.projectConfigPath)
	if projectConfigPath == "" {
		path, err := findProjectConfig(workingDir)
		if err != nil {
			return err
		}
		projectConfigPath = path
	}

	envFile := strings.TrimSpace(settings.envFile)
	if envFile == "" {
		envFile = filepath.Join(workingDir, ".env")
	}
	// godotenv never overrides variables already present in the process.
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := mergeConfigFile(v, settings.userConfigPath); err != nil {
		return fmt.Errorf("load user config: %w", err)
	}
	if err := mergeConfigFile(v, projectConfigPath); err != nil {
		return fmt.Errorf("load project config: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()
	configInst = v
	return nil
}

func mergeConfigFile(v *viper.Viper, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config path %s is a directory", path)
	}
	//nolint:gosec // G304: Config loader intentionally reads user and project config files
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func findProjectConfig(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", nil
	}
	dir := startDir
	for {
		candidate := filepath.Join(dir, dirName, "config.yaml")
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config path %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyGitHubRepo, "")
	v.SetDefault(KeyGitHubClientID, "")
	v.SetDefault(KeyGitHubAPIURL, "https://api.github.com")
	v.SetDefault(KeyGitHubWebURL, "https://github.com")
	v.SetDefault(KeyPython, "")
	v.SetDefault(KeyMinPython, DefaultMinPython)
	v.SetDefault(KeyLockWait, DefaultLockWait)
	v.SetDefault(KeyRelaunch, "")
	v.SetDefault(KeyRequirements, "")
	v.SetDefault(KeyProjectMode, "")
	v.SetDefault(KeyPathVersion, "")
	v.SetDefault(KeyPathRequire, "")
	v.SetDefault(KeyPathRequireIn, "")
	v.SetDefault(KeyPreserve, []string{})
	v.SetDefault(KeyDeviceTimeout, DefaultDeviceTimeout)
	v.SetDefault(KeyDebug, false)
}

func getViper() (*viper.Viper, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	configMu.RLock()
	defer configMu.RUnlock()
	if configInst == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return configInst, nil
}

// reset clears package state for tests.
func reset() {
	configMu.Lock()
	defer configMu.Unlock()
	configInst = nil
	initErr = nil
	configOnce = sync.Once{}
}

// ResetForTesting clears package state for tests in other packages.
// Returns a cleanup function that should be deferred.
func ResetForTesting(t interface{ TempDir() string }) func() {
	reset()
	tmp := t.TempDir()
	_ = Initialize(WithWorkingDir(tmp), WithUserConfig(filepath.Join(tmp, "config.yaml")))
	return reset
}

// SaveUserValue persists key=value into the user config file, preserving
// other settings. The directory is created if needed.
func SaveUserValue(path, key string, value any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("user config path not set")
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	_ = v.ReadInConfig()
	v.Set(key, value)

	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return Set(key, value)
}
