package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/tidwall/jsonc"

	"pyseed/internal/fsutil"
)

// Settings is the content of project_config.json in the application data
// root. Comments are accepted when reading.
type Settings struct {
	Mode  Mode          `json:"project_mode,omitempty"`
	Paths ManifestPaths `json:"project_paths"`
}

// ManifestPaths holds custom manifest locations for external repositories.
type ManifestPaths struct {
	Version        string `json:"version_txt,omitempty"`
	Requirements   string `json:"requirements_txt,omitempty"`
	RequirementsIn string `json:"requirements_in,omitempty"`
}

// Map returns the non-empty paths keyed by manifest name.
func (p ManifestPaths) Map() map[string]string {
	out := make(map[string]string, 3)
	if v := strings.TrimSpace(p.Version); v != "" {
		out[ManifestVersion] = v
	}
	if v := strings.TrimSpace(p.Requirements); v != "" {
		out[ManifestRequire] = v
	}
	if v := strings.TrimSpace(p.RequirementsIn); v != "" {
		out[ManifestRequireIn] = v
	}
	return out
}

// LoadSettings reads path. A missing file yields zero Settings.
func LoadSettings(path string) (Settings, error) {
	//nolint:gosec // G304: settings path is derived from the application data root
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Settings{}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read %s: %w", path, err)
	}
	var s Settings
	if err := json.Unmarshal(jsonc.ToJSON(data), &s); err != nil {
		return Settings{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if s.Mode != ModeUnset {
		m, err := ParseMode(string(s.Mode))
		if err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
		s.Mode = m
	}
	return s, nil
}

// SaveSettings writes path atomically.
func SaveSettings(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode project settings: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0644)
}

// OverrideSources are the places an override can come from, highest
// precedence first: command-line flags, manager configuration, then the
// recorded project settings.
type OverrideSources struct {
	FlagMode    string
	FlagPaths   map[string]string
	ConfigMode  string
	ConfigPaths map[string]string
	Stored      Settings
}

// ResolveOverride merges the sources into one Override.
func ResolveOverride(src OverrideSources) (Override, error) {
	var o Override
	for _, raw := range []string{src.FlagMode, src.ConfigMode} {
		m, err := ParseMode(raw)
		if err != nil {
			return Override{}, err
		}
		if m != ModeUnset {
			o.Mode = m
			break
		}
	}
	if o.Mode == ModeUnset {
		o.Mode = src.Stored.Mode
	}

	paths := src.Stored.Paths.Map()
	for _, layer := range []map[string]string{src.ConfigPaths, src.FlagPaths} {
		for k, v := range layer {
			if strings.TrimSpace(v) == "" {
				continue
			}
			switch k {
			case ManifestVersion, ManifestRequire, ManifestRequireIn:
				paths[k] = strings.TrimSpace(v)
			default:
				return Override{}, fmt.Errorf("unknown manifest %q (want %s, %s or %s)",
					k, ManifestVersion, ManifestRequire, ManifestRequireIn)
			}
		}
	}
	if len(paths) > 0 {
		o.Paths = paths
	}
	return o, nil
}

// VersionPath returns the root-relative version file for a mode. External
// repositories may configure their own location.
func VersionPath(m Mode, o Override) string {
	if m == ModeExternal {
		if p, ok := o.Paths[ManifestVersion]; ok {
			return p
		}
	}
	return VersionFile
}

// RequirementsPath returns the root-relative dependency manifest for a mode.
func RequirementsPath(m Mode, o Override) string {
	if m == ModeExternal {
		if p, ok := o.Paths[ManifestRequire]; ok {
			return p
		}
	}
	return RequirementsFile
}
