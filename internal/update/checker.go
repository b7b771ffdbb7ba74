package update

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"pyseed/internal/project"
	"pyseed/internal/remote"
)

// VersionInfo is the result of comparing local and remote versions.
type VersionInfo struct {
	// Path is the project-root-relative version file.
	Path            string
	Local           Version
	Remote          Version
	UpdateAvailable bool
}

// Checker compares the local version file with the remote one.
type Checker struct {
	Source remote.Source
}

// Check reads the version file for mode locally and from ref. A missing
// local file counts as 0.0.0. An empty ref.Branch tries main, then master.
func (c Checker) Check(ctx context.Context, root string, ref remote.Ref, token string, m project.Mode, o project.Override) (VersionInfo, error) {
	local := project.VersionPath(m, o)
	info := VersionInfo{Path: local, Local: ZeroVersion}

	remotePath, ok := RemotePath(ScopeFor(m), local)
	if !ok {
		return info, fmt.Errorf("version file %s is outside %s/ and is not updated from the remote", local, project.SubtreeDir)
	}

	//nolint:gosec // G304: version path comes from project configuration
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(local)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return info, fmt.Errorf("read %s: %w", local, err)
	default:
		if v, err := ParseVersion(string(data)); err == nil {
			info.Local = v
		}
	}

	raw, err := c.Source.ReadFile(ctx, ref, token, remotePath)
	if err != nil {
		return info, err
	}
	v, err := ParseVersion(string(raw))
	if err != nil {
		return info, fmt.Errorf("remote %s: %w", remotePath, err)
	}
	info.Remote = v
	info.UpdateAvailable = info.Local.LessThan(v)
	return info, nil
}
