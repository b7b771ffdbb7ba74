package project

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Conventional paths relative to the project root, slash separated.
const (
	SubtreeDir         = "project"
	VersionFile        = "project/requirements/version.txt"
	RequirementsFile   = "project/requirements/requirements.txt"
	RequirementsInFile = "project/requirements/requirements.in"

	relocatedVersion = "project/version.txt"
	relocatedRequire = "project/requirements.txt"
	requirementsDir  = "project/requirements"
	gitDir           = ".git"
	subtreeGitDir    = "project/.git"
)

// Manifest names used as Override.Paths keys.
const (
	ManifestVersion   = "version"
	ManifestRequire   = "requirements"
	ManifestRequireIn = "requirements-in"
)

// Source says which predicate decided a Classification.
type Source string

const (
	SourceOverride  Source = "override"
	SourcePaths     Source = "paths"
	SourceHeuristic Source = "heuristic"
)

// Override is the escape hatch read before the structural heuristic.
type Override struct {
	Mode Mode
	// Paths maps manifest names (ManifestVersion, ...) to root-relative paths.
	Paths map[string]string
}

// Facts are the filesystem observations classification depends on.
type Facts struct {
	GitMetadata       bool
	VersionFile       bool
	RequirementsFile  bool
	RequirementsDir   bool
	RelocatedManifest bool
	// ConfiguredPathsExist is true when at least one override path exists.
	ConfiguredPathsExist bool
}

// Classification is the result of Classify.
type Classification struct {
	Mode      Mode
	Source    Source
	Ambiguous bool
	Reason    string
}

// Classify inspects root and applies ClassifyFacts.
func Classify(root string, o Override) Classification {
	return ClassifyFacts(Gather(os.DirFS(root), o.Paths), o)
}

// ClassifyFacts applies the ordered predicates. It is total: every input
// yields exactly one mode.
func ClassifyFacts(f Facts, o Override) Classification {
	switch {
	case o.Mode != ModeUnset:
		return Classification{Mode: o.Mode, Source: SourceOverride, Reason: "mode set explicitly"}
	case f.ConfiguredPathsExist:
		return Classification{Mode: ModeExternal, Source: SourcePaths, Reason: "custom manifest paths configured"}
	case !f.GitMetadata:
		return Classification{Mode: ModeTemplate, Source: SourceHeuristic, Reason: "no version-control metadata"}
	case f.VersionFile && f.RequirementsFile:
		return Classification{Mode: ModePySeed, Source: SourceHeuristic, Reason: "manifests at conventional paths"}
	case f.VersionFile || f.RequirementsFile || f.RequirementsDir || f.RelocatedManifest:
		return Classification{
			Mode:      ModeExternal,
			Source:    SourceHeuristic,
			Ambiguous: true,
			Reason:    "manifests partially present or relocated; defaulting to full replace",
		}
	default:
		return Classification{Mode: ModeExternal, Source: SourceHeuristic, Reason: "no manifests at conventional paths"}
	}
}

// Gather collects Facts from fsys rooted at the project root.
func Gather(fsys fs.FS, paths map[string]string) Facts {
	f := Facts{
		GitMetadata:      exists(fsys, gitDir) || exists(fsys, subtreeGitDir),
		VersionFile:      isFile(fsys, VersionFile),
		RequirementsFile: isFile(fsys, RequirementsFile),
		RequirementsDir:  isDir(fsys, requirementsDir),
		RelocatedManifest: isFile(fsys, relocatedVersion) ||
			isFile(fsys, relocatedRequire),
	}
	for _, p := range paths {
		if rel, ok := relPath(p); ok && isFile(fsys, rel) {
			f.ConfiguredPathsExist = true
			break
		}
	}
	return f
}

// relPath converts a configured path to an fs.FS path. Absolute paths and
// paths escaping the root are rejected.
func relPath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return "", false
	}
	clean := path.Clean(filepath.ToSlash(p))
	if !fs.ValidPath(clean) {
		return "", false
	}
	return clean, true
}

func exists(fsys fs.FS, name string) bool {
	_, err := fs.Stat(fsys, name)
	return err == nil
}

func isFile(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.Mode().IsRegular()
}

func isDir(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}
