// Package update plans and applies project updates from a remote
// repository, scoped by the project's mode.
package update

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/project"
	"pyseed/internal/remote"
)

// Scope is the part of the remote tree an update installs into project/.
type Scope string

const (
	// ScopeSubtree installs the remote project/ directory.
	ScopeSubtree Scope = "project-subtree"
	// ScopeWholeTree installs the entire remote repository.
	ScopeWholeTree Scope = "whole-tree"
)

// ScopeFor returns the update scope of a mode.
func ScopeFor(m project.Mode) Scope {
	if m.WholeTree() {
		return ScopeWholeTree
	}
	return ScopeSubtree
}

// Plan is a validated update, computed before anything is written.
type Plan struct {
	Mode     project.Mode
	Scope    Scope
	Ref      remote.Ref
	Revision string
	// Files maps paths relative to project/ to content digests.
	Files Snapshot

	payload map[string]remote.File
}

// Paths returns the planned file paths in lexical order.
func (p Plan) Paths() []string {
	out := make([]string, 0, len(p.Files))
	for f := range p.Files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Overwrites reports whether installing p clashes with the plan: p is a
// planned file, sits below one, or is the parent of planned files.
func (p Plan) Overwrites(rel string) bool {
	if _, ok := p.Files[rel]; ok {
		return true
	}
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if _, ok := p.Files[dir]; ok {
			return true
		}
	}
	prefix := rel + "/"
	for f := range p.Files {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

// Expected returns what project/ holds once p is installed over before.
// Subtree updates overwrite the planned files and keep every other local
// file; whole-tree updates replace project/ entirely.
func (p Plan) Expected(before Snapshot) Snapshot {
	if p.Scope != ScopeSubtree {
		return p.Files
	}
	out := make(Snapshot, len(before)+len(p.Files))
	for f, d := range before {
		if !p.Overwrites(f) {
			out[f] = d
		}
	}
	for f, d := range p.Files {
		out[f] = d
	}
	return out
}

// NewPlan validates tree for mode. Validation fails for an empty tree, a
// missing project/ subtree in subtree scope, unsafe paths and manifests
// that are not valid UTF-8.
func NewPlan(m project.Mode, ref remote.Ref, tree remote.Tree, o project.Override) (Plan, error) {
	if len(tree.Files) == 0 {
		return Plan{}, apperrors.New(apperrors.CodeInvalidTree,
			fmt.Sprintf("remote %s has no files", ref), nil)
	}
	scope := ScopeFor(m)
	if scope == ScopeSubtree {
		sub, ok := tree.Subtree(project.SubtreeDir)
		if !ok {
			return Plan{}, apperrors.New(apperrors.CodeInvalidTree,
				fmt.Sprintf("remote %s has no %s/ directory; set the project mode to external to mirror the whole repository", ref, project.SubtreeDir), nil)
		}
		tree = sub
	}

	var unsafe, badEncoding []string
	manifests := manifestSet(scope, o)
	plan := Plan{
		Mode:     m,
		Scope:    scope,
		Ref:      ref,
		Revision: tree.Revision,
		Files:    make(Snapshot, len(tree.Files)),
		payload:  make(map[string]remote.File, len(tree.Files)),
	}
	for p, f := range tree.Files {
		if !safePath(p) {
			unsafe = append(unsafe, p)
			continue
		}
		if isManifest(p, manifests) && !utf8.Valid(f.Data) {
			badEncoding = append(badEncoding, p)
		}
		plan.Files[p] = digestBytes(f.Data)
		plan.payload[p] = f
	}
	if len(unsafe) > 0 {
		sort.Strings(unsafe)
		return Plan{}, apperrors.New(apperrors.CodeInvalidTree,
			fmt.Sprintf("remote %s contains unsafe paths: %s", ref, strings.Join(unsafe, ", ")), nil)
	}
	if len(badEncoding) > 0 {
		sort.Strings(badEncoding)
		return Plan{}, apperrors.New(apperrors.CodeEncodingError,
			fmt.Sprintf("manifests are not valid UTF-8: %s", strings.Join(badEncoding, ", ")), nil)
	}
	return plan, nil
}

// safePath rejects absolute paths, parent references and anything inside
// version-control metadata.
func safePath(p string) bool {
	if p == "" || strings.Contains(p, "\\") || !fs.ValidPath(p) {
		return false
	}
	first, _, _ := strings.Cut(p, "/")
	return first != ".git"
}

// RemotePath maps a project-root-relative path to its location in the
// remote tree. Whole-tree updates mirror the remote root into project/, so
// only paths under project/ have a remote counterpart.
func RemotePath(scope Scope, local string) (string, bool) {
	local = path.Clean(strings.TrimPrefix(strings.ReplaceAll(strings.TrimSpace(local), "\\", "/"), "./"))
	if scope == ScopeSubtree {
		return local, fs.ValidPath(local)
	}
	rest, ok := strings.CutPrefix(local, project.SubtreeDir+"/")
	if !ok || !fs.ValidPath(rest) {
		return "", false
	}
	return rest, true
}

// manifestSet returns the plan-relative paths of configured manifests.
func manifestSet(scope Scope, o project.Override) map[string]bool {
	out := make(map[string]bool)
	for _, p := range o.Paths {
		r, ok := RemotePath(scope, p)
		if !ok {
			continue
		}
		if scope == ScopeSubtree {
			r, ok = strings.CutPrefix(r, project.SubtreeDir+"/")
			if !ok {
				continue
			}
		}
		out[r] = true
	}
	return out
}

// isManifest reports whether p is a text manifest checked for encoding.
func isManifest(p string, configured map[string]bool) bool {
	if configured[p] {
		return true
	}
	base := path.Base(p)
	switch {
	case base == "version.txt":
		return true
	case strings.HasPrefix(base, "requirements") && strings.HasSuffix(base, ".txt"):
		return true
	case strings.HasSuffix(base, ".in"):
		return true
	default:
		return false
	}
}
