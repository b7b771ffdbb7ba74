package remote

import (
	"context"
	"io/fs"
	"sort"
	"strings"
)

// File is one file of a fetched tree.
type File struct {
	Data []byte
	Mode fs.FileMode
}

// Tree is a fetched repository snapshot keyed by slash-separated path.
type Tree struct {
	Revision string
	Files    map[string]File
}

// Paths returns the file paths in lexical order.
func (t Tree) Paths() []string {
	out := make([]string, 0, len(t.Files))
	for p := range t.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Subtree returns the files under dir with the dir prefix removed. ok is
// false when no file lives under dir.
func (t Tree) Subtree(dir string) (Tree, bool) {
	prefix := strings.Trim(dir, "/") + "/"
	out := Tree{Revision: t.Revision, Files: make(map[string]File)}
	for p, f := range t.Files {
		if rest, found := strings.CutPrefix(p, prefix); found && rest != "" {
			out.Files[rest] = f
		}
	}
	return out, len(out.Files) > 0
}

// Source fetches repository content. token is empty for anonymous access.
type Source interface {
	// Fetch downloads the whole tree at ref.Branch.
	Fetch(ctx context.Context, ref Ref, token string) (Tree, error)
	// ReadFile reads one file. An empty ref.Branch tries main, then master.
	ReadFile(ctx context.Context, ref Ref, token, path string) ([]byte, error)
}

// DefaultBranches are tried in order when no branch is configured.
var DefaultBranches = []string{"main", "master"}
