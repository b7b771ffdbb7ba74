package update

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/zeebo/blake3"
)

// Snapshot maps slash-separated relative paths to blake3 content digests.
type Snapshot map[string]string

// Digest folds the snapshot into one blake3 digest over the sorted
// (path, digest) pairs. Equal trees have equal digests.
func (s Snapshot) Digest() string {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := blake3.New()
	for _, p := range paths {
		_, _ = io.WriteString(h, p)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, s[p])
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SnapshotDir digests every regular file under dir. Paths matched by
// keep are skipped. A missing dir yields an empty snapshot.
func SnapshotDir(dir string, keep gitignore.Matcher) (Snapshot, error) {
	out := Snapshot{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if p == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if keep != nil && keep.Match(strings.Split(rel, "/"), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		//nolint:gosec // G304: walking the project tree
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[rel] = digestBytes(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", dir, err)
	}
	return out, nil
}

// Summary reports what an update changed, or would change in a dry run.
type Summary struct {
	Added        []string
	Modified     []string
	Removed      []string
	Unchanged    int
	BeforeDigest string
	AfterDigest  string
}

// Changed reports whether any file differs.
func (s Summary) Changed() bool {
	return len(s.Added)+len(s.Modified)+len(s.Removed) > 0
}

// Diff compares a local snapshot with the planned files.
func Diff(before, after Snapshot) Summary {
	s := Summary{BeforeDigest: before.Digest(), AfterDigest: after.Digest()}
	for p, d := range after {
		old, ok := before[p]
		switch {
		case !ok:
			s.Added = append(s.Added, p)
		case old != d:
			s.Modified = append(s.Modified, p)
		default:
			s.Unchanged++
		}
	}
	for p := range before {
		if _, ok := after[p]; !ok {
			s.Removed = append(s.Removed, p)
		}
	}
	sort.Strings(s.Added)
	sort.Strings(s.Modified)
	sort.Strings(s.Removed)
	return s
}

// PreserveMatcher builds the matcher for local paths kept across a
// replace. Patterns use .gitignore syntax relative to project/.
func PreserveMatcher(patterns []string) gitignore.Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(p, nil))
	}
	return gitignore.NewMatcher(ps)
}
