package github

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Limits guarding tarball extraction.
const (
	maxArchiveFiles = 50_000
	maxArchiveBytes = 1 << 30
)

// ErrUnsafePath is returned for archive entries that would escape the
// extraction root.
var ErrUnsafePath = errors.New("unsafe path in archive")

// Entry is one regular file from a source archive.
type Entry struct {
	Path string
	Mode fs.FileMode
	Data []byte
}

// Archive is an extracted source tarball.
type Archive struct {
	// Revision is the commit the archive was produced from, when GitHub
	// encodes it in the top-level directory name.
	Revision string
	Entries  []Entry
}

// Tarball downloads and extracts the repository at ref. An empty ref selects
// the default branch.
func (c *Client) Tarball(ctx context.Context, owner, repo, ref string) (Archive, error) {
	suffix := "/tarball"
	if ref != "" {
		suffix += "/" + url.PathEscape(ref)
	}
	u := c.repoURL(owner, repo, suffix)
	req, err := c.newRequest(ctx, http.MethodGet, u, "application/vnd.github+json", nil)
	if err != nil {
		return Archive{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Archive{}, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Archive{}, apiError(resp, u)
	}
	return ExtractTarball(resp.Body)
}

// ExtractTarball reads a GitHub source .tar.gz. The single top-level
// directory GitHub wraps the tree in ("owner-repo-sha/") is stripped.
func ExtractTarball(r io.Reader) (Archive, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return Archive{}, fmt.Errorf("create gzip reader: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	var out Archive
	tr := tar.NewReader(gzr)
	var prefix string
	var total int64

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Archive{}, fmt.Errorf("read tar: %w", err)
		}
		switch header.Typeflag {
		case tar.TypeXGlobalHeader:
			if sha, ok := header.PAXRecords["comment"]; ok {
				out.Revision = strings.TrimSpace(sha)
			}
			continue
		case tar.TypeReg:
		default:
			// Directories are implied by file paths; links are not carried over.
			continue
		}

		name := strings.TrimPrefix(header.Name, "./")
		if prefix == "" {
			if i := strings.IndexByte(name, '/'); i > 0 {
				prefix = name[:i+1]
			}
		}
		if !strings.HasPrefix(name, prefix) {
			return Archive{}, fmt.Errorf("%w: %q outside %q", ErrUnsafePath, header.Name, prefix)
		}
		rel := strings.TrimPrefix(name, prefix)
		if rel == "" {
			continue
		}
		if !safeRelPath(rel) {
			return Archive{}, fmt.Errorf("%w: %q", ErrUnsafePath, header.Name)
		}

		total += header.Size
		if total > maxArchiveBytes || len(out.Entries) >= maxArchiveFiles {
			return Archive{}, fmt.Errorf("archive exceeds extraction limits")
		}
		data, err := io.ReadAll(io.LimitReader(tr, header.Size))
		if err != nil {
			return Archive{}, fmt.Errorf("extract %s: %w", rel, err)
		}
		mode := fs.FileMode(0o644)
		if header.FileInfo().Mode()&0o111 != 0 {
			mode = 0o755
		}
		out.Entries = append(out.Entries, Entry{Path: rel, Mode: mode, Data: data})
	}
	if out.Revision == "" && prefix != "" {
		parts := strings.Split(strings.TrimSuffix(prefix, "/"), "-")
		out.Revision = parts[len(parts)-1]
	}
	return out, nil
}

// safeRelPath rejects absolute paths, backslashes and any ".." element.
func safeRelPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return false
		}
	}
	return path.Clean(p) == strings.TrimSuffix(p, "/")
}
