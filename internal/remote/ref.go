// Package remote names the repository a project updates from and fetches
// its file tree, either through the GitHub API or with a git clone.
package remote

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Ref identifies a remote repository.
type Ref struct {
	// Owner and Name are set for GitHub repositories.
	Owner string
	Name  string
	// URL is set for repositories cloned over git.
	URL string
	// Branch is the ref to fetch. Empty selects the default branch.
	Branch string
}

var (
	ownerRepoRegex = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9-]*)/([A-Za-z0-9._-]+)$`)
	scpLikeRegex   = regexp.MustCompile(`^[^@]+@([^:]+):(.+)$`)
)

// ParseRef accepts "owner/repo", GitHub URLs in https or scp-like form, and
// any other git URL.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, fmt.Errorf("empty repository reference")
	}
	if m := ownerRepoRegex.FindStringSubmatch(s); m != nil {
		return Ref{Owner: m[1], Name: strings.TrimSuffix(m[2], ".git")}, nil
	}
	if m := scpLikeRegex.FindStringSubmatch(s); m != nil && !strings.Contains(s, "://") {
		if strings.EqualFold(m[1], "github.com") {
			return githubPath(m[2], s)
		}
		return Ref{URL: s}, nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Ref{}, fmt.Errorf("invalid repository reference %q (want owner/repo or a git URL)", s)
	}
	if strings.EqualFold(u.Hostname(), "github.com") || strings.EqualFold(u.Hostname(), "www.github.com") {
		return githubPath(u.Path, s)
	}
	return Ref{URL: s}, nil
}

func githubPath(p, orig string) (Ref, error) {
	p = strings.TrimSuffix(strings.Trim(p, "/"), ".git")
	m := ownerRepoRegex.FindStringSubmatch(p)
	if m == nil {
		return Ref{}, fmt.Errorf("invalid GitHub repository %q", orig)
	}
	return Ref{Owner: m[1], Name: m[2]}, nil
}

// IsGitHub reports whether the ref is served by the GitHub API.
func (r Ref) IsGitHub() bool {
	return r.Owner != "" && r.Name != ""
}

// FullName is "owner/repo" for GitHub refs and the URL otherwise.
func (r Ref) FullName() string {
	if r.IsGitHub() {
		return r.Owner + "/" + r.Name
	}
	return r.URL
}

// CloneURL is the git URL for the ref.
func (r Ref) CloneURL() string {
	if r.URL != "" {
		return r.URL
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Name)
}

func (r Ref) String() string {
	if r.Branch != "" {
		return r.FullName() + "@" + r.Branch
	}
	return r.FullName()
}

// WithBranch returns a copy of r pinned to branch.
func (r Ref) WithBranch(branch string) Ref {
	r.Branch = strings.TrimSpace(branch)
	return r
}
