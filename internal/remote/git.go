package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	apperrors "pyseed/internal/errors"
)

// GitSource fetches trees with a shallow in-memory clone. It serves
// repositories outside GitHub and GitHub repositories given as URLs. The
// last tree is kept, so a version read followed by an update clones once.
type GitSource struct {
	mu   sync.Mutex
	key  string
	tree Tree

	// cloneRepo replaces clone in tests.
	cloneRepo func(ctx context.Context, ref Ref, token string) (*git.Repository, error)
}

// Fetch implements Source.
func (s *GitSource) Fetch(ctx context.Context, ref Ref, token string) (Tree, error) {
	key := ref.CloneURL() + "\x00" + ref.Branch + "\x00" + token
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == key {
		return s.tree, nil
	}
	cloneRepo := s.cloneRepo
	if cloneRepo == nil {
		cloneRepo = clone
	}
	repo, err := cloneRepo(ctx, ref, token)
	if err != nil {
		return Tree{}, err
	}
	t, err := treeFromRepository(repo)
	if err != nil {
		return Tree{}, err
	}
	s.key, s.tree = key, t
	return t, nil
}

// ReadFile implements Source. The whole branch is cloned; the git protocol
// has no single-file fetch.
func (s *GitSource) ReadFile(ctx context.Context, ref Ref, token, path string) ([]byte, error) {
	t, err := s.Fetch(ctx, ref, token)
	if err != nil {
		return nil, err
	}
	f, ok := t.Files[strings.Trim(filepath.ToSlash(path), "/")]
	if !ok {
		return nil, apperrors.New(apperrors.CodeRepositoryNotFound,
			fmt.Sprintf("%s not found in %s", path, ref), nil)
	}
	return f.Data, nil
}

func clone(ctx context.Context, ref Ref, token string) (*git.Repository, error) {
	opts := &git.CloneOptions{
		URL:          ref.CloneURL(),
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if ref.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref.Branch)
	}
	if token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: token}
	}
	repo, err := git.CloneContext(ctx, memory.NewStorage(), memfs.New(), opts)
	if err != nil {
		return nil, classifyGit(ref, err)
	}
	return repo, nil
}

func classifyGit(ref Ref, err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound), errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, transport.ErrEmptyRemoteRepository):
		return apperrors.New(apperrors.CodeRepositoryNotFound,
			fmt.Sprintf("repository %s not found", ref), err)
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return apperrors.New(apperrors.CodeAuthRequired,
			fmt.Sprintf("%s requires authentication", ref), err)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return apperrors.New(apperrors.CodeAuthDenied,
			fmt.Sprintf("credentials rejected for %s", ref), err)
	default:
		return apperrors.New(apperrors.CodeRemoteUnreachable,
			fmt.Sprintf("could not clone %s", ref), err)
	}
}

// treeFromRepository reads every regular file of HEAD's commit tree.
func treeFromRepository(repo *git.Repository) (Tree, error) {
	head, err := repo.Head()
	if err != nil {
		return Tree{}, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return Tree{}, fmt.Errorf("load commit %s: %w", head.Hash(), err)
	}
	files, err := commit.Files()
	if err != nil {
		return Tree{}, fmt.Errorf("list files: %w", err)
	}
	t := Tree{Revision: head.Hash().String(), Files: make(map[string]File)}
	err = files.ForEach(func(f *object.File) error {
		if f.Mode != filemode.Regular && f.Mode != filemode.Executable && f.Mode != filemode.Deprecated {
			return nil
		}
		r, err := f.Reader()
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer func() { _ = r.Close() }()
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		file := File{Data: data, Mode: 0o644}
		if f.Mode == filemode.Executable {
			file.Mode = 0o755
		}
		t.Files[f.Name] = file
		return nil
	})
	if err != nil {
		return Tree{}, err
	}
	return t, nil
}

// DiscoverOrigin returns the "origin" remote URL of the repository at root,
// or of root/project when root itself is not a repository.
func DiscoverOrigin(root string) (string, error) {
	var lastErr error
	for _, dir := range []string{root, filepath.Join(root, "project")} {
		repo, err := git.PlainOpen(dir)
		if err != nil {
			lastErr = err
			continue
		}
		remote, err := repo.Remote("origin")
		if err != nil {
			lastErr = err
			continue
		}
		if urls := remote.Config().URLs; len(urls) > 0 {
			return urls[0], nil
		}
	}
	if lastErr == nil {
		lastErr = git.ErrRemoteNotFound
	}
	return "", fmt.Errorf("discover origin remote: %w", lastErr)
}

// SourceFor picks the Source for ref.
func SourceFor(ref Ref, gh GitHubSource) Source {
	if ref.IsGitHub() {
		return gh
	}
	return &GitSource{}
}
