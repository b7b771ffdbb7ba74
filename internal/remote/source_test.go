package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/github"
	"pyseed/internal/github/githubtest"
)

func TestGitHubSourceFetchAndReadFile(t *testing.T) {
	srv := githubtest.NewServer()
	defer srv.Close()
	srv.AddRepo("acme/app", &githubtest.Repo{Branches: map[string]map[string]string{
		"master": {
			"project/requirements/version.txt": "2.0.0\n",
			"project/main.py":                  "print(2)\n",
		},
	}, DefaultBranch: "master"})

	src := GitHubSource{Client: github.NewClient(github.WithAPIURL(srv.URL))}
	ref := Ref{Owner: "acme", Name: "app"}
	ctx := context.Background()

	tree, err := src.Fetch(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"project/main.py", "project/requirements/version.txt"}, tree.Paths())

	// main is missing, so the read falls back to master.
	data, err := src.ReadFile(ctx, ref, "", "project/requirements/version.txt")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0\n", string(data))
	assert.Equal(t, 2, srv.Count("GET /repos/acme/app/contents/project/requirements/version.txt"))
}

func TestGitHubSourceErrorsAreClassified(t *testing.T) {
	srv := githubtest.NewServer()
	defer srv.Close()
	srv.AddRepo("acme/secret", &githubtest.Repo{Private: true, Branches: map[string]map[string]string{"main": {}}})

	src := GitHubSource{Client: github.NewClient(github.WithAPIURL(srv.URL))}
	_, err := src.Fetch(context.Background(), Ref{Owner: "acme", Name: "secret"}, "")
	assert.Equal(t, apperrors.CodeRepositoryNotFound, apperrors.CodeOf(err))

	srv.Close()
	_, err = src.Fetch(context.Background(), Ref{Owner: "acme", Name: "secret"}, "")
	assert.Equal(t, apperrors.CodeRemoteUnreachable, apperrors.CodeOf(err))
}

func initRepo(t *testing.T, dir string, files map[string]string) *git.Repository {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return repo
}

func TestTreeFromRepository(t *testing.T) {
	repo := initRepo(t, t.TempDir(), map[string]string{
		"README.md":       "# app\n",
		"project/main.py": "print(1)\n",
	})
	tree, err := treeFromRepository(repo)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "project/main.py"}, tree.Paths())
	assert.Len(t, tree.Revision, 40)
	assert.Equal(t, "print(1)\n", string(tree.Files["project/main.py"].Data))
}

func TestDiscoverOrigin(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	repo := initRepo(t, sub, map[string]string{"main.py": "x"})
	_, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{"https://github.com/acme/app.git"}})
	require.NoError(t, err)

	got, err := DiscoverOrigin(root)
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/acme/app.git", got)

	_, err = DiscoverOrigin(t.TempDir())
	assert.Error(t, err)
}

func TestSourceFor(t *testing.T) {
	gh := GitHubSource{}
	assert.IsType(t, GitHubSource{}, SourceFor(Ref{Owner: "a", Name: "b"}, gh))
	assert.IsType(t, &GitSource{}, SourceFor(Ref{URL: "https://gitlab.com/a/b.git"}, gh))
}

func TestGitSourceClonesOncePerRef(t *testing.T) {
	repo := initRepo(t, t.TempDir(), map[string]string{
		"requirements/version.txt": "1.4.0\n",
		"main.py":                  "print(1)\n",
	})
	clones := 0
	src := &GitSource{cloneRepo: func(context.Context, Ref, string) (*git.Repository, error) {
		clones++
		return repo, nil
	}}
	ref := Ref{URL: "https://git.example.com/acme/app.git"}
	ctx := context.Background()

	data, err := src.ReadFile(ctx, ref, "", "requirements/version.txt")
	require.NoError(t, err)
	assert.Equal(t, "1.4.0\n", string(data))

	tree, err := src.Fetch(ctx, ref, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "requirements/version.txt"}, tree.Paths())
	assert.Equal(t, 1, clones)

	_, err = src.Fetch(ctx, ref.WithBranch("develop"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, clones)

	_, err = src.ReadFile(ctx, ref, "", "missing.txt")
	assert.Equal(t, apperrors.CodeRepositoryNotFound, apperrors.CodeOf(err))
}
