package remote

import (
	"context"
	"errors"
	"fmt"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/github"
)

// GitHubSource fetches trees as source tarballs through the REST API.
type GitHubSource struct {
	Client *github.Client
}

// Fetch implements Source.
func (s GitHubSource) Fetch(ctx context.Context, ref Ref, token string) (Tree, error) {
	if !ref.IsGitHub() {
		return Tree{}, fmt.Errorf("%s is not a GitHub repository", ref)
	}
	a, err := s.Client.WithToken(token).Tarball(ctx, ref.Owner, ref.Name, ref.Branch)
	if err != nil {
		return Tree{}, classify(ref, err)
	}
	t := Tree{Revision: a.Revision, Files: make(map[string]File, len(a.Entries))}
	for _, e := range a.Entries {
		t.Files[e.Path] = File{Data: e.Data, Mode: e.Mode}
	}
	return t, nil
}

// ReadFile implements Source.
func (s GitHubSource) ReadFile(ctx context.Context, ref Ref, token, path string) ([]byte, error) {
	client := s.Client.WithToken(token)
	branches := DefaultBranches
	if ref.Branch != "" {
		branches = []string{ref.Branch}
	}
	var lastErr error
	for _, b := range branches {
		data, err := client.FileContent(ctx, ref.Owner, ref.Name, path, b)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !errors.Is(err, github.ErrNotFound) {
			break
		}
	}
	return nil, classify(ref, lastErr)
}

// classify maps client errors onto the application error codes.
func classify(ref Ref, err error) error {
	switch {
	case errors.Is(err, github.ErrNotFound):
		return apperrors.New(apperrors.CodeRepositoryNotFound,
			fmt.Sprintf("repository %s not found or not accessible", ref), err)
	case errors.Is(err, github.ErrUnauthorized):
		return apperrors.New(apperrors.CodeAuthDenied,
			fmt.Sprintf("credentials rejected for %s", ref), err)
	case errors.Is(err, github.ErrUnsafePath):
		return apperrors.New(apperrors.CodeInvalidTree,
			fmt.Sprintf("archive of %s contains unsafe paths", ref), err)
	default:
		return apperrors.New(apperrors.CodeRemoteUnreachable,
			fmt.Sprintf("could not reach %s", ref), err)
	}
}
