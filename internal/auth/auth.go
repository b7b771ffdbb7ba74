// Package auth resolves a GitHub credential for private repository access.
//
// Sources are tried in order, each only when the previous one is absent or
// rejected by the validator:
//
//  1. github_auth.json, an explicit {"token": "..."}
//  2. github_token.json, the token cached by an earlier device authorization
//  3. the interactive OAuth device flow, whose token is then cached
//
// No credential file is written unless the device flow succeeds.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"pyseed/internal/config"
	apperrors "pyseed/internal/errors"
	"pyseed/internal/github"
	"pyseed/internal/logging"
)

// Source names where a credential came from.
type Source string

const (
	SourceNone              Source = "none"
	SourceConfigFileToken   Source = "config_file_token"
	SourceCachedDeviceToken Source = "cached_device_token"
)

// Credential is a bearer token and its origin. The zero value means
// anonymous access.
type Credential struct {
	Token  string
	Source Source
}

// Anonymous reports whether c carries no token.
func (c Credential) Anonymous() bool {
	return c.Token == ""
}

// ErrRejected is returned by a Validator for tokens the server refuses.
var ErrRejected = errors.New("token rejected")

// Validator checks a token before it is used.
type Validator interface {
	Validate(ctx context.Context, token string) error
}

// GitHubValidator validates tokens against GET /user.
type GitHubValidator struct {
	Client *github.Client
}

// Validate implements Validator.
func (v GitHubValidator) Validate(ctx context.Context, token string) error {
	err := v.Client.WithToken(token).ValidateToken(ctx)
	if errors.Is(err, github.ErrUnauthorized) {
		return ErrRejected
	}
	return err
}

// Resolver walks the credential chain.
type Resolver struct {
	ConfigPath string
	CachePath  string
	// ClientID is the OAuth app used for the device flow. The value
	// config.PublicClientID marks a repository that is read anonymously.
	ClientID string
	// Client serves the device authorization endpoints.
	Client    *github.Client
	Validator Validator
	// Timeout bounds the device flow. Zero uses config.DefaultDeviceTimeout.
	Timeout time.Duration
	// Prompt shows the verification URL and user code. copied reports
	// whether the code was placed on the clipboard.
	Prompt func(code github.DeviceCode, copied bool)
	Logger *slog.Logger

	copyText func(string) error
	wait     func(time.Duration) <-chan time.Time
	now      func() time.Time
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return logging.L()
}

func (r *Resolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// Resolve returns the first usable credential. The repository is only
// used for log context.
func (r *Resolver) Resolve(ctx context.Context, repo string) (Credential, error) {
	log := r.logger().With("repository", repo)
	if strings.TrimSpace(r.ClientID) == config.PublicClientID {
		log.Info("repository configured as public, using anonymous access")
		return Credential{Source: SourceNone}, nil
	}

	cred, err := r.Stored(ctx)
	if err != nil {
		return Credential{}, err
	}
	if !cred.Anonymous() {
		log.Info("using stored credential", "source", cred.Source)
		return cred, nil
	}
	return r.Login(ctx)
}

// Stored returns the first stored credential the validator accepts,
// without starting the device flow. No stored credential yields
// SourceNone.
func (r *Resolver) Stored(ctx context.Context) (Credential, error) {
	log := r.logger()

	token, err := loadConfigToken(r.ConfigPath)
	if err != nil {
		log.Warn("ignoring unreadable auth config", "path", r.ConfigPath, "error", err)
	}
	if token != "" {
		ok, err := r.valid(ctx, token)
		if err != nil {
			return Credential{}, err
		}
		if ok {
			return Credential{Token: token, Source: SourceConfigFileToken}, nil
		}
		log.Warn("auth config token rejected", "path", r.ConfigPath)
	}

	cached, err := loadCachedToken(r.CachePath)
	if err != nil {
		log.Warn("ignoring unreadable token cache", "path", r.CachePath, "error", err)
	}
	if cached.AccessToken != "" {
		ok, err := r.valid(ctx, cached.AccessToken)
		if err != nil {
			return Credential{}, err
		}
		if ok {
			return Credential{Token: cached.AccessToken, Source: SourceCachedDeviceToken}, nil
		}
		log.Warn("cached device token rejected", "path", r.CachePath, "obtained_at", cached.ObtainedAt)
	}
	return Credential{Source: SourceNone}, nil
}

func (r *Resolver) valid(ctx context.Context, token string) (bool, error) {
	if r.Validator == nil {
		return true, nil
	}
	err := r.Validator.Validate(ctx, token)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrRejected):
		return false, nil
	default:
		return false, apperrors.New(apperrors.CodeRemoteUnreachable, "could not validate credential", err)
	}
}

// Login runs the device flow and caches the resulting token.
func (r *Resolver) Login(ctx context.Context) (Credential, error) {
	clientID := strings.TrimSpace(r.ClientID)
	if clientID == "" || clientID == config.PublicClientID {
		return Credential{}, apperrors.New(apperrors.CodeAuthRequired,
			fmt.Sprintf("authentication required but no OAuth client id is configured; set %s", config.KeyGitHubClientID), nil)
	}
	tok, err := r.deviceFlow(ctx, clientID)
	if err != nil {
		return Credential{}, err
	}
	cached := cachedToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Scope:       tok.Scope,
		ObtainedAt:  r.clock(),
	}
	if err := saveCachedToken(r.CachePath, cached); err != nil {
		return Credential{}, fmt.Errorf("save token cache: %w", err)
	}
	r.logger().Info("device authorization complete", "cache", r.CachePath)
	return Credential{Token: tok.AccessToken, Source: SourceCachedDeviceToken}, nil
}

// Logout removes the cached device token. A missing cache is not an error.
func (r *Resolver) Logout() error {
	err := os.Remove(r.CachePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token cache: %w", err)
	}
	return nil
}

func (r *Resolver) copyToClipboard(text string) bool {
	copyText := r.copyText
	if copyText == nil {
		copyText = clipboard.WriteAll
	}
	if err := copyText(text); err != nil {
		r.logger().Debug("clipboard unavailable", "error", err)
		return false
	}
	return true
}
