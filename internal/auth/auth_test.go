package auth

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "pyseed/internal/errors"
	"pyseed/internal/github"
	"pyseed/internal/github/githubtest"
)

type fixture struct {
	srv      *githubtest.Server
	resolver *Resolver
	dir      string
	prompted []github.DeviceCode
	waits    []time.Duration
	mu       sync.Mutex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := githubtest.NewServer()
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	client := github.NewClient(github.WithAPIURL(srv.URL), github.WithWebURL(srv.URL))
	f := &fixture{srv: srv, dir: dir}
	f.resolver = &Resolver{
		ConfigPath: filepath.Join(dir, "github_auth.json"),
		CachePath:  filepath.Join(dir, "github_token.json"),
		ClientID:   "Iv1.test",
		Client:     client,
		Validator:  GitHubValidator{Client: client},
		Timeout:    time.Minute,
		Prompt: func(code github.DeviceCode, _ bool) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.prompted = append(f.prompted, code)
		},
		copyText: func(string) error { return nil },
		wait: func(d time.Duration) <-chan time.Time {
			f.mu.Lock()
			f.waits = append(f.waits, d)
			f.mu.Unlock()
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
		now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func (f *fixture) writeConfigToken(t *testing.T, token string) {
	t.Helper()
	body := "{\n  // explicit token\n  \"token\": \"" + token + "\",\n}\n"
	require.NoError(t, os.WriteFile(f.resolver.ConfigPath, []byte(body), 0o600))
}

func (f *fixture) writeCachedToken(t *testing.T, token string) {
	t.Helper()
	require.NoError(t, saveCachedToken(f.resolver.CachePath, cachedToken{AccessToken: token, ObtainedAt: time.Now()}))
}

func TestConfigTokenWinsOverCachedToken(t *testing.T) {
	f := newFixture(t)
	f.srv.AcceptToken("cfg-token")
	f.srv.AcceptToken("cached-token")
	f.writeConfigToken(t, "cfg-token")
	f.writeCachedToken(t, "cached-token")

	cred, err := f.resolver.Resolve(context.Background(), "acme/secret")
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "cfg-token", Source: SourceConfigFileToken}, cred)
	assert.Zero(t, f.srv.Polls())
}

func TestCachedTokenUsedWhenNoConfigToken(t *testing.T) {
	f := newFixture(t)
	f.srv.AcceptToken("cached-token")
	f.writeCachedToken(t, "cached-token")

	cred, err := f.resolver.Resolve(context.Background(), "acme/secret")
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "cached-token", Source: SourceCachedDeviceToken}, cred)
}

func TestRejectedConfigTokenFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.srv.AcceptToken("cached-token")
	f.writeConfigToken(t, "revoked")
	f.writeCachedToken(t, "cached-token")

	cred, err := f.resolver.Resolve(context.Background(), "acme/secret")
	require.NoError(t, err)
	assert.Equal(t, SourceCachedDeviceToken, cred.Source)
}

func TestDeviceFlowPersistsToken(t *testing.T) {
	f := newFixture(t)
	f.srv.ScriptDevice("Iv1.test",
		githubtest.DeviceStep{Error: github.DeviceAuthorizationPending},
		githubtest.DeviceStep{Token: "fresh-token"},
	)

	cred, err := f.resolver.Resolve(context.Background(), "acme/secret")
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "fresh-token", Source: SourceCachedDeviceToken}, cred)
	require.Len(t, f.prompted, 1)
	assert.Equal(t, "ABCD-1234", f.prompted[0].UserCode)
	assert.Equal(t, 2, f.srv.Polls())

	info, err := os.Stat(f.resolver.CachePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	cached, err := loadCachedToken(f.resolver.CachePath)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cached.AccessToken)
	assert.Equal(t, f.resolver.now(), cached.ObtainedAt)
}

func TestDeviceFlowSlowDownIncreasesInterval(t *testing.T) {
	f := newFixture(t)
	f.srv.ScriptDevice("Iv1.test",
		githubtest.DeviceStep{Error: github.DeviceSlowDown},
		githubtest.DeviceStep{Token: "fresh-token"},
	)

	_, err := f.resolver.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, 6 * time.Second}, f.waits)
}

func TestDeviceFlowTimeoutWritesNoTokenFile(t *testing.T) {
	f := newFixture(t)
	f.srv.ScriptDevice("Iv1.test", githubtest.DeviceStep{Error: github.DeviceAuthorizationPending})
	f.resolver.Timeout = 100 * time.Millisecond
	f.resolver.wait = func(time.Duration) <-chan time.Time { return time.After(5 * time.Millisecond) }

	_, err := f.resolver.Resolve(context.Background(), "acme/secret")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAuthTimedOut, apperrors.CodeOf(err))
	assert.NoFileExists(t, f.resolver.CachePath)
	assert.Positive(t, f.srv.Polls())
}

func TestDeviceFlowExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.srv.ScriptDevice("Iv1.test", githubtest.DeviceStep{Error: github.DeviceExpired})

	_, err := f.resolver.Login(context.Background())
	assert.Equal(t, apperrors.CodeAuthTimedOut, apperrors.CodeOf(err))
	assert.NoFileExists(t, f.resolver.CachePath)
}

func TestDeviceFlowDenied(t *testing.T) {
	f := newFixture(t)
	f.srv.ScriptDevice("Iv1.test", githubtest.DeviceStep{Error: github.DeviceAccessDenied})

	_, err := f.resolver.Resolve(context.Background(), "acme/secret")
	assert.Equal(t, apperrors.CodeAuthDenied, apperrors.CodeOf(err))
	assert.NoFileExists(t, f.resolver.CachePath)
}

func TestDeviceFlowCancelledByCaller(t *testing.T) {
	f := newFixture(t)
	f.srv.ScriptDevice("Iv1.test", githubtest.DeviceStep{Error: github.DeviceAuthorizationPending})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.resolver.Prompt = func(github.DeviceCode, bool) { cancel() }
	f.resolver.wait = func(time.Duration) <-chan time.Time { return nil }

	_, err := f.resolver.Login(ctx)
	assert.Equal(t, apperrors.CodeAuthDenied, apperrors.CodeOf(err))
	assert.NoFileExists(t, f.resolver.CachePath)
}

func TestMissingClientIDRequiresAuth(t *testing.T) {
	f := newFixture(t)
	f.resolver.ClientID = ""

	_, err := f.resolver.Resolve(context.Background(), "acme/secret")
	assert.Equal(t, apperrors.CodeAuthRequired, apperrors.CodeOf(err))
}

func TestPublicClientIDIsAnonymous(t *testing.T) {
	f := newFixture(t)
	f.resolver.ClientID = "public_repo"
	f.srv.AcceptToken("cfg-token")
	f.writeConfigToken(t, "cfg-token")

	cred, err := f.resolver.Resolve(context.Background(), "acme/app")
	require.NoError(t, err)
	assert.True(t, cred.Anonymous())
	assert.Equal(t, SourceNone, cred.Source)
}

func TestStoredDoesNotStartDeviceFlow(t *testing.T) {
	f := newFixture(t)
	cred, err := f.resolver.Stored(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceNone, cred.Source)
	assert.Zero(t, f.srv.Count("POST /login/device/code"))
}

func TestValidatorNetworkFailureIsNotRejection(t *testing.T) {
	f := newFixture(t)
	f.writeConfigToken(t, "cfg-token")
	f.srv.Close()

	_, err := f.resolver.Resolve(context.Background(), "acme/secret")
	assert.Equal(t, apperrors.CodeRemoteUnreachable, apperrors.CodeOf(err))
}

func TestLogoutRemovesCache(t *testing.T) {
	f := newFixture(t)
	f.writeCachedToken(t, "cached-token")
	require.NoError(t, f.resolver.Logout())
	assert.NoFileExists(t, f.resolver.CachePath)
	require.NoError(t, f.resolver.Logout())
}
