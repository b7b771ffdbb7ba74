// Package github is a small GitHub REST client covering what pyseed needs:
// repository visibility, file contents, source tarballs, token validation
// and the OAuth device flow.
package github

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Default configuration values.
const (
	DefaultAPIURL  = "https://api.github.com"
	DefaultWebURL  = "https://github.com"
	DefaultTimeout = 30 * time.Second
	userAgent      = "pyseed"
	cacheSize      = 128
)

// Error variables for specific error conditions.
var (
	ErrNetworkFailure = errors.New("network request failed")
	ErrRateLimited    = errors.New("rate limited by GitHub API")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("credentials rejected")
)

// APIError carries a non-success response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("github: %s: %d %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("github: %s: %d", e.URL, e.StatusCode)
}

// Unwrap maps status codes onto the sentinel errors.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden, http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

type cachedResponse struct {
	etag string
	body []byte
}

// Client talks to the GitHub REST API.
type Client struct {
	apiURL     string
	webURL     string
	token      string
	httpClient *http.Client
	cache      *lru.Cache[string, cachedResponse]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAPIURL points the client at a different API root, such as GitHub
// Enterprise or a test server.
func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.apiURL = u
		}
	}
}

// WithWebURL sets the site root used for the device flow endpoints.
func WithWebURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.webURL = u
		}
	}
}

// NewClient creates an anonymous client.
func NewClient(opts ...Option) *Client {
	cache, _ := lru.New[string, cachedResponse](cacheSize)
	c := &Client{
		apiURL:     DefaultAPIURL,
		webURL:     DefaultWebURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		cache:      cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of c that authenticates with token. The copy
// shares the response cache; entries are keyed per token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

// Authenticated reports whether the client sends a token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// Repository is the subset of repository metadata pyseed uses.
type Repository struct {
	FullName      string `json:"full_name"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
}

// Repository fetches repository metadata.
func (c *Client) Repository(ctx context.Context, owner, repo string) (Repository, error) {
	var r Repository
	body, err := c.get(ctx, c.repoURL(owner, repo, ""), "application/vnd.github+json")
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("decode repository: %w", err)
	}
	return r, nil
}

// Visibility is the result of probing a repository anonymously.
type Visibility int

const (
	// VisibilityPublic repositories are readable without credentials.
	VisibilityPublic Visibility = iota
	// VisibilityRestricted repositories need a credential: private, missing
	// for anonymous callers, or anonymous access is rate limited.
	VisibilityRestricted
)

func (v Visibility) String() string {
	if v == VisibilityPublic {
		return "public"
	}
	return "restricted"
}

// Visibility checks whether the repository can be read without a token.
// Network failures are returned as errors.
func (c *Client) Visibility(ctx context.Context, owner, repo string) (Visibility, error) {
	r, err := c.Repository(ctx, owner, repo)
	switch {
	case err == nil && !r.Private:
		return VisibilityPublic, nil
	case err == nil:
		return VisibilityRestricted, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnauthorized), errors.Is(err, ErrRateLimited):
		return VisibilityRestricted, nil
	default:
		return VisibilityRestricted, err
	}
}

// FileContent returns the raw bytes of path at ref. An empty ref reads the
// default branch.
func (c *Client) FileContent(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	u := c.repoURL(owner, repo, "/contents/"+escapePath(path))
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	return c.get(ctx, u, "application/vnd.github.raw")
}

// ValidateToken checks the client's token against GET /user. A rejected
// token returns ErrUnauthorized.
func (c *Client) ValidateToken(ctx context.Context) error {
	if !c.Authenticated() {
		return ErrUnauthorized
	}
	_, err := c.get(ctx, c.apiURL+"/user", "application/vnd.github+json")
	return err
}

func (c *Client) repoURL(owner, repo, suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s%s", c.apiURL, url.PathEscape(owner), url.PathEscape(repo), suffix)
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (c *Client) cacheKey(u, accept string) string {
	sum := sha256.Sum256([]byte(c.token))
	return hex.EncodeToString(sum[:8]) + " " + accept + " " + u
}

func (c *Client) newRequest(ctx context.Context, method, u, accept string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// get performs a conditional GET, answering 304 responses from the cache.
func (c *Client) get(ctx context.Context, u, accept string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, u, accept, nil)
	if err != nil {
		return nil, err
	}
	key := c.cacheKey(u, accept)
	cached, hit := c.cache.Get(key)
	if hit && cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotModified && hit {
		return cached.body, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp, u)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetworkFailure, err)
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		c.cache.Add(key, cachedResponse{etag: etag, body: body})
	}
	return body, nil
}

func apiError(resp *http.Response, u string) error {
	var payload struct {
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &payload)
	status := resp.StatusCode
	// GitHub reports exhausted rate limits as 403 with remaining=0; other
	// 403s are permission problems.
	if status == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") != "0" &&
		!strings.Contains(strings.ToLower(payload.Message), "rate limit") {
		status = http.StatusUnauthorized
	}
	return &APIError{StatusCode: status, Message: payload.Message, URL: u}
}
