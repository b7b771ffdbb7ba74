// Package githubtest provides an in-process fake of the GitHub endpoints
// pyseed talks to, for use in tests.
package githubtest

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
)

// Repo is a fake repository.
type Repo struct {
	Private bool
	// Branches maps branch name to file tree (slash paths to content).
	Branches      map[string]map[string]string
	DefaultBranch string
	Revision      string
}

// DeviceStep is one scripted response to a device token poll.
type DeviceStep struct {
	Error string
	Token string
}

// Server is a fake GitHub API and web endpoint.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	repos map[string]*Repo
	// ValidTokens lists tokens accepted by GET /user and for private repos.
	validTokens map[string]bool
	device      []DeviceStep
	clientID    string

	// Requests counts requests by "METHOD path".
	requests map[string]int
	polls    atomic.Int32
}

// NewServer starts a fake server. Close it when done.
func NewServer() *Server {
	s := &Server{
		repos:       make(map[string]*Repo),
		validTokens: make(map[string]bool),
		requests:    make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddRepo registers owner/name.
func (s *Server) AddRepo(fullName string, r *Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	if r.Revision == "" {
		r.Revision = "0123456789abcdef0123456789abcdef01234567"
	}
	s.repos[fullName] = r
}

// AcceptToken marks token as valid.
func (s *Server) AcceptToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validTokens[token] = true
}

// ScriptDevice configures the device flow: the expected client id and the
// sequence of poll responses. The last step repeats.
func (s *Server) ScriptDevice(clientID string, steps ...DeviceStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientID = clientID
	s.device = steps
}

// Count returns how many requests matched "METHOD path".
func (s *Server) Count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

// Polls returns the number of device token polls.
func (s *Server) Polls() int {
	return int(s.polls.Load())
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method+" "+r.URL.Path]++
	s.mu.Unlock()

	switch {
	case r.URL.Path == "/user":
		s.handleUser(w, r)
	case r.URL.Path == "/login/device/code":
		s.handleDeviceCode(w, r)
	case r.URL.Path == "/login/oauth/access_token":
		s.handleDeviceToken(w, r)
	case strings.HasPrefix(r.URL.Path, "/repos/"):
		s.handleRepo(w, r)
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

func (s *Server) token(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ok := s.validTokens[s.token(r)]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Bad credentials")
		return
	}
	writeJSON(w, map[string]string{"login": "octocat"})
}

func (s *Server) handleDeviceCode(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	s.mu.Lock()
	clientID := s.clientID
	s.mu.Unlock()
	if r.PostForm.Get("client_id") != clientID {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, map[string]any{
		"device_code":      "dev-123",
		"user_code":        "ABCD-1234",
		"verification_uri": "https://github.com/login/device",
		"expires_in":       900,
		"interval":         1,
	})
}

func (s *Server) handleDeviceToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	n := int(s.polls.Add(1))
	s.mu.Lock()
	steps := s.device
	s.mu.Unlock()
	if len(steps) == 0 || r.PostForm.Get("device_code") != "dev-123" {
		writeJSON(w, map[string]string{"error": "incorrect_device_code"})
		return
	}
	step := steps[len(steps)-1]
	if n <= len(steps) {
		step = steps[n-1]
	}
	if step.Error != "" {
		writeJSON(w, map[string]string{"error": step.Error})
		return
	}
	writeJSON(w, map[string]string{"access_token": step.Token, "token_type": "bearer", "scope": "repo"})
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/repos/"), "/", 4)
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}
	full := parts[0] + "/" + parts[1]
	s.mu.Lock()
	repo, ok := s.repos[full]
	authorized := s.validTokens[s.token(r)]
	s.mu.Unlock()
	if !ok || (repo.Private && !authorized) {
		writeError(w, http.StatusNotFound, "Not Found")
		return
	}

	if len(parts) == 2 {
		w.Header().Set("ETag", fmt.Sprintf("%q", repo.Revision))
		if r.Header.Get("If-None-Match") == fmt.Sprintf("%q", repo.Revision) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		writeJSON(w, map[string]any{
			"full_name":      full,
			"private":        repo.Private,
			"default_branch": repo.DefaultBranch,
		})
		return
	}

	switch parts[2] {
	case "contents":
		if len(parts) < 4 {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		branch := r.URL.Query().Get("ref")
		if branch == "" {
			branch = repo.DefaultBranch
		}
		files, ok := repo.Branches[branch]
		content, found := files[parts[3]]
		if !ok || !found {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		_, _ = w.Write([]byte(content))
	case "tarball":
		branch := repo.DefaultBranch
		if len(parts) == 4 && parts[3] != "" {
			branch = parts[3]
		}
		files, ok := repo.Branches[branch]
		if !ok {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		prefix := strings.ReplaceAll(full, "/", "-") + "-" + repo.Revision[:7] + "/"
		data, err := Tarball(prefix, repo.Revision, files)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/x-gzip")
		_, _ = w.Write(data)
	default:
		writeError(w, http.StatusNotFound, "Not Found")
	}
}

// Tarball builds a GitHub-style source archive: files under prefix and the
// revision in a pax global header.
func Tarball(prefix, revision string, files map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	if revision != "" {
		if err := tw.WriteHeader(&tar.Header{
			Typeflag:   tar.TypeXGlobalHeader,
			Name:       "pax_global_header",
			PAXRecords: map[string]string{"comment": revision},
			Format:     tar.FormatPAX,
		}); err != nil {
			return nil, err
		}
	}
	if prefix != "" {
		if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: prefix, Mode: 0o755}); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := files[name]
		if err := tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     prefix + name,
			Mode:     0o644,
			Size:     int64(len(body)),
		}); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
}
