package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"pyseed/internal/fsutil"
)

// configToken is github_auth.json.
type configToken struct {
	Token string `json:"token"`
}

// cachedToken is github_token.json, written after a device authorization.
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	ObtainedAt  time.Time `json:"obtained_at"`
}

// readJSON decodes a JSONC file into v. found is false when the file does
// not exist.
func readJSON(path string, v any) (found bool, err error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	//nolint:gosec // G304: credential paths are derived from the application data root
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return true, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

func loadConfigToken(path string) (string, error) {
	var c configToken
	if _, err := readJSON(path, &c); err != nil {
		return "", err
	}
	return strings.TrimSpace(c.Token), nil
}

func loadCachedToken(path string) (cachedToken, error) {
	var c cachedToken
	if _, err := readJSON(path, &c); err != nil {
		return cachedToken{}, err
	}
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	return c, nil
}

func saveCachedToken(path string, c cachedToken) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token cache: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0600)
}
