package environment

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/zeebo/blake3"

	"pyseed/internal/fsutil"
)

// Marker records a completed environment build.
type Marker struct {
	Python         string    `json:"python"`
	ManifestDigest string    `json:"manifest_digest"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ReadMarker loads the completion marker. A missing marker returns
// fs.ErrNotExist.
func ReadMarker(path string) (Marker, error) {
	//nolint:gosec // G304: marker path is derived from the environment root
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("parse marker %s: %w", path, err)
	}
	return m, nil
}

func writeMarker(path string, m Marker) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0644)
}

// ManifestDigest returns the blake3 hex digest of the manifest, or "" when
// the manifest does not exist.
func ManifestDigest(path string) (string, error) {
	//nolint:gosec // G304: manifest path comes from project configuration
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read manifest %s: %w", path, err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
