package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when another process holds the environment lock
// for longer than the configured wait.
var ErrLockTimeout = errors.New("environment lock held by another process")

const lockPollInterval = 100 * time.Millisecond

// acquireLock takes the exclusive lock at path, polling until wait elapses or
// ctx is done. The returned func releases it.
func acquireLock(ctx context.Context, path string, wait time.Duration) (func(), error) {
	//nolint:gosec // G301: per-user data directory
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		release, err := tryLock(path)
		if err == nil {
			return release, nil
		}
		if !errors.Is(err, errLockBusy) {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var errLockBusy = errors.New("lock busy")
