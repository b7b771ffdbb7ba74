//go:build !windows

package relaunch

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSpawnStrategyMapsSignalToShellExitCode(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	code, err := SpawnStrategy{}.Start(context.Background(), Launch{
		Path: exe,
		Args: []string{exe, "-test.run=^TestSignalHelperProcess$"},
		Env:  append(os.Environ(), "PYSEED_HELPER_SIGNAL=1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 128+int(unix.SIGKILL), code)
}

func TestSignalHelperProcess(t *testing.T) {
	if os.Getenv("PYSEED_HELPER_SIGNAL") != "1" {
		return
	}
	_ = unix.Kill(os.Getpid(), unix.SIGKILL)
	select {}
}
