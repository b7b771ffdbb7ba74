package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	apperrors "pyseed/internal/errors"
)

func TestExitCodeFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("boom"), exitFailure},
		{"usage", usageError{errors.New("bad flag")}, exitUsage},
		{"config", apperrors.New(apperrors.CodeConfigurationError, "bad", nil), exitFailure},
		{"interpreter", apperrors.New(apperrors.CodeUnsupportedInterpreter, "old", nil), exitInterpreter},
		{"install", apperrors.New(apperrors.CodeDependencyInstall, "pip", nil), exitEnvironment},
		{"locked", apperrors.New(apperrors.CodeEnvironmentLocked, "busy", nil), exitEnvironment},
		{"unreachable", apperrors.New(apperrors.CodeRemoteUnreachable, "down", nil), exitRemote},
		{"invalid tree", apperrors.New(apperrors.CodeInvalidTree, "empty", nil), exitRemote},
		{"denied", apperrors.New(apperrors.CodeAuthDenied, "no", nil), exitAuth},
		{"timeout", apperrors.New(apperrors.CodeAuthTimedOut, "slow", nil), exitAuth},
		{"relaunch", apperrors.New(apperrors.CodeRelaunchFailed, "loop", nil), exitRelaunch},
		{"wrapped", fmt.Errorf("update: %w", apperrors.New(apperrors.CodeRepositoryNotFound, "gone", nil)), exitRemote},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Fatalf("exitCodeFor = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFormatErrorKeepsMessageVerbatim(t *testing.T) {
	msg := "Python 3.8.10 at /usr/bin/python3 is older than the required 3.10"
	out := formatError(apperrors.New(apperrors.CodeUnsupportedInterpreter, msg, nil))

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "Error: "+msg {
		t.Fatalf("first line = %q", lines[0])
	}
	if len(lines) < 2 || !strings.Contains(out, "environment.python") {
		t.Fatalf("expected interpreter hint, got %q", out)
	}
	for _, l := range lines[1:] {
		if len(l) > hintWidth {
			t.Fatalf("hint line not wrapped: %q", l)
		}
	}
}

func TestFormatErrorWithoutHint(t *testing.T) {
	out := formatError(errors.New("something odd"))
	if out != "Error: something odd\n" {
		t.Fatalf("unexpected output %q", out)
	}
}
