package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"pyseed/internal/config"
	apperrors "pyseed/internal/errors"
)

// Process exit codes. Scripts rely on these staying stable.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterpreter = 3
	exitEnvironment = 4
	exitRemote      = 5
	exitAuth        = 6
	exitRelaunch    = 7
)

const hintWidth = 76

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var usage usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeUnsupportedInterpreter:
		return exitInterpreter
	case apperrors.CodeEnvironmentCreation, apperrors.CodeDependencyInstall, apperrors.CodeEnvironmentLocked:
		return exitEnvironment
	case apperrors.CodeRemoteUnreachable, apperrors.CodeRepositoryNotFound,
		apperrors.CodeInvalidTree, apperrors.CodeEncodingError:
		return exitRemote
	case apperrors.CodeAuthRequired, apperrors.CodeAuthDenied, apperrors.CodeAuthTimedOut:
		return exitAuth
	case apperrors.CodeRelaunchFailed:
		return exitRelaunch
	default:
		return exitFailure
	}
}

func errorHint(err error) string {
	var usage usageError
	if errors.As(err, &usage) {
		return "Run 'pyseed --help' for usage."
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeUnsupportedInterpreter:
		return fmt.Sprintf("Install a supported Python or point %s at one, then run pyseed again.", config.KeyPython)
	case apperrors.CodeEnvironmentCreation, apperrors.CodeDependencyInstall:
		return "Nothing was marked complete, so the next run rebuilds the environment. 'pyseed env delete' starts from scratch."
	case apperrors.CodeEnvironmentLocked:
		return "Another pyseed process is preparing the environment. Wait for it to finish and try again."
	case apperrors.CodeRelaunchFailed:
		return "The environment interpreter could not take over. Run 'pyseed env delete' and start pyseed again."
	case apperrors.CodeRemoteUnreachable:
		return "Check your network connection. Your project was not modified."
	case apperrors.CodeRepositoryNotFound:
		return fmt.Sprintf("Check %s or pass --repo owner/name. Your project was not modified.", config.KeyGitHubRepo)
	case apperrors.CodeInvalidTree, apperrors.CodeEncodingError:
		return "The remote tree was rejected before anything was written. Your project was not modified."
	case apperrors.CodeAuthRequired:
		return fmt.Sprintf("Set %s to an OAuth app client id, or put a token in the auth config, then run 'pyseed auth login'.", config.KeyGitHubClientID)
	case apperrors.CodeAuthDenied:
		return "Authorization was declined. Run 'pyseed auth login' to try again."
	case apperrors.CodeAuthTimedOut:
		return "The device code expired before it was approved. Run 'pyseed auth login' to try again."
	case apperrors.CodeConfigurationError:
		return "Check the configuration files and flags."
	default:
		return ""
	}
}

// formatError renders err for stderr. The message is printed verbatim; the
// hint is wrapped.
func formatError(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error: %s\n", err.Error())
	if hint := errorHint(err); hint != "" {
		b.WriteString(wordwrap.String(hint, hintWidth))
		b.WriteString("\n")
	}
	return b.String()
}
