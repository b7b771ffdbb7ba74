package errors

import "errors"

// Code identifies a structured error type used across the application.
type Code string

const (
	// Generic codes
	CodeUnknown            Code = "unknown"
	CodeConfigurationError Code = "configuration_error"

	// Bootstrap errors
	CodeUnsupportedInterpreter Code = "unsupported_interpreter"
	CodeEnvironmentCreation    Code = "environment_creation_failed"
	CodeDependencyInstall      Code = "dependency_install_failed"
	CodeEnvironmentLocked      Code = "environment_locked"
	CodeRelaunchFailed         Code = "relaunch_failed"

	// Update errors
	CodeModeAmbiguous      Code = "mode_ambiguous"
	CodeRemoteUnreachable  Code = "remote_unreachable"
	CodeRepositoryNotFound Code = "repository_not_found"
	CodeInvalidTree        Code = "invalid_tree"
	CodeEncodingError      Code = "encoding_error"

	// Authentication errors
	CodeAuthRequired Code = "auth_required"
	CodeAuthDenied   Code = "auth_denied"
	CodeAuthTimedOut Code = "auth_timed_out"
)

// Error represents a structured error with a machine-readable code plus message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// New wraps an error with a code/message.
func New(code Code, msg string, err error) Error {
	return Error{Code: code, Message: msg, Err: err}
}

// CodeOf walks the error chain and returns the first structured code found.
func CodeOf(err error) Code {
	var structured Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeUnknown
}

// IsCode reports whether the error (or its unwrap chain) matches the provided code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// Recoverable reports whether the failure may succeed on a later invocation
// without user intervention beyond retrying.
func Recoverable(code Code) bool {
	switch code {
	case CodeUnsupportedInterpreter, CodeRelaunchFailed, CodeConfigurationError:
		return false
	default:
		return true
	}
}
