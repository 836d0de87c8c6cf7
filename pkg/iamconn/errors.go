package iamconn

import (
	"errors"
	"strings"
)

// Sentinel errors for the stages of a connection attempt.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	conn, err := connector.Connect(ctx, "app_user")
//	if errors.Is(err, iamconn.ErrTokenIssuance) {
//	    // the credential service refused or was unreachable
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrCredentialResolution indicates no ambient identity or region could be resolved.
	// It is never retried.
	ErrCredentialResolution = errors.New("credential resolution failed")

	// ErrNoCredentials is returned by a single credential source that has nothing to offer.
	// Resolver chains skip such sources and try the next one.
	ErrNoCredentials = errors.New("no credentials in source")

	// ErrTokenIssuance indicates the credential service did not issue a token.
	ErrTokenIssuance = errors.New("token issuance failed")

	// ErrEncryptionRequired indicates a connection config without TLS reached the connect path.
	ErrEncryptionRequired = errors.New("transport encryption required")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")
)

var usageErrorPatterns = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"required flag",
	"invalid argument",
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrCredentialResolution):
		return ExitCredentialError
	case errors.Is(err, ErrTokenIssuance):
		return ExitTokenError
	case errors.Is(err, ErrEncryptionRequired):
		return ExitEncryptionRequired
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	}

	errStr := err.Error()

	// Cobra reports flag and argument problems as plain errors
	for _, pattern := range usageErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return ExitUsageError
		}
	}

	// Check for common connection error patterns
	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
