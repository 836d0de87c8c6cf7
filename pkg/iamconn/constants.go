package iamconn

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess            = 0  // Command completed successfully
	ExitGeneralError       = 1  // Unknown or unclassified error
	ExitUsageError         = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic              = 3  // Internal panic (unexpected crash)
	ExitConfigError        = 10 // Invalid configuration or parameters
	ExitConnectionError    = 11 // Failed to connect to database
	ExitCredentialError    = 12 // No ambient identity could be resolved
	ExitTokenError         = 13 // Credential service did not issue a token
	ExitEncryptionRequired = 14 // Connection config would have been unencrypted
)

const (
	// DefaultPort is the PostgreSQL port used when none is configured.
	DefaultPort = 5432

	// DefaultDatabase is the database connected to when none is configured.
	DefaultDatabase = "postgres"

	// DefaultSSLMode is the sslmode applied when the configured one would permit plaintext.
	DefaultSSLMode = "require"

	// DefaultTimeout bounds a whole CLI operation (resolve, mint, connect, query).
	DefaultTimeout = 30 * time.Second

	// RDSTokenLifetime is how long an RDS IAM authentication token is accepted.
	RDSTokenLifetime = 15 * time.Minute

	// TokenExpiryWarning is the remaining lifetime below which a freshly issued token
	// is reported as close to expiry.
	TokenExpiryWarning = 5 * time.Minute

	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of retry attempts.
	DefaultRetryMaxAttempts = 3

	// InstanceMetadataHost is the link-local metadata endpoint that must never be proxied.
	InstanceMetadataHost = "169.254.169.254"
)
