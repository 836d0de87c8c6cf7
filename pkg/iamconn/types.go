package iamconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ConnectionTarget identifies the server being connected to and the default
// database user. It is fixed for the lifetime of a connector.
type ConnectionTarget struct {
	Host     string
	Port     int
	Username string

	// Database is the database name; DefaultDatabase when empty.
	Database string

	// SSLMode is upgraded to DefaultSSLMode unless it already requires TLS.
	SSLMode string

	// SSLRootCert is a CA bundle used with verify-ca / verify-full.
	SSLRootCert string

	AppName        string
	ConnectTimeout time.Duration
}

// Endpoint returns the target as host:port, bracketing IPv6 literals.
func (t ConnectionTarget) Endpoint() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Validate checks that the target names a reachable server.
// It returns a multi-error if multiple validation failures occur.
func (t ConnectionTarget) Validate() error {
	var errs []error

	if strings.TrimSpace(t.Host) == "" {
		errs = append(errs, fmt.Errorf("host is required: %w", ErrInvalidConfig))
	}
	if t.Port <= 0 || t.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range: %w", t.Port, ErrInvalidConfig))
	}
	if t.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect timeout cannot be negative: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// ConnectionConfig is the fully resolved input for building a connector:
// the target plus the authentication method and its provider parameters.
type ConnectionConfig struct {
	Target ConnectionTarget

	// AuthMethod indicates the authentication mechanism to use
	AuthMethod AuthMethod

	// AWS parameters (used when AuthMethod is AuthMethodAWSIAM).
	// Region overrides whatever the credential chain resolves.
	AWSRegion  string
	AWSProfile string

	// Azure Entra ID authentication parameters (used when AuthMethod is AuthMethodAzureEntraID)
	// If all three are provided, Service Principal authentication is used.
	// If none are provided, DefaultAzureCredential chain is used (env vars, managed identity, CLI, etc.)
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// GoogleInstance is the Cloud SQL instance connection name (project:region:instance).
	GoogleInstance string

	// Retry enables bounded retry of whole connection attempts.
	Retry bool
}

// Validate checks if the ConnectionConfig has all required fields for its auth method.
func (c *ConnectionConfig) Validate() error {
	var errs []error

	if !c.AuthMethod.IsValid() {
		errs = append(errs, fmt.Errorf("auth method %v: %w", c.AuthMethod, ErrUnsupportedAuthMethod))
	}

	switch c.AuthMethod {
	case AuthMethodGoogleIAM:
		if c.GoogleInstance == "" {
			errs = append(errs, fmt.Errorf("google instance (project:region:instance) is required: %w", ErrInvalidConfig))
		}
	default:
		if err := c.Target.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodAWSIAM       AuthMethod = iota // AWS RDS IAM Database Authentication
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodAWSIAM && a <= AuthMethodGoogleIAM
}

// ParseAuthMethod maps the config/flag spelling of an auth method.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "aws", "aws-iam", "rds":
		return AuthMethodAWSIAM, nil
	case "azure", "entra", "azure-entra-id":
		return AuthMethodAzureEntraID, nil
	case "google", "gcp", "cloudsql":
		return AuthMethodGoogleIAM, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnsupportedAuthMethod)
	}
}

// Connection is a live database session handed to the caller.
// *pgx.Conn satisfies it directly.
type Connection interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ConnectionFactory opens connections as a given database user.
type ConnectionFactory interface {
	Connect(ctx context.Context, username string) (Connection, error)
}
