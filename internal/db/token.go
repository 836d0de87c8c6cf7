package db

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

const redacted = "[REDACTED]"

// AuthToken is a short-lived bearer credential used once as a database password.
// All fmt verbs print a redacted placeholder.
type AuthToken struct {
	value     string
	ExpiresOn time.Time
}

// NewAuthToken wraps a raw token string.
func NewAuthToken(value string, expiresOn time.Time) AuthToken {
	return AuthToken{value: value, ExpiresOn: expiresOn}
}

// Value returns the raw token.
func (t AuthToken) Value() string {
	return t.value
}

// IsZero reports whether the token carries no secret.
func (t AuthToken) IsZero() bool {
	return t.value == ""
}

func (t AuthToken) String() string {
	return redacted
}

func (t AuthToken) GoString() string {
	return redacted
}

func (t AuthToken) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, redacted)
}

// TokenRequest scopes a token to one (host, port, username) target.
type TokenRequest struct {
	Host        string
	Port        int
	Username    string
	Region      string
	Credentials AmbientCredentials
}

// Endpoint returns host:port, the form RDS signs tokens for.
func (r TokenRequest) Endpoint() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// TokenIssuer abstracts cloud token acquisition for database authentication.
// Implementations must be safe for concurrent use.
type TokenIssuer interface {
	// IssueToken returns a freshly minted token for req.
	IssueToken(ctx context.Context, req TokenRequest) (AuthToken, error)

	// String returns a human-readable description for logging.
	// Should NOT include secrets. Example: "RDSTokenIssuer"
	String() string
}

// StaticTokenIssuer hands out a fixed secret. It stands in for a cloud issuer
// against servers that use ordinary password authentication.
type StaticTokenIssuer struct {
	secret   string
	lifetime time.Duration
}

// NewStaticTokenIssuer returns an issuer whose tokens report lifetime as their validity.
func NewStaticTokenIssuer(secret string, lifetime time.Duration) *StaticTokenIssuer {
	if lifetime <= 0 {
		lifetime = iamconn.RDSTokenLifetime
	}
	return &StaticTokenIssuer{secret: secret, lifetime: lifetime}
}

func (s *StaticTokenIssuer) IssueToken(_ context.Context, _ TokenRequest) (AuthToken, error) {
	return NewAuthToken(s.secret, time.Now().Add(s.lifetime)), nil
}

func (s *StaticTokenIssuer) String() string {
	return "StaticTokenIssuer"
}
