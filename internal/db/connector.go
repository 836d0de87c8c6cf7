package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/iamconn/internal/logging"
	"github.com/vvka-141/iamconn/internal/retry"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// TokenConnector opens connections whose password is a token minted for that
// one connection attempt. It holds only immutable configuration and is safe for
// concurrent use.
type TokenConnector struct {
	target   iamconn.ConnectionTarget
	resolver CredentialResolver
	issuer   TokenIssuer
	driver   Driver
	logger   iamconn.Logger
	executor *retry.Executor
	hooks    []func(*pgx.ConnConfig)
	now      func() time.Time
}

// Option configures a TokenConnector.
type Option func(*TokenConnector)

// WithDriver replaces the pgx driver.
func WithDriver(d Driver) Option {
	return func(c *TokenConnector) { c.driver = d }
}

// WithLogger sets the logger. Token values are never logged.
func WithLogger(l iamconn.Logger) Option {
	return func(c *TokenConnector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetry makes Connect retry transient failures. Each retry resolves
// credentials and mints a new token. Without it every call is a single attempt.
func WithRetry(e *retry.Executor) Option {
	return func(c *TokenConnector) { c.executor = e }
}

// WithConnConfigHook adjusts the parsed connection config before each attempt,
// e.g. to set RuntimeParams or a custom DialFunc. Hooks run before the
// encryption check, so a hook cannot switch TLS off.
func WithConnConfigHook(hook func(*pgx.ConnConfig)) Option {
	return func(c *TokenConnector) { c.hooks = append(c.hooks, hook) }
}

// NewTokenConnector creates a connector for target.
func NewTokenConnector(target iamconn.ConnectionTarget, resolver CredentialResolver, issuer TokenIssuer, opts ...Option) (*TokenConnector, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, fmt.Errorf("credential resolver is required: %w", iamconn.ErrInvalidConfig)
	}
	if issuer == nil {
		return nil, fmt.Errorf("token issuer is required: %w", iamconn.ErrInvalidConfig)
	}

	c := &TokenConnector{
		target:   target,
		resolver: resolver,
		issuer:   issuer,
		driver:   PgxDriver{},
		logger:   logging.NewNullLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Target returns the connector's configured target.
func (c *TokenConnector) Target() iamconn.ConnectionTarget {
	return c.target
}

// Connect opens a connection as username (the target's username when empty).
// On failure no connection is returned and the error matches one of
// iamconn.ErrCredentialResolution, ErrTokenIssuance, ErrEncryptionRequired or
// ErrConnectionFailed.
func (c *TokenConnector) Connect(ctx context.Context, username string) (iamconn.Connection, error) {
	if c.executor == nil {
		return c.ConnectOnce(ctx, username)
	}

	var conn iamconn.Connection
	executor := c.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.logger.Info("Connection attempt %d failed, retrying in %v: %v", attempt+1, delay.Round(time.Millisecond), err)
	})
	err := executor.Execute(ctx, func(ctx context.Context) error {
		var err error
		conn, err = c.ConnectOnce(ctx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ConnectOnce performs exactly one attempt: require TLS, resolve credentials,
// mint a token, dial.
func (c *TokenConnector) ConnectOnce(ctx context.Context, username string) (iamconn.Connection, error) {
	user, err := c.username(username)
	if err != nil {
		return nil, err
	}

	attemptID := uuid.NewString()
	c.logger.Verbose("attempt %s: connecting to %s as %s", attemptID, c.target.Endpoint(), user)

	connConfig, err := c.connConfig(user)
	if err != nil {
		return nil, err
	}

	token, err := c.mintToken(ctx, attemptID, user)
	if err != nil {
		return nil, err
	}
	connConfig.Password = token.Value()

	conn, err := c.driver.Connect(ctx, connConfig)
	if err != nil {
		return nil, wrapConnectionError(err, c.target.Host, c.target.Port, user)
	}

	c.logger.Verbose("attempt %s: connected", attemptID)
	return conn, nil
}

func (c *TokenConnector) username(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if c.target.Username != "" {
		return c.target.Username, nil
	}
	return "", fmt.Errorf("database username is required: %w", iamconn.ErrInvalidConfig)
}

// connConfig parses the target with TLS required, applies hooks, then checks
// that TLS survived.
func (c *TokenConnector) connConfig(user string) (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(c.connString(user))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w: %w", iamconn.ErrInvalidConfig, err)
	}
	for _, hook := range c.hooks {
		hook(cfg)
	}
	if err := verifyEncryption(&cfg.Config); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mintToken resolves the ambient identity and asks the issuer for a token
// scoped to (host, port, user).
func (c *TokenConnector) mintToken(ctx context.Context, attemptID, user string) (AuthToken, error) {
	creds, err := c.resolver.Resolve(ctx)
	if err != nil {
		if !errors.Is(err, iamconn.ErrCredentialResolution) {
			err = fmt.Errorf("%w: %w", iamconn.ErrCredentialResolution, err)
		}
		return AuthToken{}, err
	}
	c.logger.Verbose("attempt %s: requesting token for %s from %s (identity: %s, region: %s)",
		attemptID, user, c.issuer, creds.Source, creds.Region)

	token, err := c.issuer.IssueToken(ctx, TokenRequest{
		Host:        c.target.Host,
		Port:        c.target.Port,
		Username:    user,
		Region:      creds.Region,
		Credentials: creds,
	})
	if err != nil {
		return AuthToken{}, fmt.Errorf("failed to acquire %s token for %s@%s: %w: %w",
			c.issuer, user, c.target.Endpoint(), iamconn.ErrTokenIssuance, err)
	}
	if token.IsZero() {
		return AuthToken{}, fmt.Errorf("%s returned an empty token: %w", c.issuer, iamconn.ErrTokenIssuance)
	}

	if remaining := token.ExpiresOn.Sub(c.now()); remaining < iamconn.TokenExpiryWarning {
		c.logger.Info("Warning: %s token expires in %v", c.issuer, remaining.Round(time.Second))
	}
	return token, nil
}

// connString renders the target without a password; the token is set on the
// parsed config so it never appears in a DSN.
func (c *TokenConnector) connString(user string) string {
	database := c.target.Database
	if database == "" {
		database = iamconn.DefaultDatabase
	}

	u := &url.URL{
		Scheme: "postgresql",
		Host:   c.target.Endpoint(),
		Path:   "/" + database,
		User:   url.User(user),
	}

	query := url.Values{}
	query.Set("sslmode", enforceSSLMode(c.target.SSLMode))
	if c.target.SSLRootCert != "" {
		query.Set("sslrootcert", c.target.SSLRootCert)
	}
	if c.target.AppName != "" {
		query.Set("application_name", c.target.AppName)
	}
	if c.target.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(c.target.ConnectTimeout.Seconds())))
	}

	u.RawQuery = query.Encode()
	return u.String()
}

// wrapConnectionError wraps raw driver errors with actionable guidance. The
// driver error stays reachable through errors.As.
func wrapConnectionError(err error, host string, port int, username string) error {
	if errors.Is(err, iamconn.ErrCredentialResolution) ||
		errors.Is(err, iamconn.ErrTokenIssuance) ||
		errors.Is(err, iamconn.ErrEncryptionRequired) {
		return err
	}

	errStr := strings.ToLower(err.Error())
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`%w: connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port
  - Security group or firewall blocking the connection

Original error: %w`, iamconn.ErrConnectionFailed, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`%w: cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable
  - Private endpoint used from outside its VPC

Original error: %w`, iamconn.ErrConnectionFailed, host, err)

	case strings.Contains(errStr, "pam authentication failed"):
		return fmt.Errorf(`%w: IAM token rejected for user "%s"

Possible causes:
  - User has not been granted rds_iam (GRANT rds_iam TO %s)
  - Caller identity lacks rds-db:connect for this user
  - Token was minted for a different host, port or region
  - Local clock skew or the token expired before use

Original error: %w`, iamconn.ErrConnectionFailed, username, username, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`%w: password authentication failed for user "%s"

Possible causes:
  - Server is not configured for IAM authentication of this user
  - Wrong username

Original error: %w`, iamconn.ErrConnectionFailed, username, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`%w: connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Network latency or packet loss
  - Firewall silently dropping packets

Original error: %w`, iamconn.ErrConnectionFailed, addr, err)

	case strings.Contains(errStr, "ssl") || strings.Contains(errStr, "tls"):
		return fmt.Errorf(`%w: SSL/TLS connection error

Possible causes:
  - Server does not accept TLS connections (IAM auth requires TLS)
  - Certificate verification failed (check --sslrootcert or use --sslmode=require)

Original error: %w`, iamconn.ErrConnectionFailed, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`%w: too many connections to %s

Possible causes:
  - max_connections reached on the server
  - Connection pool sized larger than the server allows

Original error: %w`, iamconn.ErrConnectionFailed, addr, err)

	default:
		return fmt.Errorf("failed to connect to database: %w: %w", iamconn.ErrConnectionFailed, err)
	}
}

var _ iamconn.ConnectionFactory = (*TokenConnector)(nil)
