package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"cloud.google.com/go/cloudsqlconn/errtype"
	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/iamconn/internal/logging"
	"github.com/vvka-141/iamconn/internal/retry"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// instanceDialer is the part of *cloudsqlconn.Dialer the connector uses.
type instanceDialer interface {
	Dial(ctx context.Context, icn string, opts ...cloudsqlconn.DialOption) (net.Conn, error)
	Close() error
}

// CloudSQLConnector opens connections to a Google Cloud SQL instance using IAM
// database authentication. The dialer mints a token per dial and provides TLS.
//
// Implements io.Closer. Close releases the dialer once every connection it
// produced is closed.
type CloudSQLConnector struct {
	instance string
	target   iamconn.ConnectionTarget
	dialer   instanceDialer
	driver   Driver
	logger   iamconn.Logger
	executor *retry.Executor
}

// NewCloudSQLConnector creates a connector for instance (project:region:instance).
// Only Username, Database and AppName of target are used.
func NewCloudSQLConnector(ctx context.Context, instance string, target iamconn.ConnectionTarget, opts ...Option) (*CloudSQLConnector, error) {
	if instance == "" {
		return nil, fmt.Errorf("cloud sql instance connection name is required: %w", iamconn.ErrInvalidConfig)
	}

	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w: %w", iamconn.ErrCredentialResolution, err)
	}
	return newCloudSQLConnector(instance, target, dialer, opts...), nil
}

func newCloudSQLConnector(instance string, target iamconn.ConnectionTarget, dialer instanceDialer, opts ...Option) *CloudSQLConnector {
	// Options are shared with TokenConnector; driver, logger and retry apply here.
	settings := &TokenConnector{driver: PgxDriver{}, logger: logging.NewNullLogger()}
	for _, opt := range opts {
		opt(settings)
	}

	return &CloudSQLConnector{
		instance: instance,
		target:   target,
		dialer:   dialer,
		driver:   settings.driver,
		logger:   settings.logger,
		executor: settings.executor,
	}
}

// Connect opens a connection as username (the target's username when empty).
// For service accounts the username is the account email without the
// ".gserviceaccount.com" suffix.
func (c *CloudSQLConnector) Connect(ctx context.Context, username string) (iamconn.Connection, error) {
	if c.executor == nil {
		return c.connectOnce(ctx, username)
	}

	var conn iamconn.Connection
	executor := c.executor.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		c.logger.Info("Connection attempt %d failed, retrying in %v: %v", attempt+1, delay.Round(time.Millisecond), err)
	})
	err := executor.Execute(ctx, func(ctx context.Context) error {
		var err error
		conn, err = c.connectOnce(ctx, username)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *CloudSQLConnector) connectOnce(ctx context.Context, username string) (iamconn.Connection, error) {
	user := username
	if user == "" {
		user = c.target.Username
	}
	if user == "" {
		return nil, fmt.Errorf("database username is required: %w", iamconn.ErrInvalidConfig)
	}

	database := c.target.Database
	if database == "" {
		database = iamconn.DefaultDatabase
	}

	// The dialer terminates TLS itself, so the inner protocol runs without it.
	query := url.Values{}
	query.Set("sslmode", "disable")
	if c.target.AppName != "" {
		query.Set("application_name", c.target.AppName)
	}
	dsn := (&url.URL{
		Scheme:   "postgresql",
		Host:     "localhost",
		Path:     "/" + database,
		User:     url.User(user),
		RawQuery: query.Encode(),
	}).String()

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w: %w", iamconn.ErrInvalidConfig, err)
	}
	cfg.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return c.dialer.Dial(ctx, c.instance)
	}

	c.logger.Verbose("connecting to Cloud SQL instance %s as %s", c.instance, user)
	conn, err := c.driver.Connect(ctx, cfg)
	if err != nil {
		return nil, wrapCloudSQLError(err, c.instance, user)
	}
	return conn, nil
}

// wrapCloudSQLError maps dialer failures onto connection stages. The dialer
// mints the IAM token during its refresh, so refresh failures are token
// issuance failures.
func wrapCloudSQLError(err error, instance, user string) error {
	var refreshErr *errtype.RefreshError
	if errors.As(err, &refreshErr) {
		return fmt.Errorf("failed to acquire Cloud SQL IAM token for %s@%s: %w: %w",
			user, instance, iamconn.ErrTokenIssuance, err)
	}
	var configErr *errtype.ConfigError
	if errors.As(err, &configErr) {
		return fmt.Errorf("cloud sql instance %s is misconfigured: %w: %w", instance, iamconn.ErrInvalidConfig, err)
	}
	return wrapConnectionError(err, instance, 0, user)
}

// Close releases the Cloud SQL dialer.
func (c *CloudSQLConnector) Close() error {
	if c.dialer == nil {
		return nil
	}
	err := c.dialer.Close()
	c.dialer = nil
	return err
}

var _ iamconn.ConnectionFactory = (*CloudSQLConnector)(nil)
