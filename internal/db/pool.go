package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns limits concurrent connections, and with it concurrent token requests.
	DefaultMaxConns = 5

	// DefaultMinConns is zero so building a pool never dials or mints a token.
	DefaultMinConns = 0

	// DefaultMaxConnIdleTime closes connections that sit idle.
	DefaultMaxConnIdleTime = 30 * time.Minute

	// DefaultMaxConnLifetime recycles sessions inside the token validity window.
	DefaultMaxConnLifetime = iamconn.RDSTokenLifetime - time.Minute
)

func configurePool(poolConfig *pgxpool.Config, logger iamconn.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.MaxConnLifetime = DefaultMaxConnLifetime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Info("%s", notice.Message)
	}
}

// NewPool builds a pool whose every physical connection authenticates with a
// token minted for it in BeforeConnect. The pool dials lazily.
func (c *TokenConnector) NewPool(ctx context.Context, username string) (*pgxpool.Pool, error) {
	user, err := c.username(username)
	if err != nil {
		return nil, err
	}

	connConfig, err := c.connConfig(user)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w: %w", iamconn.ErrInvalidConfig, err)
	}
	poolConfig.ConnConfig = connConfig
	configurePool(poolConfig, c.logger)

	poolConfig.BeforeConnect = func(ctx context.Context, cfg *pgx.ConnConfig) error {
		if err := verifyEncryption(&cfg.Config); err != nil {
			return err
		}
		attemptID := uuid.NewString()
		token, err := c.mintToken(ctx, attemptID, user)
		if err != nil {
			return err
		}
		cfg.Password = token.Value()
		c.logger.Verbose("attempt %s: pool connection token issued", attemptID)
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapConnectionError(err, c.target.Host, c.target.Port, user)
	}
	return pool, nil
}

// PoolAdapter adapts *pgxpool.Pool to iamconn.Connection.
//
// Thread-Safety: Safe for concurrent use (pgxpool.Pool is thread-safe).
type PoolAdapter struct {
	pool *pgxpool.Pool
}

// NewPoolAdapter creates a new PoolAdapter wrapping the given pool.
func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return &PoolAdapter{pool: pool}
}

func (p *PoolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}

func (p *PoolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p *PoolAdapter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool. It waits for acquired connections to be released.
func (p *PoolAdapter) Close(_ context.Context) error {
	p.pool.Close()
	return nil
}

// Pool returns the underlying pool.
func (p *PoolAdapter) Pool() *pgxpool.Pool {
	return p.pool
}

// Verify PoolAdapter implements Connection at compile time
var _ iamconn.Connection = (*PoolAdapter)(nil)
