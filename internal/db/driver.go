package db

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// Driver performs the standard username/password connect.
// The connector fills cfg.User and cfg.Password before calling it.
type Driver interface {
	Connect(ctx context.Context, cfg *pgx.ConnConfig) (iamconn.Connection, error)
}

// PgxDriver connects with pgx.
type PgxDriver struct{}

func (PgxDriver) Connect(ctx context.Context, cfg *pgx.ConnConfig) (iamconn.Connection, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
