package testinfra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage    = "postgres:17"
	PostgresUser     = "postgres"
	PostgresPassword = "postgres"
	PostgresDB       = "postgres"

	containerCertDir  = "/tmp/testcontainers-go/postgres"
	sslEntrypointPath = "/usr/local/bin/docker-entrypoint-ssl.bash"
)

// TLSOnlyPostgres is a server that rejects every non-TLS TCP connection and
// has one login role whose password is a fixed stand-in for an IAM token.
type TLSOnlyPostgres struct {
	*postgres.PostgresContainer
	Host  string
	Port  int
	Role  string
	Token string
}

// StartTLSOnlyPostgres starts a server with hostssl-only pg_hba rules and
// creates role with token as its password.
func StartTLSOnlyPostgres(ctx context.Context, paths *TLSPaths, role, token string) (*TLSOnlyPostgres, error) {
	dir := filepath.Dir(paths.CACert)

	confPath, err := writeSSLConfig(dir)
	if err != nil {
		return nil, err
	}
	initScript, err := writeInitScript(dir, role, token)
	if err != nil {
		return nil, err
	}

	ctr, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		postgres.WithDatabase(PostgresDB),
		postgres.WithSSLCert(paths.CACert, paths.ServerCert, paths.ServerKey),
		postgres.WithConfigFile(confPath),
		postgres.WithInitScripts(initScript),
		// WithSSLCert sets entrypoint to "sh" which fails on Debian (dash doesn't support pipefail).
		testcontainers.WithEntrypoint("bash", sslEntrypointPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	mapped, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		ctr.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("parse mapped port %q: %w", mapped.Port(), err)
	}

	return &TLSOnlyPostgres{
		PostgresContainer: ctr,
		Host:              host,
		Port:              port,
		Role:              role,
		Token:             token,
	}, nil
}

func writeSSLConfig(dir string) (string, error) {
	conf := fmt.Sprintf(`listen_addresses = '*'
ssl = on
ssl_cert_file = '%s/server.cert'
ssl_key_file = '%s/server.key'
ssl_ca_file = '%s/ca_cert.pem'
password_encryption = 'scram-sha-256'
`, containerCertDir, containerCertDir, containerCertDir)

	path := filepath.Join(dir, "postgresql.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		return "", fmt.Errorf("write postgresql.conf: %w", err)
	}
	return path, nil
}

// writeInitScript creates the token role and replaces pg_hba.conf so that
// TCP clients must use TLS. The new rules apply once the entrypoint restarts
// the server after initdb.
func writeInitScript(dir, role, token string) (string, error) {
	script := fmt.Sprintf(`#!/bin/bash
set -e
psql -v ON_ERROR_STOP=1 --username "$POSTGRES_USER" --dbname "$POSTGRES_DB" <<'EOSQL'
CREATE ROLE %s LOGIN PASSWORD '%s';
EOSQL
cat > "$PGDATA/pg_hba.conf" << 'PGEOF'
local     all all                trust
hostssl   all all 0.0.0.0/0      scram-sha-256
hostssl   all all ::/0           scram-sha-256
hostnossl all all 0.0.0.0/0      reject
hostnossl all all ::/0           reject
PGEOF
`, role, token)

	path := filepath.Join(dir, "init-iam-role.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		return "", fmt.Errorf("write init script: %w", err)
	}
	return path, nil
}
