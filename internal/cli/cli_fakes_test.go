package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/iamconn/internal/db"
	"github.com/vvka-141/iamconn/internal/identity"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

var serverTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type timeRow struct {
	ts  time.Time
	err error
}

func (r timeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*time.Time)) = r.ts
	return nil
}

type stubConn struct {
	queries []string
	rowErr  error
	closed  bool
}

func (c *stubConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *stubConn) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	c.queries = append(c.queries, sql)
	return timeRow{ts: serverTime, err: c.rowErr}
}

func (c *stubConn) Ping(context.Context) error { return nil }

func (c *stubConn) Close(context.Context) error {
	c.closed = true
	return nil
}

type stubFactory struct {
	conn      *stubConn
	err       error
	usernames []string
	closed    bool
}

func (f *stubFactory) Connect(_ context.Context, username string) (iamconn.Connection, error) {
	f.usernames = append(f.usernames, username)
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

func (f *stubFactory) Close() error {
	f.closed = true
	return nil
}

type connectorCall struct {
	cfg  *iamconn.ConnectionConfig
	opts db.FactoryOptions
}

// stubConnector replaces newConnector for the duration of the test.
func stubConnector(t *testing.T, factory iamconn.ConnectionFactory, err error) *connectorCall {
	t.Helper()
	call := &connectorCall{}
	original := newConnector
	t.Cleanup(func() { newConnector = original })

	newConnector = func(_ context.Context, cfg *iamconn.ConnectionConfig, opts db.FactoryOptions) (iamconn.ConnectionFactory, error) {
		call.cfg = cfg
		call.opts = opts
		if err != nil {
			return nil, err
		}
		return factory, nil
	}
	return call
}

type stubSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (s *stubSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return s.out, s.err
}

type stsCall struct {
	region     string
	httpClient aws.HTTPClient
}

func stubSTSClient(t *testing.T, client identity.STSAPI) *stsCall {
	t.Helper()
	call := &stsCall{}
	original := newSTSClient
	t.Cleanup(func() { newSTSClient = original })

	newSTSClient = func(_ context.Context, region string, httpClient aws.HTTPClient) (identity.STSAPI, error) {
		call.region = region
		call.httpClient = httpClient
		return client, nil
	}
	return call
}

// clearEnv isolates tests from the caller's PG*, AWS and iamconn settings.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PGHOST", "PGPORT", "PGUSER", "PGDATABASE", "PGSSLMODE", "PGSSLROOTCERT", "PGAPPNAME", "PGCONNECT_TIMEOUT",
		"IAMCONN_AUTH_METHOD", "IAMCONN_LOG_LEVEL", "IAMCONN_LOG_FORMAT",
		"AWS_REGION", "AWS_DEFAULT_REGION", "AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET",
	} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())
}

func resetConnectFlags() {
	connectFlags = connectFlagValues{timeout: iamconn.DefaultTimeout}
}

var errBoom = errors.New("boom")
