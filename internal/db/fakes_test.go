package db

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

type fakeResolver struct {
	creds AmbientCredentials
	err   error
	calls atomic.Int32
}

func (r *fakeResolver) Resolve(_ context.Context) (AmbientCredentials, error) {
	r.calls.Add(1)
	if r.err != nil {
		return AmbientCredentials{}, r.err
	}
	return r.creds, nil
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{creds: AmbientCredentials{Source: "fake", Region: "us-east-1"}}
}

// fakeIssuer mints "token-N" with a distinct N per call.
type fakeIssuer struct {
	err      error
	lifetime time.Duration
	calls    atomic.Int32

	mu       sync.Mutex
	requests []TokenRequest
}

func (i *fakeIssuer) IssueToken(_ context.Context, req TokenRequest) (AuthToken, error) {
	n := i.calls.Add(1)
	i.mu.Lock()
	i.requests = append(i.requests, req)
	i.mu.Unlock()

	if i.err != nil {
		return AuthToken{}, i.err
	}
	lifetime := i.lifetime
	if lifetime == 0 {
		lifetime = iamconn.RDSTokenLifetime
	}
	return NewAuthToken(fmt.Sprintf("token-%d", n), time.Now().Add(lifetime)), nil
}

func (i *fakeIssuer) String() string { return "fakeIssuer" }

func (i *fakeIssuer) lastRequest() TokenRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.requests[len(i.requests)-1]
}

type connectCall struct {
	User      string
	Password  string
	Database  string
	TLS       bool
	HasDialFn bool
}

// fakeDriver records what it was asked to connect with. errs are returned in
// order, one per call; after they run out every call succeeds.
type fakeDriver struct {
	mu    sync.Mutex
	errs  []error
	calls []connectCall
	cfgs  []*pgx.ConnConfig
}

func (d *fakeDriver) Connect(_ context.Context, cfg *pgx.ConnConfig) (iamconn.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls = append(d.calls, connectCall{
		User:      cfg.User,
		Password:  cfg.Password,
		Database:  cfg.Database,
		TLS:       cfg.TLSConfig != nil,
		HasDialFn: cfg.DialFunc != nil,
	})
	d.cfgs = append(d.cfgs, cfg)

	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &fakeConn{}, nil
}

func (d *fakeDriver) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *fakeDriver) passwords() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		out = append(out, c.Password)
	}
	return out
}

type fakeConn struct {
	closed bool
}

func (c *fakeConn) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *fakeConn) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return fakeRow{}
}

func (c *fakeConn) Ping(_ context.Context) error { return nil }

func (c *fakeConn) Close(_ context.Context) error {
	c.closed = true
	return nil
}

type fakeRow struct{}

func (fakeRow) Scan(_ ...any) error { return nil }

// recordingLogger keeps formatted messages per level.
type recordingLogger struct {
	mu      sync.Mutex
	verbose []string
	info    []string
	errors  []string
}

func (l *recordingLogger) Verbose(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verbose = append(l.verbose, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Info(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info = append(l.info, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Error(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	out = append(out, l.verbose...)
	out = append(out, l.info...)
	out = append(out, l.errors...)
	return out
}

type fakeDialer struct {
	dialed []string
	closed bool
	err    error
}

func (d *fakeDialer) Dial(_ context.Context, icn string, _ ...cloudsqlconn.DialOption) (net.Conn, error) {
	d.dialed = append(d.dialed, icn)
	if d.err != nil {
		return nil, d.err
	}
	client, server := net.Pipe()
	_ = server.Close()
	return client, nil
}

func (d *fakeDialer) Close() error {
	d.closed = true
	return nil
}

// fakeSource is a CredentialSource with a fixed outcome.
type fakeSource struct {
	name  string
	creds AmbientCredentials
	err   error
	calls int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Resolve(_ context.Context) (AmbientCredentials, error) {
	s.calls++
	if s.err != nil {
		return AmbientCredentials{}, s.err
	}
	return s.creds, nil
}

func testTarget() iamconn.ConnectionTarget {
	return iamconn.ConnectionTarget{
		Host:     "mydb.abc123.us-east-1.rds.amazonaws.com",
		Port:     5432,
		Username: "app_user",
		Database: "appdb",
		SSLMode:  "disable",
	}
}
