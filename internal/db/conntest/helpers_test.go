//go:build conntest

package conntest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/vvka-141/iamconn/internal/db"
	"github.com/vvka-141/iamconn/internal/testinfra"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

const (
	tokenRole  = "iam_app"
	tokenValue = "conntestStandInToken42"
)

var (
	server   *testinfra.TLSOnlyPostgres
	tlsPaths *testinfra.TLSPaths
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	bundle, err := testinfra.GenerateTLSBundle([]string{"localhost", "127.0.0.1"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate certs: %v\n", err)
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "iamconn-conntest-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create temp dir: %v\n", err)
		os.Exit(1)
	}

	tlsPaths, err = bundle.WriteToDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "write certs: %v\n", err)
		os.Exit(1)
	}

	server, err = testinfra.StartTLSOnlyPostgres(ctx, tlsPaths, tokenRole, tokenValue)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.RemoveAll(dir)
		os.Exit(1)
	}

	code := m.Run()

	server.Terminate(ctx) //nolint:errcheck
	os.RemoveAll(dir)
	os.Exit(code)
}

// staticResolver yields fixed AWS-shaped credentials; the static issuer ignores them.
func staticResolver() db.CredentialResolver {
	env := map[string]string{
		"AWS_ACCESS_KEY_ID":     "AKIDCONNTEST",
		"AWS_SECRET_ACCESS_KEY": "conntest",
		"AWS_REGION":            "us-east-1",
	}
	return db.NewChainResolver(&db.EnvSource{Getenv: func(k string) string { return env[k] }})
}

func target(sslMode string) iamconn.ConnectionTarget {
	return iamconn.ConnectionTarget{
		Host:     server.Host,
		Port:     server.Port,
		Username: tokenRole,
		Database: testinfra.PostgresDB,
		SSLMode:  sslMode,
		AppName:  "iamconn-conntest",
	}
}

func newConnector(t *testing.T, tgt iamconn.ConnectionTarget, token string, opts ...db.Option) *db.TokenConnector {
	t.Helper()
	c, err := db.NewTokenConnector(tgt, staticResolver(), db.NewStaticTokenIssuer(token, 0), opts...)
	if err != nil {
		t.Fatalf("NewTokenConnector() error = %v", err)
	}
	return c
}
