package db

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vvka-141/iamconn/internal/config"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// ConnFlags represents connection parameters from CLI flags.
// These follow PostgreSQL standard flag conventions (-h, -p, -U, -d).
//
// There is deliberately no password flag: the password is always a minted token.
type ConnFlags struct {
	Host           string
	Port           int
	Username       string
	Database       string
	SSLMode        string
	SSLRootCert    string
	AppName        string
	ConnectTimeout time.Duration

	AuthMethod     string
	AWSRegion      string
	AWSProfile     string
	AzureTenantID  string
	AzureClientID  string
	GoogleInstance string
	Retry          bool
}

// EnvVars represents PostgreSQL standard and cloud SDK environment variables.
// See: https://www.postgresql.org/docs/current/libpq-envars.html
type EnvVars struct {
	PGHOST            string
	PGPORT            string
	PGUSER            string
	PGDATABASE        string
	PGSSLMODE         string
	PGSSLROOTCERT     string
	PGAPPNAME         string
	PGCONNECT_TIMEOUT string // seconds

	IAMCONN_AUTH_METHOD string

	AWS_REGION         string
	AWS_DEFAULT_REGION string

	// Azure SDK standard names
	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string // env only, never a flag or file value
}

// LoadFromEnvironment reads EnvVars from the process environment.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		PGHOST:              os.Getenv("PGHOST"),
		PGPORT:              os.Getenv("PGPORT"),
		PGUSER:              os.Getenv("PGUSER"),
		PGDATABASE:          os.Getenv("PGDATABASE"),
		PGSSLMODE:           os.Getenv("PGSSLMODE"),
		PGSSLROOTCERT:       os.Getenv("PGSSLROOTCERT"),
		PGAPPNAME:           os.Getenv("PGAPPNAME"),
		PGCONNECT_TIMEOUT:   os.Getenv("PGCONNECT_TIMEOUT"),
		IAMCONN_AUTH_METHOD: os.Getenv("IAMCONN_AUTH_METHOD"),
		AWS_REGION:          os.Getenv("AWS_REGION"),
		AWS_DEFAULT_REGION:  os.Getenv("AWS_DEFAULT_REGION"),
		AZURE_TENANT_ID:     os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:     os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET: os.Getenv("AZURE_CLIENT_SECRET"),
	}
}

// ResolveConnectionConfig merges the sources with precedence
// flag > environment variable > iamconn.yaml > default, per field.
//
// The sslmode is returned as configured; the connector upgrades it to a TLS
// mode when it would permit plaintext.
func ResolveConnectionConfig(flags *ConnFlags, env *EnvVars, project *config.ProjectConfig) (*iamconn.ConnectionConfig, error) {
	if flags == nil {
		flags = &ConnFlags{}
	}
	if env == nil {
		env = &EnvVars{}
	}
	if project == nil {
		project = &config.ProjectConfig{}
	}
	pc := project.Connection
	auth := project.Auth

	method, err := iamconn.ParseAuthMethod(firstNonEmpty(flags.AuthMethod, env.IAMCONN_AUTH_METHOD, auth.Method))
	if err != nil {
		return nil, err
	}

	cfg := &iamconn.ConnectionConfig{
		AuthMethod:        method,
		AWSRegion:         firstNonEmpty(flags.AWSRegion, env.AWS_REGION, env.AWS_DEFAULT_REGION, auth.AWSRegion),
		AWSProfile:        firstNonEmpty(flags.AWSProfile, auth.AWSProfile),
		AzureTenantID:     firstNonEmpty(flags.AzureTenantID, env.AZURE_TENANT_ID, auth.AzureTenantID),
		AzureClientID:     firstNonEmpty(flags.AzureClientID, env.AZURE_CLIENT_ID, auth.AzureClientID),
		AzureClientSecret: env.AZURE_CLIENT_SECRET,
		GoogleInstance:    firstNonEmpty(flags.GoogleInstance, auth.GoogleInstance),
		Retry:             flags.Retry || project.Retry,
	}

	t := &cfg.Target
	t.Host = firstNonEmpty(flags.Host, env.PGHOST, pc.Host)
	t.Username = firstNonEmpty(flags.Username, env.PGUSER, pc.Username)
	t.Database = firstNonEmpty(flags.Database, env.PGDATABASE, pc.Database, iamconn.DefaultDatabase)
	t.SSLMode = firstNonEmpty(flags.SSLMode, env.PGSSLMODE, pc.SSLMode, iamconn.DefaultSSLMode)
	t.SSLRootCert = firstNonEmpty(flags.SSLRootCert, env.PGSSLROOTCERT, pc.SSLRootCert)
	t.AppName = firstNonEmpty(flags.AppName, env.PGAPPNAME, pc.AppName, "iamconn")

	// Port: flag > PGPORT > iamconn.yaml > default
	switch {
	case flags.Port != 0:
		t.Port = flags.Port
	case env.PGPORT != "":
		port, err := strconv.Atoi(env.PGPORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $PGPORT value '%s': must be an integer: %w", env.PGPORT, iamconn.ErrInvalidConfig)
		}
		t.Port = port
	case pc.Port != 0:
		t.Port = pc.Port
	default:
		t.Port = iamconn.DefaultPort
	}

	// ConnectTimeout: flag > PGCONNECT_TIMEOUT (seconds) > iamconn.yaml
	switch {
	case flags.ConnectTimeout != 0:
		t.ConnectTimeout = flags.ConnectTimeout
	case env.PGCONNECT_TIMEOUT != "":
		secs, err := strconv.Atoi(env.PGCONNECT_TIMEOUT)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid $PGCONNECT_TIMEOUT value '%s': must be a non-negative integer: %w", env.PGCONNECT_TIMEOUT, iamconn.ErrInvalidConfig)
		}
		t.ConnectTimeout = time.Duration(secs) * time.Second
	default:
		d, err := project.ConnectTimeoutDuration()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", iamconn.ErrInvalidConfig, err)
		}
		t.ConnectTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
