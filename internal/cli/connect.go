package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vvka-141/iamconn/internal/db"
	"github.com/vvka-141/iamconn/internal/identity"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

const timestampQuery = "select current_timestamp"

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Open an IAM-authenticated connection and print the server time",
	Long: `Connect resolves the ambient cloud identity, mints a token for the target
database user, connects over TLS and runs "select current_timestamp".

There is no password flag: the password is always a freshly minted token.
sslmode values that permit plaintext (disable, allow, prefer) are upgraded
to require.

Examples:
  # RDS with credentials from the environment or instance role
  iamconn connect -h mydb.abc123.us-east-1.rds.amazonaws.com -U app_user -d appdb

  # Named profile, explicit region, retry transient failures
  iamconn connect -h mydb... -U app_user --aws-profile prod --aws-region eu-west-1 --retry

  # Route AWS credential traffic through a proxy
  iamconn connect -h mydb... -U app_user --proxy http://squid.internal:3128

  # Pool of 5 connections, each with its own token
  iamconn connect -h mydb... -U app_user --pool 5

  # Azure Database for PostgreSQL with Entra ID
  iamconn connect --auth-method azure -h srv.postgres.database.azure.com -U app@contoso.com

  # Google Cloud SQL
  iamconn connect --auth-method google --google-instance proj:region:inst -U sa@proj.iam`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

type connectFlagValues struct {
	host, username, database, sslMode, sslRootCert, appName string
	port                                                    int
	connectTimeout                                          time.Duration

	authMethod, awsRegion, awsProfile string
	azureTenantID, azureClientID      string
	googleInstance                    string

	proxy   string
	noProxy []string

	retry   bool
	pool    int
	timeout time.Duration
}

var connectFlags connectFlagValues

// poolFactory is implemented by connectors that can mint per-connection tokens for a pool.
type poolFactory interface {
	NewPool(ctx context.Context, username string) (*pgxpool.Pool, error)
}

// newConnector is replaced in tests.
var newConnector = db.NewConnector

func init() {
	rootCmd.AddCommand(connectCmd)
	f := connectCmd.Flags()

	// Precedence: flag > environment variable > iamconn.yaml > default
	f.StringVarP(&connectFlags.host, "host", "h", "",
		"PostgreSQL server host\n"+
			"Precedence: --host > $PGHOST > iamconn.yaml")
	f.IntVarP(&connectFlags.port, "port", "p", 0,
		"PostgreSQL server port\n"+
			"Precedence: --port > $PGPORT > iamconn.yaml > 5432")
	f.StringVarP(&connectFlags.username, "username", "U", "",
		"Database user the token is minted for (default: $PGUSER)")
	f.StringVarP(&connectFlags.database, "database", "d", "",
		"Database name (default: $PGDATABASE or postgres)")
	f.StringVar(&connectFlags.sslMode, "sslmode", "",
		"SSL mode: require|verify-ca|verify-full\n"+
			"Weaker modes are upgraded to require (default: $PGSSLMODE or require)")
	f.StringVar(&connectFlags.sslRootCert, "sslrootcert", "",
		"CA bundle for verify-ca / verify-full (default: $PGSSLROOTCERT)")
	f.StringVar(&connectFlags.appName, "application-name", "",
		"application_name reported to the server (default: $PGAPPNAME or iamconn)")
	f.DurationVar(&connectFlags.connectTimeout, "connect-timeout", 0,
		"Dial timeout per connection (default: $PGCONNECT_TIMEOUT seconds)")

	f.StringVar(&connectFlags.authMethod, "auth-method", "",
		"Token source: aws|azure|google (default: $IAMCONN_AUTH_METHOD or aws)")
	f.StringVar(&connectFlags.awsRegion, "aws-region", "",
		"Region the RDS token is signed for (overrides $AWS_REGION and the profile's region)")
	f.StringVar(&connectFlags.awsProfile, "aws-profile", "",
		"Shared config profile (default: $AWS_PROFILE or default)")
	f.StringVar(&connectFlags.azureTenantID, "azure-tenant-id", "",
		"Azure AD tenant/directory ID (overrides $AZURE_TENANT_ID)")
	f.StringVar(&connectFlags.azureClientID, "azure-client-id", "",
		"Azure AD application/client ID (overrides $AZURE_CLIENT_ID)\n"+
			"The client secret is read from $AZURE_CLIENT_SECRET only")
	f.StringVar(&connectFlags.googleInstance, "google-instance", "",
		"Cloud SQL instance connection name (project:region:instance)")

	f.StringVar(&connectFlags.proxy, "proxy", "",
		"HTTP proxy for AWS credential traffic; ignores $HTTPS_PROXY when set")
	f.StringSliceVar(&connectFlags.noProxy, "no-proxy", nil,
		"Hosts reached without the proxy (default: 169.254.169.254)")

	f.BoolVar(&connectFlags.retry, "retry", false,
		"Retry transient failures with backoff; every attempt mints a new token")
	f.IntVar(&connectFlags.pool, "pool", 0,
		"Open a pool and run N concurrent queries, each connection with its own token")
	f.DurationVar(&connectFlags.timeout, "timeout", iamconn.DefaultTimeout,
		"Overall deadline for resolving credentials, minting, connecting and querying")

	_ = connectCmd.RegisterFlagCompletionFunc("sslmode", completeSSLModes)
	_ = connectCmd.RegisterFlagCompletionFunc("auth-method", completeAuthMethods)
}

func (f *connectFlagValues) connFlags() *db.ConnFlags {
	return &db.ConnFlags{
		Host:           f.host,
		Port:           f.port,
		Username:       f.username,
		Database:       f.database,
		SSLMode:        f.sslMode,
		SSLRootCert:    f.sslRootCert,
		AppName:        f.appName,
		ConnectTimeout: f.connectTimeout,
		AuthMethod:     f.authMethod,
		AWSRegion:      f.awsRegion,
		AWSProfile:     f.awsProfile,
		AzureTenantID:  f.azureTenantID,
		AzureClientID:  f.azureClientID,
		GoogleInstance: f.googleInstance,
		Retry:          f.retry,
	}
}

func runConnect(cmd *cobra.Command, _ []string) error {
	if connectFlags.pool < 0 {
		return fmt.Errorf("--pool must not be negative: %w", iamconn.ErrInvalidConfig)
	}

	projectCfg, err := loadProjectConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, projectCfg)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	connCfg, err := db.ResolveConnectionConfig(connectFlags.connFlags(), db.LoadFromEnvironment(), projectCfg)
	if err != nil {
		return err
	}

	timeout, err := resolveEffectiveTimeout(cmd, projectCfg, connectFlags.timeout)
	if err != nil {
		return err
	}

	var httpClient aws.HTTPClient
	if proxy := resolveProxy(cmd, connectFlags.proxy, connectFlags.noProxy, projectCfg); proxy.Enabled() {
		httpClient, err = identity.NewHTTPClient(proxy)
		if err != nil {
			return err
		}
		logger.Verbose("AWS traffic proxied through %s", proxy.URL)
	}

	logger.With(redactedFields(connCfg)...).Verbose("connection resolved")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	factory, err := newConnector(ctx, connCfg, db.FactoryOptions{Logger: logger, AWSHTTPClient: httpClient})
	if err != nil {
		return err
	}
	if closer, ok := factory.(io.Closer); ok {
		defer closer.Close()
	}

	out := cmd.OutOrStdout()
	if connectFlags.pool > 0 {
		pf, ok := factory.(poolFactory)
		if !ok {
			return fmt.Errorf("--pool is not supported with %s: %w", connCfg.AuthMethod, iamconn.ErrInvalidConfig)
		}
		return runPooled(ctx, out, pf, connectFlags.pool)
	}

	conn, err := factory.Connect(ctx, "")
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	ts, err := queryTimestamp(ctx, conn)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "database timestamp: %s\n", ts.Format(time.RFC3339Nano))
	return nil
}

// runPooled runs n concurrent timestamp queries through a pool whose
// connections each authenticate with their own token.
func runPooled(ctx context.Context, out io.Writer, pf poolFactory, n int) error {
	pool, err := pf.NewPool(ctx, "")
	if err != nil {
		return err
	}
	conn := db.NewPoolAdapter(pool)
	defer conn.Close(context.Background())

	results := make([]time.Time, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			ts, err := queryTimestamp(gctx, conn)
			results[i] = ts
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		fmt.Fprintf(out, "database timestamp [%d]: %s\n", i+1, results[i].Format(time.RFC3339Nano))
	}
	return nil
}

func queryTimestamp(ctx context.Context, conn iamconn.Connection) (time.Time, error) {
	var ts time.Time
	if err := conn.QueryRow(ctx, timestampQuery).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("%s failed: %w", timestampQuery, err)
	}
	return ts, nil
}
