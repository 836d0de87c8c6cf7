package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/spf13/cobra"

	"github.com/vvka-141/iamconn/internal/identity"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the AWS principal iamconn would mint tokens as",
	Long: `Whoami calls sts:GetCallerIdentity with the ambient AWS credentials and prints
the account, user id and ARN. Run it when a connect fails with a PAM
authentication error to check which role is actually in use.

Examples:
  iamconn whoami
  iamconn whoami --aws-region eu-west-1 --proxy http://squid.internal:3128`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

var whoamiFlags struct {
	awsRegion string
	proxy     string
	noProxy   []string
}

// newSTSClient is replaced in tests.
var newSTSClient = func(ctx context.Context, region string, httpClient aws.HTTPClient) (identity.STSAPI, error) {
	client, err := identity.NewSTSClient(ctx, region, httpClient)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	f := whoamiCmd.Flags()
	f.StringVar(&whoamiFlags.awsRegion, "aws-region", "",
		"Region of the STS endpoint (default: $AWS_REGION or the profile's region)")
	f.StringVar(&whoamiFlags.proxy, "proxy", "",
		"HTTP proxy for STS traffic; ignores $HTTPS_PROXY when set")
	f.StringSliceVar(&whoamiFlags.noProxy, "no-proxy", nil,
		"Hosts reached without the proxy (default: 169.254.169.254)")
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	projectCfg, err := loadProjectConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, projectCfg)
	if err != nil {
		return err
	}
	defer syncLogger(logger)

	timeout, err := resolveEffectiveTimeout(cmd, projectCfg, iamconn.DefaultTimeout)
	if err != nil {
		return err
	}

	region := whoamiFlags.awsRegion
	if region == "" {
		region = projectCfg.Auth.AWSRegion
	}

	var httpClient aws.HTTPClient
	if proxy := resolveProxy(cmd, whoamiFlags.proxy, whoamiFlags.noProxy, projectCfg); proxy.Enabled() {
		httpClient, err = identity.NewHTTPClient(proxy)
		if err != nil {
			return err
		}
		logger.Verbose("STS traffic proxied through %s", proxy.URL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := newSTSClient(ctx, region, httpClient)
	if err != nil {
		return err
	}
	id, err := identity.CallerIdentity(ctx, client)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "account: %s\n", id.Account)
	fmt.Fprintf(out, "user id: %s\n", id.UserID)
	fmt.Fprintf(out, "arn:     %s\n", id.ARN)
	return nil
}
