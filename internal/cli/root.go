package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "iamconn",
	Short: "Passwordless PostgreSQL connections with cloud IAM tokens",
	Long: `iamconn opens PostgreSQL connections without a stored password.

For every connection it resolves the caller's ambient cloud identity, mints a
short-lived IAM authentication token scoped to the host, port and database
user, and presents that token as the password over a TLS-encrypted session.

Identity resolution order (AWS):
  1. AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY
  2. Shared config profile ($AWS_PROFILE or "default")
  3. Workload identity (web identity, container, EC2 instance role)

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or parameters
  11 - Database connection failed
  12 - No ambient identity or region could be resolved
  13 - Credential service did not issue a token
  14 - Connection would not have been encrypted`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("help", false, "Help for iamconn")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output for all commands")
	rootCmd.PersistentFlags().String("config", "",
		"Path to iamconn.yaml (default: ./iamconn.yaml when present)")
	rootCmd.PersistentFlags().String("log-level", "",
		"Log level: debug|info|warn|error (default: $IAMCONN_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().String("log-format", "",
		"Log format: console|json (default: $IAMCONN_LOG_FORMAT or console)")
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

func getStringFlag(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return value
}
