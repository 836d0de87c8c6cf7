package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// sslModes contains the PostgreSQL SSL modes accepted without an upgrade.
var sslModes = []string{"require", "verify-ca", "verify-full"}

var authMethods = []string{"aws", "azure", "google"}

func completeFrom(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var matches []string
		for _, v := range values {
			if strings.HasPrefix(v, toComplete) {
				matches = append(matches, v)
			}
		}
		return matches, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeSSLModes provides shell completion for SSL mode flag values.
var completeSSLModes = completeFrom(sslModes)

// completeAuthMethods provides shell completion for --auth-method.
var completeAuthMethods = completeFrom(authMethods)
