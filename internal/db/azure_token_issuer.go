package db

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// AzurePostgreSQLScope is the OAuth scope for Azure Database for PostgreSQL.
const AzurePostgreSQLScope = "https://ossrdbms-aad.database.windows.net/.default"

// AzureResolver resolves an Entra ID identity. With tenant, client and secret
// all set it uses a service principal; otherwise DefaultAzureCredential
// (environment, workload identity, managed identity, Azure CLI, ...).
type AzureResolver struct {
	tenantID     string
	clientID     string
	clientSecret string
}

// NewAzureResolver creates a resolver; empty arguments select the default chain.
func NewAzureResolver(tenantID, clientID, clientSecret string) *AzureResolver {
	return &AzureResolver{tenantID: tenantID, clientID: clientID, clientSecret: clientSecret}
}

func (r *AzureResolver) usesServicePrincipal() bool {
	return r.tenantID != "" && r.clientID != "" && r.clientSecret != ""
}

func (r *AzureResolver) Resolve(_ context.Context) (AmbientCredentials, error) {
	var (
		cred   azcore.TokenCredential
		source string
		err    error
	)

	if r.usesServicePrincipal() {
		cred, err = azidentity.NewClientSecretCredential(r.tenantID, r.clientID, r.clientSecret, nil)
		source = fmt.Sprintf("azure-service-principal(tenant=%s, client=%s)", r.tenantID, r.clientID)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		source = "azure-default-credential"
	}
	if err != nil {
		return AmbientCredentials{}, fmt.Errorf("%w: %s: %w", iamconn.ErrCredentialResolution, source, err)
	}

	return AmbientCredentials{Source: source, Azure: cred}, nil
}

// AzureTokenIssuer acquires Entra ID access tokens for Azure Database for PostgreSQL.
type AzureTokenIssuer struct{}

func NewAzureTokenIssuer() *AzureTokenIssuer {
	return &AzureTokenIssuer{}
}

func (p *AzureTokenIssuer) IssueToken(ctx context.Context, req TokenRequest) (AuthToken, error) {
	if req.Credentials.Azure == nil {
		return AuthToken{}, fmt.Errorf("azure token issuance requires an Entra ID credential (resolved from %q)", req.Credentials.Source)
	}

	token, err := req.Credentials.Azure.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{AzurePostgreSQLScope},
	})
	if err != nil {
		return AuthToken{}, fmt.Errorf("azure token acquisition failed: %w", err)
	}
	return NewAuthToken(token.Token, token.ExpiresOn), nil
}

func (p *AzureTokenIssuer) String() string {
	return "AzureTokenIssuer"
}
