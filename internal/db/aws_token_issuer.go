package db

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/rds/auth"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// authTokenBuilder has the signature of auth.BuildAuthToken.
type authTokenBuilder func(ctx context.Context, endpoint, region, dbUser string, creds aws.CredentialsProvider, optFns ...func(*auth.BuildAuthTokenOptions)) (string, error)

// RDSTokenIssuer presigns RDS IAM authentication tokens.
// Before a user can log in this way it must be granted rds_iam.
type RDSTokenIssuer struct {
	build authTokenBuilder
	now   func() time.Time
}

// NewRDSTokenIssuer creates an issuer backed by the AWS SDK presigner.
func NewRDSTokenIssuer() *RDSTokenIssuer {
	return &RDSTokenIssuer{build: auth.BuildAuthToken, now: time.Now}
}

// IssueToken builds a token for req. The token is valid for 15 minutes from now.
func (p *RDSTokenIssuer) IssueToken(ctx context.Context, req TokenRequest) (AuthToken, error) {
	if req.Credentials.AWS == nil {
		return AuthToken{}, fmt.Errorf("RDS IAM auth requires AWS credentials (resolved from %q)", req.Credentials.Source)
	}
	if req.Region == "" {
		return AuthToken{}, fmt.Errorf("RDS IAM auth requires region (use --aws-region or $AWS_REGION)")
	}
	if req.Username == "" {
		return AuthToken{}, fmt.Errorf("RDS IAM auth requires database username")
	}

	issuedAt := p.now()
	token, err := p.build(ctx, req.Endpoint(), req.Region, req.Username, req.Credentials.AWS)
	if err != nil {
		return AuthToken{}, fmt.Errorf("failed to build RDS auth token: %w", err)
	}

	return NewAuthToken(token, issuedAt.Add(iamconn.RDSTokenLifetime)), nil
}

func (p *RDSTokenIssuer) String() string {
	return "RDSTokenIssuer"
}
