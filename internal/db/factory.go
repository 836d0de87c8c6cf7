package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/vvka-141/iamconn/internal/retry"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// FactoryOptions carries process-level collaborators into NewConnector.
type FactoryOptions struct {
	Logger iamconn.Logger

	// AWSHTTPClient carries AWS credential traffic, e.g. through a proxy.
	AWSHTTPClient aws.HTTPClient

	// Driver replaces the pgx driver; nil selects PgxDriver.
	Driver Driver
}

// NewConnector is a factory function that creates the appropriate connector
// based on the ConnectionConfig's AuthMethod.
//
// AWS and Azure yield a *TokenConnector; Google yields a *CloudSQLConnector,
// which the caller must Close.
func NewConnector(ctx context.Context, cfg *iamconn.ConnectionConfig, opts FactoryOptions) (iamconn.ConnectionFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("connection config is required: %w", iamconn.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var connOpts []Option
	if opts.Logger != nil {
		connOpts = append(connOpts, WithLogger(opts.Logger))
	}
	if opts.Driver != nil {
		connOpts = append(connOpts, WithDriver(opts.Driver))
	}

	if cfg.Retry {
		connOpts = append(connOpts, WithRetry(retry.NewDefaultExecutor()))
	}

	switch cfg.AuthMethod {
	case iamconn.AuthMethodAWSIAM:
		resolver := NewAWSResolver(AWSResolverOptions{
			Region:     cfg.AWSRegion,
			Profile:    cfg.AWSProfile,
			HTTPClient: opts.AWSHTTPClient,
		})
		return newTokenFactory(cfg.Target, resolver, NewRDSTokenIssuer(), connOpts)
	case iamconn.AuthMethodAzureEntraID:
		resolver := NewAzureResolver(cfg.AzureTenantID, cfg.AzureClientID, cfg.AzureClientSecret)
		return newTokenFactory(cfg.Target, resolver, NewAzureTokenIssuer(), connOpts)
	case iamconn.AuthMethodGoogleIAM:
		connector, err := NewCloudSQLConnector(ctx, cfg.GoogleInstance, cfg.Target, connOpts...)
		if err != nil {
			return nil, err
		}
		return connector, nil
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", cfg.AuthMethod, iamconn.ErrUnsupportedAuthMethod)
	}
}

// newTokenFactory avoids returning a typed nil inside the interface.
func newTokenFactory(target iamconn.ConnectionTarget, resolver CredentialResolver, issuer TokenIssuer, opts []Option) (iamconn.ConnectionFactory, error) {
	connector, err := NewTokenConnector(target, resolver, issuer, opts...)
	if err != nil {
		return nil, err
	}
	return connector, nil
}
