package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// AmbientCredentials is the caller's own identity as found by a resolver.
// Exactly one of the provider handles is set.
type AmbientCredentials struct {
	// Source names where the identity came from, e.g. "environment" or "profile:prod".
	Source string
	Region string

	AWS   aws.CredentialsProvider
	Azure azcore.TokenCredential
}

// CredentialResolver resolves ambient credentials for one connection attempt.
type CredentialResolver interface {
	Resolve(ctx context.Context) (AmbientCredentials, error)
}

// CredentialSource is one link of a resolution chain. A source with nothing
// to offer returns an error wrapping iamconn.ErrNoCredentials.
type CredentialSource interface {
	Name() string
	Resolve(ctx context.Context) (AmbientCredentials, error)
}

// ChainResolver tries its sources in order; the first that yields credentials wins.
// It is immutable and safe for concurrent use.
type ChainResolver struct {
	sources       []CredentialSource
	region        string
	requireRegion bool
}

// NewChainResolver builds a resolver over sources, in priority order.
func NewChainResolver(sources ...CredentialSource) *ChainResolver {
	return &ChainResolver{sources: sources, requireRegion: true}
}

// WithRegion returns a copy whose resolved region is always region (when non-empty).
func (r *ChainResolver) WithRegion(region string) *ChainResolver {
	clone := *r
	clone.region = region
	return &clone
}

// Resolve walks the chain. Every failure is reported as iamconn.ErrCredentialResolution.
func (r *ChainResolver) Resolve(ctx context.Context) (AmbientCredentials, error) {
	var skipped []string

	for _, src := range r.sources {
		creds, err := src.Resolve(ctx)
		if err != nil {
			if errors.Is(err, iamconn.ErrNoCredentials) {
				skipped = append(skipped, fmt.Sprintf("%s: %v", src.Name(), err))
				continue
			}
			return AmbientCredentials{}, fmt.Errorf("%w: %s: %w", iamconn.ErrCredentialResolution, src.Name(), err)
		}

		if creds.Source == "" {
			creds.Source = src.Name()
		}
		if r.region != "" {
			creds.Region = r.region
		}
		if r.requireRegion && creds.Region == "" {
			return AmbientCredentials{}, fmt.Errorf("%w: %s provided credentials but no region (set AWS_REGION or --aws-region)",
				iamconn.ErrCredentialResolution, creds.Source)
		}
		return creds, nil
	}

	if len(skipped) == 0 {
		return AmbientCredentials{}, fmt.Errorf("%w: no credential sources configured", iamconn.ErrCredentialResolution)
	}
	return AmbientCredentials{}, fmt.Errorf("%w: no source provided credentials (%s)",
		iamconn.ErrCredentialResolution, strings.Join(skipped, "; "))
}
