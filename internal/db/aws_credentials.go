package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// AWSResolverOptions configures the default AWS resolution chain.
type AWSResolverOptions struct {
	// Region overrides the region found by the chain.
	Region string

	// Profile names the shared config profile; $AWS_PROFILE or "default" when empty.
	Profile string

	// HTTPClient carries credential-endpoint traffic (IMDS, STS web identity, SSO).
	// Nil means the SDK default client.
	HTTPClient aws.HTTPClient

	// Getenv replaces os.Getenv in tests.
	Getenv func(string) string
}

// NewAWSResolver returns the environment -> profile -> workload identity chain.
func NewAWSResolver(opts AWSResolverOptions) *ChainResolver {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return NewChainResolver(
		&EnvSource{Getenv: getenv},
		&ProfileSource{Profile: opts.Profile, HTTPClient: opts.HTTPClient, Getenv: getenv},
		&WorkloadIdentitySource{HTTPClient: opts.HTTPClient},
	).WithRegion(opts.Region)
}

// EnvSource reads static keys from AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY.
type EnvSource struct {
	Getenv func(string) string
}

func (s *EnvSource) Name() string { return "environment" }

func (s *EnvSource) Resolve(_ context.Context) (AmbientCredentials, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	keyID := firstNonEmpty(getenv("AWS_ACCESS_KEY_ID"), getenv("AWS_ACCESS_KEY"))
	secret := firstNonEmpty(getenv("AWS_SECRET_ACCESS_KEY"), getenv("AWS_SECRET_KEY"))
	if keyID == "" || secret == "" {
		return AmbientCredentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY not set: %w", iamconn.ErrNoCredentials)
	}

	return AmbientCredentials{
		Source: s.Name(),
		Region: firstNonEmpty(getenv("AWS_REGION"), getenv("AWS_DEFAULT_REGION")),
		AWS:    credentials.NewStaticCredentialsProvider(keyID, secret, getenv("AWS_SESSION_TOKEN")),
	}, nil
}

// ProfileSource uses a named profile from the shared config and credentials files.
// Role, SSO and credential_process profiles are handled by the SDK.
type ProfileSource struct {
	Profile    string
	HTTPClient aws.HTTPClient
	Getenv     func(string) string
}

func (s *ProfileSource) Name() string { return "profile:" + s.profile() }

func (s *ProfileSource) profile() string {
	if s.Profile != "" {
		return s.Profile
	}
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return firstNonEmpty(getenv("AWS_PROFILE"), "default")
}

func (s *ProfileSource) Resolve(ctx context.Context) (AmbientCredentials, error) {
	profile := s.profile()
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	// LoadSharedConfigProfile only looks at ~/.aws unless told otherwise.
	shared, err := config.LoadSharedConfigProfile(ctx, profile, func(o *config.LoadSharedConfigOptions) {
		if f := getenv("AWS_CONFIG_FILE"); f != "" {
			o.ConfigFiles = []string{f}
		}
		if f := getenv("AWS_SHARED_CREDENTIALS_FILE"); f != "" {
			o.CredentialsFiles = []string{f}
		}
	})
	if err != nil {
		var notExist config.SharedConfigProfileNotExistError
		if errors.As(err, &notExist) {
			return AmbientCredentials{}, fmt.Errorf("profile %q not found: %w", profile, iamconn.ErrNoCredentials)
		}
		return AmbientCredentials{}, fmt.Errorf("failed to read profile %q: %w", profile, err)
	}

	opts := []func(*config.LoadOptions) error{config.WithSharedConfigProfile(profile)}
	if s.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(s.HTTPClient))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return AmbientCredentials{}, fmt.Errorf("failed to load AWS config for profile %q: %w", profile, err)
	}
	if cfg.Credentials == nil {
		return AmbientCredentials{}, fmt.Errorf("profile %q has no credentials: %w", profile, iamconn.ErrNoCredentials)
	}

	return AmbientCredentials{
		Source: s.Name(),
		Region: firstNonEmpty(cfg.Region, shared.Region),
		AWS:    cfg.Credentials,
	}, nil
}

// WorkloadIdentitySource covers web identity, container and EC2 instance roles
// through the SDK default chain. Credentials are retrieved once to prove they exist.
type WorkloadIdentitySource struct {
	HTTPClient aws.HTTPClient
}

func (s *WorkloadIdentitySource) Name() string { return "workload-identity" }

func (s *WorkloadIdentitySource) Resolve(ctx context.Context) (AmbientCredentials, error) {
	opts := []func(*config.LoadOptions) error{config.WithEC2IMDSRegion()}
	if s.HTTPClient != nil {
		opts = append(opts, config.WithHTTPClient(s.HTTPClient))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return AmbientCredentials{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if cfg.Credentials == nil {
		return AmbientCredentials{}, fmt.Errorf("no workload identity: %w", iamconn.ErrNoCredentials)
	}
	if _, err := cfg.Credentials.Retrieve(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return AmbientCredentials{}, ctxErr
		}
		return AmbientCredentials{}, fmt.Errorf("no workload identity (%v): %w", err, iamconn.ErrNoCredentials)
	}

	return AmbientCredentials{
		Source: s.Name(),
		Region: cfg.Region,
		AWS:    cfg.Credentials,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
