// Package identity reports which AWS principal the ambient credentials belong
// to, optionally routing SDK traffic through an explicit HTTP proxy.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"golang.org/x/net/http/httpproxy"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// ProxyConfig routes AWS SDK traffic through an explicit proxy. When URL is
// set, HTTP(S)_PROXY environment variables are ignored.
type ProxyConfig struct {
	URL string

	// NoProxy lists hosts reached directly; the instance metadata endpoint when nil.
	NoProxy []string
}

// Enabled reports whether an explicit proxy is configured.
func (p ProxyConfig) Enabled() bool {
	return p.URL != ""
}

func (p ProxyConfig) noProxy() []string {
	if p.NoProxy == nil {
		return []string{iamconn.InstanceMetadataHost}
	}
	return p.NoProxy
}

// Validate checks the proxy URL.
func (p ProxyConfig) Validate() error {
	if !p.Enabled() {
		return nil
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL %q: %w: %w", p.URL, iamconn.ErrInvalidConfig, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("proxy URL %q must use http, https or socks5: %w", p.URL, iamconn.ErrInvalidConfig)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy URL %q has no host: %w", p.URL, iamconn.ErrInvalidConfig)
	}
	return nil
}

// ProxyFunc returns the transport proxy selector for p.
func (p ProxyConfig) ProxyFunc() func(*http.Request) (*url.URL, error) {
	cfg := &httpproxy.Config{
		HTTPProxy:  p.URL,
		HTTPSProxy: p.URL,
		NoProxy:    strings.Join(p.noProxy(), ","),
	}
	proxyFor := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return proxyFor(req.URL)
	}
}

// NewHTTPClient returns an AWS SDK HTTP client. Without an explicit proxy it
// is the SDK default, which honours the proxy environment variables.
func NewHTTPClient(p ProxyConfig) (aws.HTTPClient, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	client := awshttp.NewBuildableClient()
	if !p.Enabled() {
		return client, nil
	}
	return client.WithTransportOptions(func(tr *http.Transport) {
		tr.Proxy = p.ProxyFunc()
	}), nil
}

// STSAPI is the STS call used by CallerIdentity.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// NewSTSClient builds an STS client from the default config chain, using
// httpClient for every request when it is non-nil.
func NewSTSClient(ctx context.Context, region string, httpClient aws.HTTPClient) (*sts.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if httpClient != nil {
		opts = append(opts, config.WithHTTPClient(httpClient))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w: %w", iamconn.ErrCredentialResolution, err)
	}
	return sts.NewFromConfig(cfg), nil
}

// Identity is the principal behind a set of AWS credentials.
type Identity struct {
	Account string
	UserID  string
	ARN     string
}

// CallerIdentity asks STS who the current credentials belong to.
func CallerIdentity(ctx context.Context, client STSAPI) (Identity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, fmt.Errorf("sts:GetCallerIdentity failed: %w: %w", iamconn.ErrCredentialResolution, err)
	}
	return Identity{
		Account: aws.ToString(out.Account),
		UserID:  aws.ToString(out.UserId),
		ARN:     aws.ToString(out.Arn),
	}, nil
}
