package identity

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

func proxyFor(t *testing.T, p ProxyConfig, target string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	u, err := p.ProxyFunc()(req)
	require.NoError(t, err)
	if u == nil {
		return ""
	}
	return u.String()
}

func TestProxyFunc_RoutesThroughExplicitProxy(t *testing.T) {
	t.Setenv("HTTPS_PROXY", "http://env-proxy:3128")
	p := ProxyConfig{URL: "http://squid.internal:3128"}

	assert.Equal(t, "http://squid.internal:3128", proxyFor(t, p, "https://sts.us-east-1.amazonaws.com/"))
	assert.Equal(t, "http://squid.internal:3128", proxyFor(t, p, "http://example.com/"))
}

func TestProxyFunc_DefaultBypassesInstanceMetadata(t *testing.T) {
	p := ProxyConfig{URL: "http://squid.internal:3128"}

	assert.Empty(t, proxyFor(t, p, "http://169.254.169.254/latest/api/token"))
}

func TestProxyFunc_CustomNoProxy(t *testing.T) {
	p := ProxyConfig{URL: "http://squid.internal:3128", NoProxy: []string{".internal.example.com"}}

	assert.Empty(t, proxyFor(t, p, "https://vault.internal.example.com/"))
	assert.Equal(t, "http://squid.internal:3128", proxyFor(t, p, "http://169.254.169.254/"),
		"an explicit NoProxy list replaces the default")
}

func TestProxyConfig_Validate(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"", false},
		{"http://proxy:3128", false},
		{"https://proxy:443", false},
		{"socks5://proxy:1080", false},
		{"ftp://proxy", true},
		{"http://", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ProxyConfig{URL: tt.url}.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, iamconn.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Run("explicit proxy", func(t *testing.T) {
		client, err := NewHTTPClient(ProxyConfig{URL: "http://squid.internal:3128"})
		require.NoError(t, err)

		buildable, ok := client.(*awshttp.BuildableClient)
		require.True(t, ok)
		tr := buildable.GetTransport()
		require.NotNil(t, tr.Proxy)

		req, _ := http.NewRequest(http.MethodGet, "https://sts.amazonaws.com/", nil)
		u, err := tr.Proxy(req)
		require.NoError(t, err)
		assert.Equal(t, "squid.internal:3128", u.Host)
	})

	t.Run("default client", func(t *testing.T) {
		client, err := NewHTTPClient(ProxyConfig{})
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("invalid proxy", func(t *testing.T) {
		_, err := NewHTTPClient(ProxyConfig{URL: "ftp://proxy"})
		assert.ErrorIs(t, err, iamconn.ErrInvalidConfig)
	})
}

func TestNewSTSClient(t *testing.T) {
	client, err := NewHTTPClient(ProxyConfig{URL: "http://squid.internal:3128"})
	require.NoError(t, err)

	stsClient, err := NewSTSClient(context.Background(), "eu-west-1", client)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", stsClient.Options().Region)

	buildable, ok := stsClient.Options().HTTPClient.(*awshttp.BuildableClient)
	require.True(t, ok)
	assert.NotNil(t, buildable.GetTransport().Proxy, "STS requests go through the proxy")
}

type fakeSTS struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestCallerIdentity(t *testing.T) {
	api := &fakeSTS{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		UserId:  aws.String("AROAEXAMPLE:session"),
		Arn:     aws.String("arn:aws:sts::123456789012:assumed-role/app/session"),
	}}

	id, err := CallerIdentity(context.Background(), api)
	require.NoError(t, err)
	assert.Equal(t, Identity{
		Account: "123456789012",
		UserID:  "AROAEXAMPLE:session",
		ARN:     "arn:aws:sts::123456789012:assumed-role/app/session",
	}, id)
}

func TestCallerIdentity_Error(t *testing.T) {
	cause := errors.New("ExpiredToken")
	_, err := CallerIdentity(context.Background(), &fakeSTS{err: cause})
	assert.ErrorIs(t, err, iamconn.ErrCredentialResolution)
	assert.ErrorIs(t, err, cause)
}
