package iamconn_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

func TestConnectionTarget_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  iamconn.ConnectionTarget
		wantErr bool
	}{
		{"valid", iamconn.ConnectionTarget{Host: "db.example.com", Port: 5432}, false},
		{"missing host", iamconn.ConnectionTarget{Port: 5432}, true},
		{"blank host", iamconn.ConnectionTarget{Host: "  ", Port: 5432}, true},
		{"zero port", iamconn.ConnectionTarget{Host: "db"}, true},
		{"port too large", iamconn.ConnectionTarget{Host: "db", Port: 70000}, true},
		{"negative timeout", iamconn.ConnectionTarget{Host: "db", Port: 5432, ConnectTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, iamconn.ErrInvalidConfig))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConnectionTarget_Endpoint(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"mydb.cluster.us-east-1.rds.amazonaws.com", "mydb.cluster.us-east-1.rds.amazonaws.com:5432"},
		{"10.0.0.7", "10.0.0.7:5432"},
		{"::1", "[::1]:5432"},
		{"fd00:ec2::23", "[fd00:ec2::23]:5432"},
	}
	for _, tt := range tests {
		target := iamconn.ConnectionTarget{Host: tt.host, Port: 5432}
		assert.Equal(t, tt.want, target.Endpoint())
	}
}

func TestConnectionConfig_Validate(t *testing.T) {
	t.Run("aws requires target", func(t *testing.T) {
		cfg := &iamconn.ConnectionConfig{AuthMethod: iamconn.AuthMethodAWSIAM}
		assert.ErrorIs(t, cfg.Validate(), iamconn.ErrInvalidConfig)
	})

	t.Run("google requires instance only", func(t *testing.T) {
		cfg := &iamconn.ConnectionConfig{AuthMethod: iamconn.AuthMethodGoogleIAM}
		assert.ErrorIs(t, cfg.Validate(), iamconn.ErrInvalidConfig)

		cfg.GoogleInstance = "proj:us-central1:db"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown auth method", func(t *testing.T) {
		cfg := &iamconn.ConnectionConfig{
			AuthMethod: iamconn.AuthMethod(42),
			Target:     iamconn.ConnectionTarget{Host: "db", Port: 5432},
		}
		assert.ErrorIs(t, cfg.Validate(), iamconn.ErrUnsupportedAuthMethod)
	})
}

func TestParseAuthMethod(t *testing.T) {
	tests := []struct {
		in   string
		want iamconn.AuthMethod
	}{
		{"", iamconn.AuthMethodAWSIAM},
		{"aws", iamconn.AuthMethodAWSIAM},
		{"RDS", iamconn.AuthMethodAWSIAM},
		{"azure", iamconn.AuthMethodAzureEntraID},
		{"google", iamconn.AuthMethodGoogleIAM},
		{" cloudsql ", iamconn.AuthMethodGoogleIAM},
	}
	for _, tt := range tests {
		got, err := iamconn.ParseAuthMethod(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := iamconn.ParseAuthMethod("kerberos")
	assert.ErrorIs(t, err, iamconn.ErrUnsupportedAuthMethod)
}

func TestAuthMethod_String(t *testing.T) {
	assert.Equal(t, "AWS IAM", iamconn.AuthMethodAWSIAM.String())
	assert.Equal(t, "Unknown(9)", iamconn.AuthMethod(9).String())
	assert.False(t, iamconn.AuthMethod(-1).IsValid())
}
