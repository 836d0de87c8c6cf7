package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	SSLRootCert    string `yaml:"sslrootcert,omitempty"`
	AppName        string `yaml:"application_name,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
}

type AuthConfig struct {
	Method         string `yaml:"method,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	AWSProfile     string `yaml:"aws_profile,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

// ProxyConfig routes AWS SDK traffic through an explicit HTTP proxy.
type ProxyConfig struct {
	URL     string   `yaml:"url,omitempty"`
	NoProxy []string `yaml:"no_proxy,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Auth       AuthConfig       `yaml:"auth"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Logging    LoggingConfig    `yaml:"logging"`
	Retry      bool             `yaml:"retry"`
	Timeout    string           `yaml:"timeout"`
}

const ConfigFileName = "iamconn.yaml"

// Load reads ConfigFileName from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a project config from an explicit path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// TimeoutDuration parses Timeout; zero when unset.
func (c *ProjectConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", c.Timeout)
}

// ConnectTimeoutDuration parses Connection.ConnectTimeout; zero when unset.
func (c *ProjectConfig) ConnectTimeoutDuration() (time.Duration, error) {
	return parseDuration("connection.connect_timeout", c.Connection.ConnectTimeout)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, value)
	}
	return d, nil
}
