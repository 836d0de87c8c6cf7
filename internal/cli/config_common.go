package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vvka-141/iamconn/internal/config"
	"github.com/vvka-141/iamconn/internal/identity"
	"github.com/vvka-141/iamconn/internal/logging"
	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// loadProjectConfig loads .env and the project configuration.
// Without --config a missing ./iamconn.yaml is not an error; an explicit path must exist.
func loadProjectConfig(cmd *cobra.Command) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	if path := getStringFlag(cmd, "config"); path != "" {
		projectCfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w: %w", path, iamconn.ErrInvalidConfig, err)
		}
		return projectCfg, nil
	}

	projectCfg, err := config.Load(".")
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return &config.ProjectConfig{}, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w: %w", config.ConfigFileName, iamconn.ErrInvalidConfig, err)
	}
	return projectCfg, nil
}

// newLogger builds the process logger. --verbose lowers the default level to debug.
func newLogger(cmd *cobra.Command, projectCfg *config.ProjectConfig) (*logging.ZapLogger, error) {
	verbose := getVerboseFlag(cmd)

	flagCfg := logging.Config{
		Level:  getStringFlag(cmd, "log-level"),
		Format: getStringFlag(cmd, "log-format"),
	}
	if verbose && flagCfg.Level == "" && os.Getenv("IAMCONN_LOG_LEVEL") == "" {
		flagCfg.Level = "debug"
	}

	var fileCfg logging.Config
	if projectCfg != nil {
		fileCfg = logging.Config{Level: projectCfg.Logging.Level, Format: projectCfg.Logging.Format}
	}

	z, err := logging.New(logging.Resolve(flagCfg, fileCfg))
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w: %w", iamconn.ErrInvalidConfig, err)
	}
	return logging.NewZapLogger(z, verbose), nil
}

// resolveEffectiveTimeout returns the effective timeout, preferring iamconn.yaml if flag wasn't set.
func resolveEffectiveTimeout(
	cmd *cobra.Command,
	projectCfg *config.ProjectConfig,
	flagTimeout time.Duration,
) (time.Duration, error) {
	if projectCfg != nil && projectCfg.Timeout != "" && !cmd.Flags().Changed("timeout") {
		parsed, err := projectCfg.TimeoutDuration()
		if err != nil {
			return 0, fmt.Errorf("invalid timeout in %s: %w: %w", config.ConfigFileName, iamconn.ErrInvalidConfig, err)
		}
		return parsed, nil
	}
	if flagTimeout <= 0 {
		return 0, fmt.Errorf("--timeout must be positive: %w", iamconn.ErrInvalidConfig)
	}
	return flagTimeout, nil
}

// resolveProxy merges --proxy/--no-proxy with the proxy section of iamconn.yaml.
func resolveProxy(cmd *cobra.Command, proxyURL string, noProxy []string, projectCfg *config.ProjectConfig) identity.ProxyConfig {
	p := identity.ProxyConfig{URL: proxyURL, NoProxy: noProxy}
	if projectCfg == nil {
		return p
	}
	if p.URL == "" {
		p.URL = projectCfg.Proxy.URL
	}
	if !cmd.Flags().Changed("no-proxy") && projectCfg.Proxy.NoProxy != nil {
		p.NoProxy = projectCfg.Proxy.NoProxy
	}
	return p
}

func syncLogger(logger *logging.ZapLogger) {
	if logger != nil {
		logging.Sync(logger.Zap())
	}
}

// redactedFields lists connection details safe to log.
func redactedFields(cfg *iamconn.ConnectionConfig) []zap.Field {
	return []zap.Field{
		zap.String("host", cfg.Target.Host),
		zap.Int("port", cfg.Target.Port),
		zap.String("user", cfg.Target.Username),
		zap.String("database", cfg.Target.Database),
		zap.String("sslmode", cfg.Target.SSLMode),
		zap.Stringer("auth_method", cfg.AuthMethod),
	}
}
