package db

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// sslmodes under which libpq-style clients never fall back to plaintext.
var encryptedSSLModes = map[string]bool{
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// enforceSSLMode keeps a mode that already requires TLS and upgrades anything
// else ("", disable, allow, prefer) to require.
func enforceSSLMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if encryptedSSLModes[mode] {
		return mode
	}
	return iamconn.DefaultSSLMode
}

// verifyEncryption rejects configs where the primary host or any fallback
// would be dialed without TLS.
func verifyEncryption(cfg *pgconn.Config) error {
	if cfg.TLSConfig == nil {
		return fmt.Errorf("%w: %s:%d would be dialed without TLS", iamconn.ErrEncryptionRequired, cfg.Host, cfg.Port)
	}
	for _, fb := range cfg.Fallbacks {
		if fb.TLSConfig == nil {
			return fmt.Errorf("%w: fallback %s:%d would be dialed without TLS", iamconn.ErrEncryptionRequired, fb.Host, fb.Port)
		}
	}
	return nil
}
