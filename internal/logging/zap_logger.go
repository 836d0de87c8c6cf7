package logging

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vvka-141/iamconn/pkg/iamconn"
)

// ZapLogger adapts a zap logger to iamconn.Logger.
// Verbose maps to debug level and is dropped unless verbose is set.
type ZapLogger struct {
	z       *zap.Logger
	verbose bool
}

// NewZapLogger wraps z. A nil z yields a no-op logger.
func NewZapLogger(z *zap.Logger, verbose bool) *ZapLogger {
	if z == nil {
		z = zap.NewNop()
	}
	return &ZapLogger{z: z, verbose: verbose}
}

// With returns a logger that adds fields to every entry.
func (l *ZapLogger) With(fields ...zap.Field) *ZapLogger {
	return &ZapLogger{z: l.z.With(fields...), verbose: l.verbose}
}

// Zap exposes the underlying logger.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.z
}

func (l *ZapLogger) Verbose(format string, args ...interface{}) {
	if !l.verbose {
		return
	}
	l.z.Debug(sprintf(format, args))
}

func (l *ZapLogger) Info(format string, args ...interface{}) {
	l.z.Info(sprintf(format, args))
}

func (l *ZapLogger) Error(format string, args ...interface{}) {
	l.z.Error(sprintf(format, args))
}

func sprintf(format string, args []interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

var _ iamconn.Logger = (*ZapLogger)(nil)
