// Package logging builds the zap logger shared by the worker and CLI.
package logging

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and encoder. Dev switches to zap's
// human-readable development encoder.
type Config struct {
	Level string
	Dev   bool
}

func levelFromString(l string, dev bool) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "":
		if dev {
			return zapcore.DebugLevel
		}
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns a logger writing to stdout.
func New(cfg Config) (*zap.Logger, error) {
	lvl := levelFromString(cfg.Level, cfg.Dev)
	if cfg.Dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}
	return NewWithWriter(os.Stdout, cfg), nil
}

// NewWithWriter returns a JSON logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), levelFromString(cfg.Level, cfg.Dev))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
