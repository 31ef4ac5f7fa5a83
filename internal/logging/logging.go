// Package logging provides the component-scoped logger used across scenekit.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the root logger.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `toml:"level" yaml:"level" mapstructure:"level"`

	// Format is console or json. Defaults to console.
	Format string `toml:"format" yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// ParseLevel parses a level name. Unknown names map to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger wraps a zap logger with printf-style helpers.
type Logger struct {
	z     *zap.Logger
	s     *zap.SugaredLogger
	level zap.AtomicLevel
}

// New builds a root logger writing to stderr.
func New(cfg Config) (*Logger, error) {
	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	z, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z, s: z.Sugar(), level: zc.Level}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z, s: z.Sugar(), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// Zap returns the underlying zap logger.
func (l *Logger) Zap() *zap.Logger { return l.z }

// SetLevel changes the minimum level of loggers built by New.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// WithField returns a logger with key=value attached to every entry.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(zap.Any(key, value))
}

// WithFields returns a logger with every field attached.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	return l.with(zf...)
}

// WithComponent returns a logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(zap.String("component", component))
}

func (l *Logger) with(fields ...zap.Field) *Logger {
	z := l.z.With(fields...)
	return &Logger{z: z, s: z.Sugar(), level: l.level}
}

// Debug logs a debug message. args format msg printf-style.
func (l *Logger) Debug(msg string, args ...any) { l.s.Debugf(msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) { l.s.Infof(msg, args...) }

// Warn logs a warning.
func (l *Logger) Warn(msg string, args ...any) { l.s.Warnf(msg, args...) }

// Error logs an error.
func (l *Logger) Error(msg string, args ...any) { l.s.Errorf(msg, args...) }

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}
