package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a production zap logger. format is "json" (default) or
// "console"; an unknown level falls back to info.
func NewLogger(level, format string) (*zap.Logger, error) {
	config := newConfig(level, format)
	return config.Build()
}

// NewFileLogger writes to path in addition to stderr.
func NewFileLogger(path, level string) (*zap.Logger, error) {
	config := newConfig(level, "json")
	config.OutputPaths = append(config.OutputPaths, path)
	config.ErrorOutputPaths = append(config.ErrorOutputPaths, path)
	return config.Build()
}

func newConfig(level, format string) zap.Config {
	config := zap.NewProductionConfig()

	l, err := zapcore.ParseLevel(level)
	if err != nil {
		l = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(l)

	if format == "console" {
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	config.EncoderConfig.TimeKey = "time"
	return config
}
