// shared/pkg/logger/logger.go
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects how a service logs.
type Options struct {
	Service string
	// Environment "development" switches to colored console output.
	Environment string
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
}

// New builds the structured logger for a service. Every entry carries the
// service and environment fields.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var config zap.Config
	if opts.Environment == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.InitialFields = map[string]interface{}{
		"service":     opts.Service,
		"environment": opts.Environment,
	}

	return config.Build()
}
