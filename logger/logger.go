// Package logger constructs the zap loggers used across the service.
package logger

import "go.uber.org/zap"

// Config controls logger construction.
type Config struct {
	// Debug enables the human-readable development encoder at debug level.
	Debug bool
}

// NewLogger builds a zap logger: development config when Debug is set,
// production JSON otherwise.
func NewLogger(cfg *Config) (*zap.Logger, error) {
	if cfg != nil && cfg.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
