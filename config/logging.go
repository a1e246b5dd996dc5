package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetupLogging builds a *zap.Logger writing JSON lines at target.Level to
// target.Path and installs it as the package-global logger via
// zap.ReplaceGlobals, so every package downstream can just call
// zap.L().Sugar() without carrying a logger reference. Returns the sync
// func callers should defer.
func SetupLogging(target TracingTarget) (*zap.Logger, func(), error) {
	level, err := zapcore.ParseLevel(target.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("config: tracing level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{target.Path}
	cfg.ErrorOutputPaths = []string{target.Path}

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("config: build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, func() { _ = logger.Sync() }, nil
}
