package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// Config selects level and encoder. Env is "production", "development" or
// "auto" (development when stderr is a terminal).
type Config struct {
	Level       string
	Env         string
	OutputPaths []string
	RunID       string
}

// New builds the process logger.
func New(cfg Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if isDevelopment(cfg.Env) {
		zc = zap.NewDevelopmentConfig()
	}
	zc.DisableStacktrace = true

	if cfg.Level == "" {
		cfg.Level = "info"
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = level

	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	if cfg.RunID != "" {
		zc.InitialFields = map[string]any{"run_id": cfg.RunID}
	}

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

func isDevelopment(env string) bool {
	switch env {
	case "production", "prod":
		return false
	case "development", "dev":
		return true
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
