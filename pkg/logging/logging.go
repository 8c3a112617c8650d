package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// New builds a production JSON logger at level. When file is set, entries
// also go to that file; its directory is created if needed.
func New(level, file string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	// accept the level names of older deployments
	switch strings.ToLower(level) {
	case "warning":
		level = "warn"
	case "critical":
		level = "error"
	}

	atom, err := zap.ParseAtomicLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}

	return cfg.Build()
}
