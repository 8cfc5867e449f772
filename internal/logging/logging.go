package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"FlowGuard/internal/config"

	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger from cfg. The returned closer
// releases the log file, if one was opened.
func Setup(cfg config.LogConfig) (io.Closer, error) {
	return Configure(log.StandardLogger(), cfg)
}

// Configure applies level, formatter and output to logger.
func Configure(logger *log.Logger, cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	logger.SetLevel(level)

	switch cfg.Format {
	case "json":
		logger.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File == "" {
		logger.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return file, nil
}
