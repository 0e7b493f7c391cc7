package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/prodigy/internal/logging"
)

// initLogger installs the process-wide slog logger from the CLI's
// --log-level/--log-format flags, overridable by PRODIGY_LOG_FORMAT so
// automation can force JSON output without touching the invocation.
func initLogger(level, format string) (*slog.Logger, error) {
	f := logging.Format(format)
	if env := os.Getenv("PRODIGY_LOG_FORMAT"); env != "" {
		f = logging.Format(env)
	}

	logger, err := logging.Init(logging.Options{
		Level:  level,
		Format: f,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return logger, nil
}
