// Package logging configures the process-wide structured logger.
//
// Grounded on the teacher's logger package: a package-level slog.Logger
// configurable by level and format, installed once at process start and
// retrieved via slog.Default() everywhere else rather than threaded
// through every function call.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler used to render log records.
type Format string

const (
	// FormatSimple renders "time level msg key=value ..." text, the
	// default for interactive terminal use.
	FormatSimple Format = "simple"

	// FormatVerbose renders single-line text including source location.
	FormatVerbose Format = "verbose"

	// FormatJSON renders newline-delimited JSON, for log aggregation.
	FormatJSON Format = "json"
)

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", levelStr)
	}
}

// Options configures Init.
type Options struct {
	Level  string
	Format Format
	// Output is where log records are written. Defaults to os.Stderr so
	// that stdout stays free for command output (shell/claude capture,
	// `dlq list` tables, etc.).
	Output io.Writer
}

// Init installs the process-wide logger and returns it. Call once from
// main before any component logs.
func Init(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Format == FormatVerbose,
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, handlerOpts)
	default:
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// WithJob returns a logger annotated with the job's correlation id, for
// every log line a component emits while acting on that job.
func WithJob(logger *slog.Logger, jobID string) *slog.Logger {
	return logger.With("job_id", jobID)
}

// WithAgent further annotates a job-scoped logger with an agent id.
func WithAgent(logger *slog.Logger, agentID string) *slog.Logger {
	return logger.With("agent_id", agentID)
}
