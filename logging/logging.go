// Package logging configures the leveled logger shared by the harness,
// the checkout flow and the CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures the logger.
type Options struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Output is the writer for console output (default: os.Stderr).
	Output io.Writer
	// File is an optional path; when set, log entries are also appended there.
	File string
	// Prefix is the component name prefix.
	Prefix string
	// TimeFormat is the time format string (default: "2006-01-02 15:04:05").
	TimeFormat string
	// ReportCaller adds file:line to log entries.
	ReportCaller bool
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Output:     os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
	}
}

// ParseLevel converts a string level to log.Level. Unknown levels fall
// back to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// New creates a logger from the given options. When Options.File is set
// the returned closer flushes and closes the file sink; otherwise it is
// a no-op.
func New(opts Options) (*log.Logger, func() error, error) {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.TimeFormat == "" {
		opts.TimeFormat = "2006-01-02 15:04:05"
	}

	out := opts.Output
	closer := func() error { return nil }

	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(opts.Output, f)
		closer = f.Close
	}

	logger := log.NewWithOptions(out, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      opts.TimeFormat,
		ReportCaller:    opts.ReportCaller,
		ReportTimestamp: true,
	})

	return logger, closer, nil
}

// ForSession returns a child logger scoped to one simulated user.
func ForSession(logger *log.Logger, userID int) *log.Logger {
	return logger.With("user", userID)
}

// Elapsed formats a duration for log output, rounded to milliseconds.
func Elapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
