// File: internal/logger/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// slog construction from the logging configuration.

package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/momentics/lvreactor/control"
)

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a logger. The returned closer releases an opened log file and
// is a no-op for stdout and stderr.
func New(cfg control.LoggingConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	return slog.New(NewHandler(w, cfg.Format, level)), closer, nil
}

// NewHandler returns a text or json handler writing to w.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Discard returns a logger dropping every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
