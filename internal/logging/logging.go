package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kwang/interview-server/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup installs the process-wide slog default and points the stdlib log
// package at the same destination. When cfg.File is set, output goes to a
// rotating file instead of stderr. The returned closer flushes that file.
func Setup(cfg config.Logging) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if strings.TrimSpace(cfg.File) != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = rotating
		closer = rotating
	}

	logger := slog.New(NewHandler(out, cfg))
	slog.SetDefault(logger)
	log.SetOutput(out)

	return logger, closer
}

// NewHandler builds the text or JSON handler named by cfg.Format.
func NewHandler(w io.Writer, cfg config.Logging) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
