package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger from LOG_LEVEL and LOG_FORMAT and installs it as the slog default.
func New(level, format string) *slog.Logger {
	return newWithWriter(os.Stdout, level, format)
}

func newWithWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SchedulerLogger adapts a slog.Logger to the gocron.Logger interface.
type SchedulerLogger struct {
	Logger *slog.Logger
}

func (l SchedulerLogger) Debug(msg string, args ...any) { l.Logger.Debug(msg, append(args, "component", "scheduler")...) }
func (l SchedulerLogger) Info(msg string, args ...any)  { l.Logger.Info(msg, append(args, "component", "scheduler")...) }
func (l SchedulerLogger) Warn(msg string, args ...any)  { l.Logger.Warn(msg, append(args, "component", "scheduler")...) }
func (l SchedulerLogger) Error(msg string, args ...any) { l.Logger.Error(msg, append(args, "component", "scheduler")...) }
