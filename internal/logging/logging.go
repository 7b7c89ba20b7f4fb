package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a *slog.Logger writing JSON to stderr and optionally to logFile.
// Every record passes through a RedactHandler so API keys listed in secrets,
// and attributes with secret-looking keys, never reach the output. The logger
// is also installed as the slog default. The returned cleanup func closes the
// log file if one was opened; callers must defer it.
func New(level, logFile string, secrets ...string) (*slog.Logger, func(), error) {
	writers := []io.Writer{os.Stderr}
	cleanup := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		cleanup = func() { _ = f.Close() }
	}

	logger := NewWithWriter(io.MultiWriter(writers...), level, secrets...)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

// NewWithWriter builds the same redacting JSON logger over w without touching
// the slog default.
func NewWithWriter(w io.Writer, level string, secrets ...string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(NewRedactHandler(handler, secrets...))
}

func parseLevel(s string) slog.Level {
	switch s {
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
