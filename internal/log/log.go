// Package log is the process-wide structured logger. It wraps slog so the
// rest of the tree never touches handler setup.
package log

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// Init sets up the shared logger at the given level. The first call wins;
// later calls are ignored so libraries cannot reconfigure the process.
// Levels are "debug", "info", "warn", "error"; anything else means info.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()
	initLocked(level)
}

func initLocked(level string) {
	if logger != nil {
		return
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	// JSON for production log shippers, text for a human at a terminal.
	var h slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger = slog.New(h)
	slog.SetDefault(logger)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// L returns the shared logger, initializing it at info level if Init was
// never called.
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	initLocked("info")
	return logger
}

// Component returns a logger tagged with the subsystem it belongs to.
func Component(name string) *slog.Logger {
	return L().With("component", name)
}

// Debug logs at debug level on the shared logger.
func Debug(msg string, args ...any) { L().Debug(msg, args...) }

// Info logs at info level on the shared logger.
func Info(msg string, args ...any) { L().Info(msg, args...) }

// Warn logs at warn level on the shared logger.
func Warn(msg string, args ...any) { L().Warn(msg, args...) }

// Error logs at error level on the shared logger.
func Error(msg string, args ...any) { L().Error(msg, args...) }
