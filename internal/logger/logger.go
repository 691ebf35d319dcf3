// Package logger wraps log/slog with a process-wide JSON logger and
// per-phase loggers that tee the stream to a phase log file.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	level         = new(slog.LevelVar)
	once          sync.Once
)

// Init installs the process-wide JSON logger on stdout. Repeat calls
// are no-ops.
func Init() {
	once.Do(func() {
		defaultLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(defaultLogger)
	})
}

// SetVerbose switches the default level between Info and Debug.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// Get returns the initialized default logger.
func Get() *slog.Logger {
	Init()
	return defaultLogger
}

// NewPhase returns a logger that writes JSON records to both stdout and
// log/phase_<name>_<ts>.log under logDir. The returned close function
// flushes and closes the file; the returned path is the log location.
func NewPhase(name, logDir string) (*slog.Logger, func() error, string, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, "", fmt.Errorf("failed to create log directory: %w", err)
	}
	ts := time.Now().Format("20060102_150405")
	path := filepath.Join(logDir, fmt.Sprintf("phase_%s_%s.log", name, ts))
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, "", fmt.Errorf("failed to create phase log: %w", err)
	}
	l := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{
		Level: level,
	})).With("phase", name)
	return l, f.Close, path, nil
}

// Info logs at info level on the process logger.
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs msg with a non-nil err attached as an attribute.
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Get().Error(msg, args...)
}

// Debug logs at debug level; records appear only after SetVerbose(true).
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}
