// Package logger holds the process-wide structured logger.
//
// Output goes to stderr until Init points it at a file. Components should
// obtain a scoped logger with WithComponent and log soft failures at Debug
// or Warn so that listings stay quiet unless --debug is set.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	mu       sync.Mutex
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	output   io.Writer = os.Stderr
)

func init() {
	levelVar.Set(slog.LevelWarn)
}

// SetDebug switches between debug and warn level logging.
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelWarn)
	}
}

// SetOutput redirects log output. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	root = nil
}

// Init sends log output to the file at path, creating parent directories.
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", path, err)
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	output = f
	root = nil
	return nil
}

func get() *slog.Logger {
	if root == nil {
		root = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: levelVar}))
	}
	return root
}

// Get returns the root logger.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return get()
}

// WithComponent returns a logger tagged with component=name.
func WithComponent(name string) *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return get().With("component", name)
}

// Reset closes any log file and restores stderr output at warn level.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	output = os.Stderr
	root = nil
	levelVar.Set(slog.LevelWarn)
}
