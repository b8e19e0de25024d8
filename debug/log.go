package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	file    *os.File
	logger  *slog.Logger
	level   = new(slog.LevelVar)
	mu      sync.Mutex
	enabled bool
)

func init() {
	level.Set(slog.LevelDebug)
}

// Enable starts debug logging to ~/.config/go-midiseq/debug.log
func Enable() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	dir := filepath.Join(homeDir, ".config", "go-midiseq")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(dir, "debug.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	mu.Lock()
	if file != nil {
		file.Close()
	}
	file = f
	mu.Unlock()

	EnableWriter(f)
	return nil
}

// EnableWriter routes debug logging to w (tests use a buffer, tools stderr)
func EnableWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	enabled = true
	logger.Info("=== Debug logging started ===", "category", "debug")
}

// SetLevel parses "debug", "info", "warn" or "error"
func SetLevel(name string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return fmt.Errorf("invalid log level: %s", name)
	}
	level.Set(l)
	return nil
}

// Disable stops debug logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	logger = nil
	enabled = false
}

// Enabled reports whether logging is on
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Log writes a message to the debug log
func Log(category, format string, args ...any) {
	emit(slog.LevelDebug, category, format, args...)
}

// Warn writes a warning, used for overruns and dropped events
func Warn(category, format string, args ...any) {
	emit(slog.LevelWarn, category, format, args...)
}

func emit(lvl slog.Level, category, format string, args ...any) {
	mu.Lock()
	l := logger
	mu.Unlock()

	if l == nil {
		return
	}
	l.Log(context.Background(), lvl, fmt.Sprintf(format, args...), "category", category)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Log(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
