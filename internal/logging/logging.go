// Copyright (C) 2026 The Bantay Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"io"
	"os"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

// Level controls the minimum severity that gets emitted.
type Level int

const (
	LevelDebug Level = iota - 1
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger construction options.
type Config struct {
	Level  Level
	Output io.Writer
	// JSON switches to machine-readable output (log shippers).
	JSON bool
}

// DefaultConfig returns the standard daemon logging configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Logger is a structured, leveled logger. Keyvals follow the
// "key", value, "key", value convention.
type Logger struct {
	*charmlog.Logger
}

// ParseLevel maps a config string to a Level. Unrecognized values fall
// back to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// New creates a Logger from the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	formatter := charmlog.TextFormatter
	if cfg.JSON {
		formatter = charmlog.JSONFormatter
	}
	l := charmlog.NewWithOptions(out, charmlog.Options{
		ReportTimestamp: true,
		Level:           charmlog.Level(cfg.Level * 4), // charm levels are spaced by 4
		Formatter:       formatter,
	})
	return &Logger{Logger: l}
}

// With returns a child logger carrying the given keyvals on every entry.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{Logger: l.Logger.With(keyvals...)}
}

var (
	rootOnce sync.Once
	root     *Logger
)

// Root returns the process-wide logger, creating it with defaults on first use.
func Root() *Logger {
	rootOnce.Do(func() {
		if root == nil {
			root = New(DefaultConfig())
		}
	})
	return root
}

// SetRoot installs the process-wide logger. Call once, early in main.
func SetRoot(l *Logger) {
	root = l
}

// WithComponent returns a child of the root logger tagged with a component name.
func WithComponent(name string) *Logger {
	return Root().With("component", name)
}
