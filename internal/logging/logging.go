// Package logging builds the zerolog loggers used across approvedrevs.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const permission = 0o644

// ValidLevels lists the accepted level strings.
func ValidLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ParseLevel maps a level string to a zerolog level. Unknown strings map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns a timestamped logger writing JSON lines to w.
func New(w io.Writer, level string) zerolog.Logger {
	if w == nil {
		w = io.Discard
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// File is a logger backed by an append-only file.
type File struct {
	Logger zerolog.Logger
	file   *os.File
}

// Open appends to the log file at path, creating it and its directory.
func Open(path, level string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &File{Logger: New(zerolog.SyncWriter(f), level), file: f}, nil
}

// Close closes the underlying file.
func (f *File) Close() error {
	if f == nil || f.file == nil {
		return nil
	}
	return f.file.Close()
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger { return zerolog.Nop() }
