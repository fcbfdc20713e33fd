package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// GenesisHash is the prev_hash of the first entry of every approval log.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ErrInvalidEntry is returned by Record for entries Verify would reject.
var ErrInvalidEntry = errors.New("invalid audit entry")

// Log is the append-only approval log. Each JSONL line carries the hash
// of the line before it, so editing or removing a line breaks the chain
// at the following one.
type Log struct {
	mu      sync.Mutex
	file    *os.File
	tail    string
	entries int
}

// Open opens the log at path for appending, creating it and its directory
// as needed. An existing log is walked to its last line so new entries
// continue the chain; a log whose chain is already broken is still opened.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}

	tail, n := GenesisHash, 0
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("audit: read existing log: %w", err)
		}
		err = walk(f, func(_ int, line []byte) error {
			tail = HashLine(line)
			n++
			return nil
		})
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("audit: scan existing log: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &Log{file: file, tail: tail, entries: n}, nil
}

// Record appends entry, stamping its timestamp (when empty) and prev_hash.
// The line is synced before Record returns.
func (l *Log) Record(entry Entry) error {
	if !knownAction(entry.Action) {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidEntry, entry.Action)
	}
	if entry.Target.Title == "" {
		return fmt.Errorf("%w: %s without a target title", ErrInvalidEntry, entry.Action)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(TimestampFormat)
	}
	entry.PrevHash = l.tail

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	l.tail = HashLine(line)
	l.entries++
	return nil
}

// Len returns the number of entries in the log, including those written
// before it was opened.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// HashLine returns "sha256:<hex>" of one log line without its newline.
func HashLine(line []byte) string {
	h := sha256.Sum256(line)
	return "sha256:" + hex.EncodeToString(h[:])
}
