package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VerifyResult holds the outcome of a hash chain verification.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// chainError marks the line a verification failed on.
type chainError struct {
	line int
	msg  string
}

func (e *chainError) Error() string { return fmt.Sprintf("line %d: %s", e.line, e.msg) }

// walk calls fn with every line of r, numbered from 1. The slice is a
// copy and may be retained.
func walk(r io.Reader, fn func(n int, line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := append([]byte(nil), scanner.Bytes()...)
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Verify walks the log at path and checks that every line is a known
// approval action whose prev_hash matches the hash of the line before it
// (the genesis hash for the first line). It reports the first broken link.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer func() { _ = f.Close() }()

	want := GenesisHash
	lines := 0
	err = walk(f, func(n int, line []byte) error {
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return &chainError{n, fmt.Sprintf("parse error: %v", err)}
		}
		if !knownAction(entry.Action) {
			return &chainError{n, fmt.Sprintf("unknown action %q", entry.Action)}
		}
		if entry.PrevHash != want {
			if n == 1 {
				return &chainError{n, fmt.Sprintf("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)}
			}
			return &chainError{n, fmt.Sprintf("hash mismatch: expected %s, got %s", want, entry.PrevHash)}
		}
		want = HashLine(line)
		lines = n
		return nil
	})

	if ce, ok := err.(*chainError); ok {
		return VerifyResult{Lines: lines, Error: ce.msg, ErrorLine: ce.line}
	}
	if err != nil {
		return VerifyResult{Lines: lines, Error: fmt.Sprintf("scan: %v", err)}
	}
	return VerifyResult{Valid: true, Lines: lines}
}

func knownAction(action string) bool {
	switch action {
	case ActionApprove, ActionUnapprove, ActionApproveFile, ActionUnapproveFile:
		return true
	}
	return false
}
