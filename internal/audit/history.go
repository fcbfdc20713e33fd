package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter selects entries from the log. Empty fields match everything.
type Filter struct {
	Title string
	Actor string
	From  time.Time
	To    time.Time
}

// Summary counts the actions in a history.
type Summary struct {
	Total           int    `json:"total"`
	Approvals       int    `json:"approvals"`
	Unapprovals     int    `json:"unapprovals"`
	FileApprovals   int    `json:"file_approvals"`
	FileUnapprovals int    `json:"file_unapprovals"`
	FirstTimestamp  string `json:"first_timestamp"`
	LastTimestamp   string `json:"last_timestamp"`
}

// History holds filtered entries in log order.
type History struct {
	Filter  Filter  `json:"-"`
	Entries []Entry `json:"entries"`
	Summary Summary `json:"summary"`
}

// ReadHistory reads the log and returns entries matching the filter.
// Malformed lines are skipped; use Verify to detect them.
func ReadHistory(path string, filter Filter) (*History, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := &History{Filter: filter}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.matches(entry) {
			continue
		}
		h.Entries = append(h.Entries, entry)
		h.Summary.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return h, nil
}

// Tail returns the last n entries of the log.
func Tail(path string, n int) ([]Entry, error) {
	h, err := ReadHistory(path, Filter{})
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(h.Entries) {
		return h.Entries, nil
	}
	return h.Entries[len(h.Entries)-n:], nil
}

func (f Filter) matches(e Entry) bool {
	if f.Title != "" && e.Target.Title != f.Title {
		return false
	}
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (s *Summary) add(e Entry) {
	s.Total++
	switch e.Action {
	case ActionApprove:
		s.Approvals++
	case ActionUnapprove:
		s.Unapprovals++
	case ActionApproveFile:
		s.FileApprovals++
	case ActionUnapproveFile:
		s.FileUnapprovals++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
