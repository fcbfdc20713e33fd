package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a History as a human-readable text timeline.
func FormatTimeline(h *History) string {
	label := h.Filter.Title
	if label == "" {
		label = "all items"
	}
	if len(h.Entries) == 0 {
		return fmt.Sprintf("History: %s | No entries found.\n", label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "History: %s | %s to %s UTC\n", label,
		formatDateTime(h.Summary.FirstTimestamp), formatDateTime(h.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range h.Entries {
		fmt.Fprintf(&b, "%-19s %-13s %-16s %-30s %s\n",
			formatDateTime(e.Timestamp),
			e.Action,
			truncate(actorLabel(e.Actor), 16),
			truncate(e.Target.Title, 30),
			paramsLabel(e.Params))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(h.Summary))
	return b.String()
}

// FormatJSON renders a History as indented JSON.
func FormatJSON(h *History) (string, error) {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal history: %w", err)
	}
	return string(data), nil
}

func actorLabel(name string) string {
	if name == "" {
		return "(anonymous)"
	}
	return name
}

func paramsLabel(p Params) string {
	switch {
	case p.RevisionID != 0:
		return fmt.Sprintf("rev %d", p.RevisionID)
	case p.Fingerprint != "":
		return fmt.Sprintf("%s @ %s", p.Fingerprint, p.FileTimestamp)
	}
	return ""
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatSummary(s Summary) string {
	parts := []string{}
	if s.Approvals > 0 {
		parts = append(parts, fmt.Sprintf("%d approve", s.Approvals))
	}
	if s.Unapprovals > 0 {
		parts = append(parts, fmt.Sprintf("%d unapprove", s.Unapprovals))
	}
	if s.FileApprovals > 0 {
		parts = append(parts, fmt.Sprintf("%d file approve", s.FileApprovals))
	}
	if s.FileUnapprovals > 0 {
		parts = append(parts, fmt.Sprintf("%d file unapprove", s.FileUnapprovals))
	}
	return fmt.Sprintf("Summary: %d entries (%s)\n", s.Total, strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
