package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	for _, zone := range []string{ZoneAllPages, ZoneNamespaces, ZoneCategories, ZonePages} {
		changes := filterZone(r.RuleChanges, zone)
		if len(changes) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:\n", zone)
		for _, rc := range changes {
			key := rc.Key
			if key == "" {
				key = "*"
			}
			switch rc.Type {
			case "added":
				fmt.Fprintf(&b, "    + %-24s %s\n", key, rc.New)
			case "removed":
				fmt.Fprintf(&b, "    - %-24s %s\n", key, rc.Old)
			case "changed":
				fmt.Fprintf(&b, "    ~ %-24s %s → %s", key, rc.Old, rc.New)
				if rc.Comment != "" {
					fmt.Fprintf(&b, "  (%s)", rc.Comment)
				}
				b.WriteString("\n")
			}
		}
	}

	fmt.Fprintf(&b, "\n%s\n", r.Summary())
	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterZone(changes []RuleChange, zone string) []RuleChange {
	var out []RuleChange
	for _, c := range changes {
		if c.Zone == zone {
			out = append(out, c)
		}
	}
	return out
}
