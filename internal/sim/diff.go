package sim

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Decisions a candidate policy can reach for a recorded action.
const (
	DecisionAllow         = "allow"
	DecisionDeny          = "deny"
	DecisionNotApprovable = "not_approvable"
	DecisionMissing       = "missing"
)

// DiffEntry represents one recorded action the candidate policy would refuse.
type DiffEntry struct {
	Timestamp   string `json:"ts"`
	Action      string `json:"action"`
	Actor       string `json:"actor"`
	Title       string `json:"title"`
	OldDecision string `json:"old_decision"`
	NewDecision string `json:"new_decision"`
	NewReason   string `json:"new_reason,omitempty"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	PolicyPath     string      `json:"policy_path"`
	TotalActions   int         `json:"total_actions"`
	ChangedActions int         `json:"changed_actions"`
	NewlyBlocked   int         `json:"newly_blocked"`
	Missing        int         `json:"missing"`
	Changes        []DiffEntry `json:"changes"`
	// ByActor counts changed actions per actor; "" is anonymous.
	ByActor map[string]int `json:"by_actor,omitempty"`
}

func (r *SimResult) add(d DiffEntry) {
	r.Changes = append(r.Changes, d)
	r.ChangedActions++
	if d.NewDecision == DecisionMissing {
		r.Missing++
	} else {
		r.NewlyBlocked++
	}
	if r.ByActor == nil {
		r.ByActor = map[string]int{}
	}
	r.ByActor[d.Actor]++
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded actions...\n", r.PolicyPath, r.TotalActions)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		fmt.Fprintf(&b, "  CHANGED  %s  %-13s %-16s %-40s %s → %s\n",
			d.Timestamp, d.Action, actorName(d.Actor), clip(d.Title, 40), d.OldDecision, d.NewDecision)
		if d.NewReason != "" {
			fmt.Fprintf(&b, "           %s\n", d.NewReason)
		}
	}

	if len(r.ByActor) > 1 {
		actors := make([]string, 0, len(r.ByActor))
		for a := range r.ByActor {
			actors = append(actors, a)
		}
		sort.Slice(actors, func(i, j int) bool {
			if r.ByActor[actors[i]] != r.ByActor[actors[j]] {
				return r.ByActor[actors[i]] > r.ByActor[actors[j]]
			}
			return actors[i] < actors[j]
		})
		b.WriteString("\n  By actor:\n")
		for _, a := range actors {
			fmt.Fprintf(&b, "    %-16s %d\n", actorName(a), r.ByActor[a])
		}
	}

	fmt.Fprintf(&b, "\n%d of %d actions changed.", r.ChangedActions, r.TotalActions)
	if r.NewlyBlocked > 0 || r.Missing > 0 {
		fmt.Fprintf(&b, " %d newly blocked, %d on deleted items.", r.NewlyBlocked, r.Missing)
	}
	b.WriteString("\n")

	return b.String()
}

func actorName(a string) string {
	if a == "" {
		return "(anonymous)"
	}
	return a
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
