// Package sim replays the approval log against a candidate policy.
package sim

import (
	"context"
	"fmt"
	"os"

	"github.com/ppiankov/approvedrevs/internal/audit"
	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/policy"
)

// Simulate replays every recorded action in the log at logPath through e
// with the policy at policyPath, and reports the actions that policy would
// refuse. Every recorded action was allowed when it happened.
//
// Actors and items are evaluated as they are now: current groups, current
// categories, current creator. Coverage comes from the candidate policy
// alone; existing approval records do not keep an item approvable.
func Simulate(ctx context.Context, e *engine.Engine, logPath, policyPath string) (*SimResult, error) {
	if _, err := os.Stat(policyPath); err != nil {
		return nil, fmt.Errorf("candidate policy: %w", err)
	}
	provider := policy.NewProvider(policyPath)
	if _, err := provider.Registry(); err != nil {
		return nil, err
	}
	candidate, err := e.WithPolicy(provider)
	if err != nil {
		return nil, err
	}

	history, err := audit.ReadHistory(logPath, audit.Filter{})
	if err != nil {
		return nil, err
	}

	result := &SimResult{PolicyPath: policyPath}
	for _, entry := range history.Entries {
		result.TotalActions++

		decision, reason, err := decide(ctx, candidate, entry)
		if err != nil {
			return nil, fmt.Errorf("replay %s of %s: %w", entry.Action, entry.Target.Title, err)
		}
		if decision == DecisionAllow {
			continue
		}
		result.add(DiffEntry{
			Timestamp:   entry.Timestamp,
			Action:      entry.Action,
			Actor:       entry.Actor,
			Title:       entry.Target.Title,
			OldDecision: DecisionAllow,
			NewDecision: decision,
			NewReason:   reason,
		})
	}
	return result, nil
}

func decide(ctx context.Context, e *engine.Engine, entry audit.Entry) (string, string, error) {
	r, err := e.RequestAs(ctx, entry.Actor)
	if err != nil {
		return "", "", err
	}
	item, err := r.Item(ctx, entry.Target.Title)
	if err != nil {
		return "", "", err
	}

	media := entry.Action == audit.ActionApproveFile || entry.Action == audit.ActionUnapproveFile
	var approvable bool
	if media {
		uploads, err := e.Wiki().FileVersions(ctx, item)
		if err != nil {
			return "", "", err
		}
		if len(uploads) == 0 {
			return DecisionMissing, "file has no uploads", nil
		}
		approvable, err = r.PolicyApprovable(ctx, item, true)
		if err != nil {
			return "", "", err
		}
	} else {
		if !item.Exists {
			return DecisionMissing, "page was deleted", nil
		}
		approvable, err = r.PolicyApprovable(ctx, item, false)
		if err != nil {
			return "", "", err
		}
	}

	// Unapprovals only need the right to approve.
	if !approvable && (entry.Action == audit.ActionApprove || entry.Action == audit.ActionApproveFile) {
		return DecisionNotApprovable, fmt.Sprintf("%s is not covered by the policy", item.FullName()), nil
	}
	can, err := r.CanApprove(ctx, item)
	if err != nil {
		return "", "", err
	}
	if !can {
		who := entry.Actor
		if who == "" {
			who = "anonymous"
		}
		return DecisionDeny, fmt.Sprintf("%s may not approve %s", who, item.FullName()), nil
	}
	return DecisionAllow, "", nil
}
