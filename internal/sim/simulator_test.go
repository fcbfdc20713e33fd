package sim

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ppiankov/approvedrevs/internal/config"
	"github.com/ppiankov/approvedrevs/internal/engine"
)

const currentPolicy = `
all_pages:
  group: sysop
namespace_permissions:
  Main:
    group: editors
`

func writePolicy(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

// setup records two approvals: one by a sysop and one by an editor.
func setup(t *testing.T) (*engine.Engine, *config.Config, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "approvedrevs.db")
	cfg.AuditLog = filepath.Join(dir, "audit.jsonl")
	cfg.Policy = writePolicy(t, dir, "policy.yaml", currentPolicy)

	e, err := engine.Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	for name, group := range map[string]string{"Root": "sysop", "Ed": "editors"} {
		if err := e.Wiki().AddUser(ctx, name, group); err != nil {
			t.Fatal(err)
		}
	}
	for user, title := range map[string]string{"Root": "Policies", "Ed": "Guide"} {
		r, err := e.RequestAs(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		res, err := r.SaveRevision(ctx, title, "text by "+user)
		if err != nil {
			t.Fatal(err)
		}
		if !res.AutoApproved {
			t.Fatalf("%s by %s was not approved automatically", title, user)
		}
	}
	return e, cfg, dir
}

func TestIdenticalPolicyZeroChanges(t *testing.T) {
	e, cfg, _ := setup(t)

	result, err := Simulate(context.Background(), e, cfg.AuditLog, cfg.Policy)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if result.TotalActions != 2 {
		t.Errorf("expected 2 actions, got %d", result.TotalActions)
	}
	if result.ChangedActions != 0 {
		t.Errorf("expected no changes, got %+v", result.Changes)
	}
	if !strings.Contains(FormatText(result), "No changes detected.") {
		t.Error("text output should report no changes")
	}
}

func TestStricterPolicyNewlyBlocked(t *testing.T) {
	e, cfg, dir := setup(t)
	stricter := writePolicy(t, dir, "stricter.yaml", "all_pages: {group: sysop}\nnamespace_permissions: {Main: {}}\n")

	result, err := Simulate(context.Background(), e, cfg.AuditLog, stricter)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if result.ChangedActions != 1 || result.NewlyBlocked != 1 {
		t.Fatalf("expected 1 newly blocked action, got %+v", result)
	}
	d := result.Changes[0]
	if d.Actor != "Ed" || d.Title != "Guide" || d.Action != "approve" {
		t.Errorf("unexpected change %+v", d)
	}
	if d.OldDecision != DecisionAllow || d.NewDecision != DecisionDeny {
		t.Errorf("expected allow → deny, got %s → %s", d.OldDecision, d.NewDecision)
	}
	if !strings.Contains(d.NewReason, "Ed may not approve Guide") {
		t.Errorf("reason = %q", d.NewReason)
	}
	if result.ByActor["Ed"] != 1 {
		t.Errorf("by actor = %v", result.ByActor)
	}
}

func TestPolicyWithoutNamespaceNotApprovable(t *testing.T) {
	e, cfg, dir := setup(t)
	empty := writePolicy(t, dir, "empty.yaml", "all_pages: {group: sysop}\n")

	result, err := Simulate(context.Background(), e, cfg.AuditLog, empty)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if result.ChangedActions != 2 {
		t.Fatalf("expected 2 changes, got %+v", result.Changes)
	}
	for _, d := range result.Changes {
		if d.NewDecision != DecisionNotApprovable {
			t.Errorf("expected not_approvable, got %+v", d)
		}
	}
}

func TestSimulationDoesNotTouchLog(t *testing.T) {
	e, cfg, dir := setup(t)
	before, err := os.ReadFile(cfg.AuditLog)
	if err != nil {
		t.Fatal(err)
	}
	empty := writePolicy(t, dir, "empty.yaml", "all_pages: {group: sysop}\n")
	if _, err := Simulate(context.Background(), e, cfg.AuditLog, empty); err != nil {
		t.Fatal(err)
	}
	after, err := os.ReadFile(cfg.AuditLog)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("simulation must not write to the approval log")
	}
}

func TestMissingPolicyReturnsError(t *testing.T) {
	e, cfg, dir := setup(t)
	if _, err := Simulate(context.Background(), e, cfg.AuditLog, filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("expected error for missing policy file")
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON(&SimResult{PolicyPath: "p.yaml", TotalActions: 3})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"total_actions": 3`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}

func TestFormatTextGroupsByActor(t *testing.T) {
	r := &SimResult{PolicyPath: "p.yaml", TotalActions: 4}
	r.add(DiffEntry{Action: "approve", Actor: "Ed", Title: "A", OldDecision: DecisionAllow, NewDecision: DecisionDeny})
	r.add(DiffEntry{Action: "approve", Actor: "Ed", Title: "B", OldDecision: DecisionAllow, NewDecision: DecisionDeny})
	r.add(DiffEntry{Action: "unapprove", Title: "C", OldDecision: DecisionAllow, NewDecision: DecisionMissing})

	out := FormatText(r)
	for _, want := range []string{"By actor:", "Ed", "(anonymous)", "3 of 4 actions changed.", "2 newly blocked, 1 on deleted items."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	section := out[strings.Index(out, "By actor:"):]
	if strings.Index(section, "Ed") > strings.Index(section, "(anonymous)") {
		t.Error("actors should be listed by count")
	}
}
