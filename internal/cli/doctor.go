package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/audit"
	"github.com/ppiankov/approvedrevs/internal/config"
	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/logging"
	"github.com/ppiankov/approvedrevs/internal/policy"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check settings, policy, database and approval log",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	checks := doctorChecks()

	out := cmd.OutOrStdout()
	hasFailures := false
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-16s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(out, line)
	}

	fmt.Fprintln(out)
	if hasFailures {
		fmt.Fprintln(out, "Some checks failed. Run the suggested commands to fix.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Fprintln(out, "All checks passed.")
	return nil
}

func doctorChecks() []checkResult {
	cfg, err := loadSettings()
	if err != nil {
		return []checkResult{{label: "settings", detail: err.Error(), fix: "approvedrevs init"}}
	}
	source := cfgFile
	if source == "" {
		source = config.File()
		if _, err := os.Stat(source); err != nil {
			source = "built-in defaults"
		}
	}
	checks := []checkResult{{label: "settings", ok: true, detail: source}}

	pol, err := policy.NewProvider(cfg.Policy).Registry()
	switch {
	case err != nil:
		checks = append(checks, checkResult{label: "policy", detail: err.Error(), fix: "approvedrevs init-policy --force"})
	case len(pol.Unresolved()) > 0:
		checks = append(checks, checkResult{
			label:  "policy",
			detail: "unknown namespaces: " + strings.Join(pol.Unresolved(), ", "),
			fix:    "edit " + cfg.Policy,
		})
	default:
		checks = append(checks, checkResult{
			label: "policy",
			ok:    true,
			detail: fmt.Sprintf("%d namespaces, %d categories, %d pages (%s)",
				len(pol.NamespaceIDs()), len(pol.CategoryNames()), len(pol.PageNames()), shortHash(pol.Hash())),
		})
	}

	if _, err := os.Stat(cfg.Database); err != nil {
		checks = append(checks, checkResult{label: "database", detail: "missing: " + cfg.Database, fix: "approvedrevs init"})
	} else if e, err := engine.Open(context.Background(), cfg, logging.Nop()); err != nil {
		checks = append(checks, checkResult{label: "database", detail: err.Error()})
	} else {
		users, err := e.Wiki().Users(context.Background())
		_ = e.Close()
		if err != nil {
			checks = append(checks, checkResult{label: "database", detail: err.Error()})
		} else {
			checks = append(checks, checkResult{label: "database", ok: true, detail: fmt.Sprintf("%s (%d users)", cfg.Database, len(users))})
		}
	}

	if res := audit.Verify(cfg.AuditLog); res.Valid {
		checks = append(checks, checkResult{label: "approval log", ok: true, detail: fmt.Sprintf("%d entries, chain intact", res.Lines)})
	} else {
		checks = append(checks, checkResult{label: "approval log", detail: res.Error, fix: "approvedrevs audit verify"})
	}
	return checks
}

func shortHash(h string) string {
	h = strings.TrimPrefix(h, "sha256:")
	if len(h) > 12 {
		return h[:12]
	}
	if h == "" {
		return "no hash"
	}
	return h
}
