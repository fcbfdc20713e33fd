package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/audit"
	"github.com/ppiankov/approvedrevs/internal/model"
)

var (
	tailLines    int
	historyTitle string
	historyActor string
	historySince time.Duration
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd, auditTailCmd, auditLogCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditLogCmd.Flags().StringVar(&historyTitle, "title", "", "Only entries about this page or file")
	auditLogCmd.Flags().StringVar(&historyActor, "actor", "", "Only entries by this user")
	auditLogCmd.Flags().DurationVar(&historySince, "since", 0, "Only entries newer than this (e.g. 24h)")
	auditLogCmd.Flags().BoolVar(&historyJSON, "json", false, "Output as JSON")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Approval log operations",
	Long:  "Commands for verifying and inspecting the hash-chained approval log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the approval log",
	Long:  "Walks the JSONL log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent approval log entries",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditTail,
}

var auditLogCmd = &cobra.Command{
	Use:   "log [path]",
	Short: "Show the approval history as a timeline",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditLog,
}

// auditPath returns the path argument, or the configured log.
func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := loadSettings()
	if err != nil {
		return "", err
	}
	return cfg.AuditLog, nil
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if !result.Valid {
		fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
		return fmt.Errorf("approval log %s failed verification", path)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	entries, err := audit.Tail(path, tailLines)
	if err != nil {
		return err
	}
	for _, e := range entries {
		data, _ := json.MarshalIndent(e, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	}
	return nil
}

func runAuditLog(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	filter := audit.Filter{Actor: historyActor}
	if historyTitle != "" {
		ns, name := model.SplitTitle(historyTitle)
		filter.Title = model.Item{Namespace: ns, Name: name}.FullName()
	}
	if historySince > 0 {
		filter.From = time.Now().Add(-historySince)
	}
	h, err := audit.ReadHistory(path, filter)
	if err != nil {
		return err
	}
	if historyJSON {
		out, err := audit.FormatJSON(h)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), audit.FormatTimeline(h))
	return nil
}
