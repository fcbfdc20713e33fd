package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/listing"
)

var (
	listMode string
	listJSON bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.PersistentFlags().StringVarP(&listMode, "mode", "m", string(listing.ModeApproved), "approved, notlatest, unapproved or invalid")
	listCmd.PersistentFlags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.AddCommand(listPagesCmd, listFilesCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages or files by approval state",
}

var listPagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List pages by approval state",
	Args:  cobra.NoArgs,
	RunE:  runListPages,
}

var listFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "List files by approval state",
	Args:  cobra.NoArgs,
	RunE:  runListFiles,
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runListPages(cmd *cobra.Command, args []string) error {
	mode, err := listing.ParseMode(listMode)
	if err != nil {
		return err
	}
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		rows, err := r.Pages(ctx, mode)
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No %s pages.\n", mode)
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PAGE\tAPPROVED\tLATEST\tAPPROVE LATEST")
		for _, row := range rows {
			approved := "-"
			if row.ApprovedRev != 0 {
				approved = fmt.Sprint(row.ApprovedRev)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", row.Item.FullName(), approved, row.LatestRev, yesNo(row.ApproveLatest))
		}
		return tw.Flush()
	})
}

func runListFiles(cmd *cobra.Command, args []string) error {
	mode, err := listing.ParseMode(listMode)
	if err != nil {
		return err
	}
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		rows, err := r.Files(ctx, mode)
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(cmd, rows)
		}
		if len(rows) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No %s files.\n", mode)
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tAPPROVED\tLATEST\tAPPROVE LATEST")
		for _, row := range rows {
			approved := "-"
			if row.Approved.SHA1 != "" {
				approved = row.Approved.Fingerprint() + " (" + relativeTime(row.Approved.Timestamp) + ")"
			}
			latest := "-"
			if row.Latest.SHA1 != "" {
				latest = row.Latest.Fingerprint() + " (" + relativeTime(row.Latest.Timestamp) + ")"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Item.FullName(), approved, latest, yesNo(row.ApproveLatest))
		}
		return tw.Flush()
	})
}
