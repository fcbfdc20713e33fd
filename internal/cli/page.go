package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/engine"
)

var (
	pageText     string
	pageTextFile string
	pageViewJSON bool
)

func init() {
	rootCmd.AddCommand(pageCmd)
	pageCmd.AddCommand(pageSaveCmd, pageDeleteCmd, pageViewCmd)
	pageSaveCmd.Flags().StringVar(&pageText, "text", "", "Page text")
	pageSaveCmd.Flags().StringVarP(&pageTextFile, "file", "f", "", "Read page text from a file (- for stdin)")
	pageViewCmd.Flags().BoolVar(&pageViewJSON, "json", false, "Output as JSON")
}

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Edit, delete and view pages",
}

var pageSaveCmd = &cobra.Command{
	Use:   "save <title>",
	Short: "Save a new revision of a page as the --as user",
	Long:  "Stores a new revision. With automatic approvals on, a revision saved by a user who may approve the page is approved at once.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageSave,
}

var pageDeleteCmd = &cobra.Command{
	Use:   "delete <title>",
	Short: "Delete a page and its approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageDelete,
}

var pageViewCmd = &cobra.Command{
	Use:   "view <title>",
	Short: "Show the text readers see",
	Args:  cobra.ExactArgs(1),
	RunE:  runPageView,
}

func readPageText(cmd *cobra.Command) (string, error) {
	switch pageTextFile {
	case "":
		return pageText, nil
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	default:
		data, err := os.ReadFile(pageTextFile)
		if err != nil {
			return "", fmt.Errorf("read page text: %w", err)
		}
		return string(data), nil
	}
}

func runPageSave(cmd *cobra.Command, args []string) error {
	text, err := readPageText(cmd)
	if err != nil {
		return err
	}
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		res, err := r.SaveRevision(ctx, args[0], text)
		if err := committed(cmd, err); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s revision %d\n", res.Item.FullName(), res.Revision.ID)
		if res.AutoApproved {
			fmt.Fprintln(cmd.OutOrStdout(), "Revision approved automatically")
		}
		return nil
	})
}

func runPageDelete(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := r.Item(ctx, args[0])
		if err != nil {
			return err
		}
		if err := r.DeletePage(ctx, item); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", item.FullName())
		return nil
	})
}

func runPageView(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := r.Item(ctx, args[0])
		if err != nil {
			return err
		}
		v, err := r.View(ctx, item)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if pageViewJSON {
			data, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		if v.NotApprovedNotice {
			fmt.Fprintln(out, "NOTE: this page has no approved revision.")
		}
		switch {
		case v.RevisionID == 0:
			fmt.Fprintln(out, "(blank: no approved revision)")
		case v.Approved && !v.IsLatest:
			fmt.Fprintf(out, "(approved revision %d; newer revisions exist)\n", v.RevisionID)
		}
		fmt.Fprintln(out, v.Text)
		return nil
	})
}
