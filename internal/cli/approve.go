package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/model"
)

var (
	approveRev int64
	statusJSON bool
)

func init() {
	rootCmd.AddCommand(approveCmd, unapproveCmd, statusCmd, canApproveCmd)
	approveCmd.Flags().Int64Var(&approveRev, "rev", 0, "Revision id to approve (default latest)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

var approveCmd = &cobra.Command{
	Use:   "approve <title>",
	Short: "Approve a page revision",
	Long:  "Approves the latest revision of a page, or the one given with --rev.\nThe page must be approvable and the --as user allowed to approve it.",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprove,
}

var unapproveCmd = &cobra.Command{
	Use:   "unapprove <title>",
	Short: "Remove the approval of a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnapprove,
}

var statusCmd = &cobra.Command{
	Use:   "status <title>",
	Short: "Show the approval state of a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var canApproveCmd = &cobra.Command{
	Use:   "can-approve <title>",
	Short: "Check whether the --as user may approve a page",
	Args:  cobra.ExactArgs(1),
	RunE:  runCanApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := r.Item(ctx, args[0])
		if err != nil {
			return err
		}
		if err := committed(cmd, r.Approve(ctx, item, model.RevisionID(approveRev))); err != nil {
			return err
		}
		rev, _, err := r.ApprovedRevision(ctx, item)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Approved %s at revision %d\n", item.FullName(), rev)
		return nil
	})
}

func runUnapprove(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := r.Item(ctx, args[0])
		if err != nil {
			return err
		}
		if err := committed(cmd, r.Unapprove(ctx, item)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unapproved %s\n", item.FullName())
		return nil
	})
}

type pageStatus struct {
	Title       string `json:"title"`
	Exists      bool   `json:"exists"`
	Approvable  bool   `json:"approvable"`
	Approved    bool   `json:"approved"`
	ApprovedRev int64  `json:"approved_rev,omitempty"`
	LatestRev   int64  `json:"latest_rev,omitempty"`
	CanApprove  bool   `json:"can_approve"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := r.Item(ctx, args[0])
		if err != nil {
			return err
		}
		st := pageStatus{Title: item.FullName(), Exists: item.Exists}
		if item.Exists {
			if st.Approvable, err = r.IsApprovable(ctx, item); err != nil {
				return err
			}
			if st.CanApprove, err = r.CanApprove(ctx, item); err != nil {
				return err
			}
			rev, ok, err := r.ApprovedRevision(ctx, item)
			if err != nil {
				return err
			}
			latest, err := s.engine.Wiki().LatestRevision(ctx, item)
			if err != nil {
				return err
			}
			st.Approved, st.ApprovedRev, st.LatestRev = ok, int64(rev), int64(latest)
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			data, _ := json.MarshalIndent(st, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "Page:        %s\n", st.Title)
		if !st.Exists {
			fmt.Fprintln(out, "Exists:      no")
			return nil
		}
		fmt.Fprintf(out, "Approvable:  %s\n", yesNo(st.Approvable))
		switch {
		case !st.Approved:
			fmt.Fprintln(out, "Approved:    no")
		case st.ApprovedRev == st.LatestRev:
			fmt.Fprintf(out, "Approved:    revision %d (latest)\n", st.ApprovedRev)
		default:
			fmt.Fprintf(out, "Approved:    revision %d (latest is %d)\n", st.ApprovedRev, st.LatestRev)
		}
		fmt.Fprintf(out, "Can approve: %s (as %s)\n", yesNo(st.CanApprove), actorName(r))
		return nil
	})
}

func runCanApprove(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := r.Item(ctx, args[0])
		if err != nil {
			return err
		}
		ok, err := r.CanApprove(ctx, item)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s may approve %s\n", actorName(r), item.FullName())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "%s may not approve %s\n", actorName(r), item.FullName())
		}
		return nil
	})
}
