package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/wiki"
)

var (
	fileVersion    string
	fileStatusJSON bool
)

func init() {
	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileUploadCmd, fileDeleteCmd, fileApproveCmd, fileUnapproveCmd, fileStatusCmd)
	fileApproveCmd.Flags().StringVar(&fileVersion, "version", "", "Upload timestamp or sha1 prefix (default latest)")
	fileStatusCmd.Flags().BoolVar(&fileStatusJSON, "json", false, "Output as JSON")
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Upload, approve and inspect files",
}

var fileUploadCmd = &cobra.Command{
	Use:   "upload <name> <path>",
	Short: "Upload a new version of a file as the --as user",
	Args:  cobra.ExactArgs(2),
	RunE:  runFileUpload,
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete every upload of a file and its approval",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileDelete,
}

var fileApproveCmd = &cobra.Command{
	Use:   "approve <name>",
	Short: "Approve an upload of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileApprove,
}

var fileUnapproveCmd = &cobra.Command{
	Use:   "unapprove <name>",
	Short: "Remove the approval of a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileUnapprove,
}

var fileStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show the uploads of a file and which one is approved",
	Args:  cobra.ExactArgs(1),
	RunE:  runFileStatus,
}

// fileItem resolves a file name; a missing "File:" prefix is implied.
func fileItem(ctx context.Context, r *engine.Request, name string) (model.Item, error) {
	if ns, _ := model.SplitTitle(name); ns != model.NSFile {
		name = "File:" + model.NormalizeTitle(name)
	}
	return r.Item(ctx, name)
}

func runFileUpload(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, v, err := r.UploadFile(ctx, args[0], content)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s, sha1 %s, %s)\n",
			item.FullName(), v.Timestamp, v.Fingerprint(), humanize.Bytes(uint64(len(content))))
		return nil
	})
}

func runFileDelete(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := fileItem(ctx, r, args[0])
		if err != nil {
			return err
		}
		if err := r.DeleteFile(ctx, item); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", item.FullName())
		return nil
	})
}

func runFileApprove(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := fileItem(ctx, r, args[0])
		if err != nil {
			return err
		}
		var v model.FileVersion
		if fileVersion != "" {
			if v, err = s.engine.Wiki().FindFileVersion(ctx, item, fileVersion); err != nil {
				return err
			}
		}
		if err := committed(cmd, r.ApproveFile(ctx, item, v)); err != nil {
			return err
		}
		got, _, err := r.ApprovedFileInfo(ctx, item)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Approved %s upload %s (sha1 %s)\n", item.FullName(), got.Timestamp, got.Fingerprint())
		return nil
	})
}

func runFileUnapprove(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := fileItem(ctx, r, args[0])
		if err != nil {
			return err
		}
		if err := committed(cmd, r.UnapproveFile(ctx, item)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unapproved %s\n", item.FullName())
		return nil
	})
}

type fileStatus struct {
	Title      string             `json:"title"`
	Approvable bool               `json:"approvable"`
	Approved   *model.FileVersion `json:"approved,omitempty"`
	Uploads    []wiki.Upload      `json:"uploads"`
}

func runFileStatus(cmd *cobra.Command, args []string) error {
	return withRequest(cmd, func(ctx context.Context, s *session, r *engine.Request) error {
		item, err := fileItem(ctx, r, args[0])
		if err != nil {
			return err
		}
		uploads, err := s.engine.Wiki().FileVersions(ctx, item)
		if err != nil {
			return err
		}
		if len(uploads) == 0 {
			return fmt.Errorf("%s: %w", item.FullName(), model.ErrNotFound)
		}
		st := fileStatus{Title: item.FullName(), Uploads: uploads}
		if st.Approvable, err = r.MediaIsApprovable(ctx, item); err != nil {
			return err
		}
		v, ok, err := r.ApprovedFileInfo(ctx, item)
		if err != nil {
			return err
		}
		if ok {
			st.Approved = &v
		}

		out := cmd.OutOrStdout()
		if fileStatusJSON {
			data, _ := json.MarshalIndent(st, "", "  ")
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "File:       %s\n", st.Title)
		fmt.Fprintf(out, "Approvable: %s\n", yesNo(st.Approvable))
		for _, u := range uploads {
			marker := " "
			if ok && u.FileVersion == v {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s  %s  %-8s  %s\n", marker, u.Fingerprint(), relativeTime(u.Timestamp),
				humanize.Bytes(uint64(u.Size)), u.Uploader)
		}
		return nil
	})
}

// relativeTime renders a wiki timestamp as "3 hours ago".
func relativeTime(ts string) string {
	t, err := time.Parse(wiki.TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}
