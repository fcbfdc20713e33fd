package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/approvedrevs/internal/approval"
	"github.com/ppiankov/approvedrevs/internal/engine"
	"github.com/ppiankov/approvedrevs/internal/listing"
	"github.com/ppiankov/approvedrevs/internal/model"
)

// --- Input/Output types ---

// StatusInput defines parameters for the approvedrevs_status tool.
type StatusInput struct {
	Title string `json:"title" jsonschema:"page or file title, e.g. Help:Editing or File:Logo.png"`
}

// StatusOutput describes the approval state of an item.
type StatusOutput struct {
	Title       string `json:"title"`
	Exists      bool   `json:"exists"`
	Approvable  bool   `json:"approvable"`
	CanApprove  bool   `json:"can_approve"`
	Approved    bool   `json:"approved"`
	ApprovedRev int64  `json:"approved_rev,omitempty"`
	LatestRev   int64  `json:"latest_rev,omitempty"`
	IsLatest    bool   `json:"is_latest"`

	File *FileStatus `json:"file,omitempty"`
}

// FileStatus is the upload side of a File: item.
type FileStatus struct {
	Approvable bool              `json:"approvable"`
	Approved   bool              `json:"approved"`
	Version    model.FileVersion `json:"version,omitempty"`
	Latest     model.FileVersion `json:"latest,omitempty"`
	IsLatest   bool              `json:"is_latest"`
}

// CanApproveInput defines parameters for the approvedrevs_can_approve tool.
type CanApproveInput struct {
	Title string `json:"title" jsonschema:"page or file title"`
}

// CanApproveOutput contains the verdict.
type CanApproveOutput struct {
	Title      string `json:"title"`
	Actor      string `json:"actor"`
	Approvable bool   `json:"approvable"`
	CanApprove bool   `json:"can_approve"`
}

// ApproveInput defines parameters for the approvedrevs_approve tool.
type ApproveInput struct {
	Title   string `json:"title" jsonschema:"page or file title"`
	Rev     int64  `json:"rev,omitempty" jsonschema:"revision id to approve, omit for the latest"`
	File    bool   `json:"file,omitempty" jsonschema:"approve a file upload instead of a page revision"`
	Version string `json:"version,omitempty" jsonschema:"upload timestamp or sha1 prefix, omit for the latest upload"`
}

// ApproveOutput confirms the approval or explains the refusal.
type ApproveOutput struct {
	Title   string `json:"title"`
	Status  string `json:"status"`
	Rev     int64  `json:"rev,omitempty"`
	SHA1    string `json:"sha1,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Warning string `json:"warning,omitempty"`
}

// UnapproveInput defines parameters for the approvedrevs_unapprove tool.
type UnapproveInput struct {
	Title string `json:"title" jsonschema:"page or file title"`
	File  bool   `json:"file,omitempty" jsonschema:"unapprove the file upload instead of the page"`
}

// ListInput defines parameters for the approvedrevs_list tool.
type ListInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"pages or files, default pages"`
	Mode string `json:"mode,omitempty" jsonschema:"approved, notlatest, unapproved or invalid; default approved"`
}

// ListOutput contains listing rows.
type ListOutput struct {
	Kind  string            `json:"kind"`
	Mode  string            `json:"mode"`
	Pages []listing.PageRow `json:"pages,omitempty"`
	Files []listing.FileRow `json:"files,omitempty"`
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	item, err := r.Item(ctx, input.Title)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	out := StatusOutput{Title: item.FullName(), Exists: item.Exists}
	if !item.Exists {
		return nil, out, nil
	}

	if out.Approvable, err = r.IsApprovable(ctx, item); err != nil {
		return nil, StatusOutput{}, err
	}
	if out.CanApprove, err = r.CanApprove(ctx, item); err != nil {
		return nil, StatusOutput{}, err
	}
	rev, ok, err := r.ApprovedRevision(ctx, item)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	latest, err := s.engine.Wiki().LatestRevision(ctx, item)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	out.Approved, out.ApprovedRev, out.LatestRev = ok, int64(rev), int64(latest)
	out.IsLatest = ok && rev == latest

	if item.Namespace == model.NSFile {
		if out.File, err = fileStatus(ctx, s.engine, r, item); err != nil {
			return nil, StatusOutput{}, err
		}
	}
	return nil, out, nil
}

func fileStatus(ctx context.Context, e *engine.Engine, r *engine.Request, item model.Item) (*FileStatus, error) {
	latest, err := e.Wiki().LatestFileVersion(ctx, item)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fs := &FileStatus{Latest: latest}
	if fs.Approvable, err = r.MediaIsApprovable(ctx, item); err != nil {
		return nil, err
	}
	v, ok, err := r.ApprovedFileInfo(ctx, item)
	if err != nil {
		return nil, err
	}
	fs.Approved, fs.Version, fs.IsLatest = ok, v, ok && v == latest
	return fs, nil
}

func (s *Server) handleCanApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input CanApproveInput) (*mcpsdk.CallToolResult, CanApproveOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(ctx)
	if err != nil {
		return nil, CanApproveOutput{}, err
	}
	item, err := r.Item(ctx, input.Title)
	if err != nil {
		return nil, CanApproveOutput{}, err
	}
	out := CanApproveOutput{Title: item.FullName(), Actor: r.Actor().Name}
	if out.Approvable, err = r.IsApprovable(ctx, item); err != nil {
		return nil, CanApproveOutput{}, err
	}
	if out.CanApprove, err = r.CanApprove(ctx, item); err != nil {
		return nil, CanApproveOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(ctx)
	if err != nil {
		return nil, ApproveOutput{}, err
	}
	item, err := r.Item(ctx, input.Title)
	if err != nil {
		return nil, ApproveOutput{}, err
	}
	out := ApproveOutput{Title: item.FullName()}

	if input.File {
		var v model.FileVersion
		if input.Version != "" {
			if v, err = s.engine.Wiki().FindFileVersion(ctx, item, input.Version); err != nil {
				return refused(out, err)
			}
		}
		err = r.ApproveFile(ctx, item, v)
		if err == nil || isSideEffect(err) {
			got, _, _ := r.ApprovedFileInfo(ctx, item)
			out.SHA1 = got.SHA1
		}
	} else {
		err = r.Approve(ctx, item, model.RevisionID(input.Rev))
		if err == nil || isSideEffect(err) {
			rev, _, _ := r.ApprovedRevision(ctx, item)
			out.Rev = int64(rev)
		}
	}
	return approvalResult(out, "approved", err)
}

func (s *Server) handleUnapprove(ctx context.Context, req *mcpsdk.CallToolRequest, input UnapproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.request(ctx)
	if err != nil {
		return nil, ApproveOutput{}, err
	}
	item, err := r.Item(ctx, input.Title)
	if err != nil {
		return nil, ApproveOutput{}, err
	}
	out := ApproveOutput{Title: item.FullName()}
	if input.File {
		err = r.UnapproveFile(ctx, item)
	} else {
		err = r.Unapprove(ctx, item)
	}
	return approvalResult(out, "unapproved", err)
}

func (s *Server) handleList(ctx context.Context, req *mcpsdk.CallToolRequest, input ListInput) (*mcpsdk.CallToolResult, ListOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if input.Kind == "" {
		input.Kind = "pages"
	}
	if input.Mode == "" {
		input.Mode = string(listing.ModeApproved)
	}
	mode, err := listing.ParseMode(input.Mode)
	if err != nil {
		return nil, ListOutput{}, err
	}

	r, err := s.request(ctx)
	if err != nil {
		return nil, ListOutput{}, err
	}
	out := ListOutput{Kind: input.Kind, Mode: string(mode)}
	switch input.Kind {
	case "pages":
		out.Pages, err = r.Pages(ctx, mode)
	case "files":
		out.Files, err = r.Files(ctx, mode)
	default:
		return nil, ListOutput{}, fmt.Errorf("unknown kind %q (want pages or files)", input.Kind)
	}
	if err != nil {
		return nil, ListOutput{}, err
	}
	return nil, out, nil
}

// approvalResult maps engine errors onto tool results. Refusals and missing
// items are tool errors with a reason; side-effect failures succeed with a
// warning because the record change is stored.
func approvalResult(out ApproveOutput, status string, err error) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	if err == nil {
		out.Status = status
		return nil, out, nil
	}
	var sideErr *approval.SideEffectError
	if errors.As(err, &sideErr) {
		out.Status = status
		out.Warning = sideErr.Err.Error()
		return nil, out, nil
	}
	return refused(out, err)
}

func refused(out ApproveOutput, err error) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	switch {
	case errors.Is(err, model.ErrPermissionDenied):
		out.Status = "denied"
	case errors.Is(err, model.ErrNotApprovable):
		out.Status = "not_approvable"
	case engine.IsNotFound(err):
		out.Status = "not_found"
	default:
		return nil, ApproveOutput{}, err
	}
	out.Reason = err.Error()
	return &mcpsdk.CallToolResult{IsError: true}, out, nil
}

func isSideEffect(err error) bool {
	var sideErr *approval.SideEffectError
	return errors.As(err, &sideErr)
}
