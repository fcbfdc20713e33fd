package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/approvedrevs/internal/listing"
	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

// Request is one external request. Its caches live as long as it does;
// start a new Request for every incoming call. It is not safe for
// concurrent use.
type Request struct {
	e  *Engine
	sc *scope.Scope
}

// Actor returns the actor the request runs as.
func (r *Request) Actor() model.Actor { return r.sc.Actor() }

// Item resolves a title. Missing pages come back with Exists=false.
func (r *Request) Item(ctx context.Context, title string) (model.Item, error) {
	return r.e.wiki.Item(ctx, title)
}

// IsApprovable reports whether a page takes part in the approval workflow.
func (r *Request) IsApprovable(ctx context.Context, item model.Item) (bool, error) {
	return r.e.approvability.IsApprovable(ctx, r.sc, item)
}

// MediaIsApprovable reports whether a file takes part in the approval workflow.
func (r *Request) MediaIsApprovable(ctx context.Context, item model.Item) (bool, error) {
	return r.e.approvability.MediaIsApprovable(ctx, r.sc, item)
}

// PolicyApprovable reports whether the policy, an override or the legacy
// marker puts item under approval, ignoring existing approval records.
func (r *Request) PolicyApprovable(ctx context.Context, item model.Item, media bool) (bool, error) {
	return r.e.approvability.PolicyApprovable(ctx, r.sc, item, media)
}

// CanApprove reports whether the request's actor may approve item.
func (r *Request) CanApprove(ctx context.Context, item model.Item) (bool, error) {
	return r.e.authority.CanApprove(ctx, r.sc, r.Actor(), item)
}

// ApprovedRevision returns the approved revision of a page.
func (r *Request) ApprovedRevision(ctx context.Context, item model.Item) (model.RevisionID, bool, error) {
	return r.e.approvals.ApprovedRevision(ctx, r.sc, item)
}

// HasApprovedRevision reports whether a page has an approved revision.
func (r *Request) HasApprovedRevision(ctx context.Context, item model.Item) (bool, error) {
	return r.e.approvals.HasApprovedRevision(ctx, r.sc, item)
}

// ApprovedContent returns the text of the approved revision.
func (r *Request) ApprovedContent(ctx context.Context, item model.Item) (string, bool, error) {
	return r.e.approvals.ApprovedContent(ctx, r.sc, item)
}

// Approve approves revision rev of a page; rev 0 means the latest revision.
// The page must be approvable and the actor allowed to approve it. A
// *approval.SideEffectError means the approval was stored but a follow-up
// step failed.
func (r *Request) Approve(ctx context.Context, item model.Item, rev model.RevisionID) error {
	if !item.Exists {
		return fmt.Errorf("%s: %w", item.FullName(), model.ErrNotFound)
	}
	latest, err := r.e.wiki.LatestRevision(ctx, item)
	if err != nil {
		return err
	}
	if rev == 0 {
		rev = latest
	}
	exists, err := r.e.wiki.RevisionExists(ctx, item, rev)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("revision %d of %s: %w", rev, item.FullName(), model.ErrRevisionNotFound)
	}
	if err := r.authorize(ctx, item, false); err != nil {
		return err
	}
	return r.e.approvals.SetApproved(ctx, r.sc, item, rev, false)
}

// Unapprove removes a page's approval. Pages without an approval record
// are left alone.
func (r *Request) Unapprove(ctx context.Context, item model.Item) error {
	if !item.Exists {
		return fmt.Errorf("%s: %w", item.FullName(), model.ErrNotFound)
	}
	has, err := r.e.db.HasApprovalRecord(ctx, item.ID)
	if err != nil || !has {
		return err
	}
	if err := r.checkCanApprove(ctx, item); err != nil {
		return err
	}
	return r.e.approvals.Unset(ctx, r.sc, item)
}

// ApprovedFileInfo returns the approved upload of a file.
func (r *Request) ApprovedFileInfo(ctx context.Context, item model.Item) (model.FileVersion, bool, error) {
	return r.e.approvals.ApprovedFile(ctx, r.sc, item)
}

// ApproveFile approves upload v of a file; a zero v means the latest upload.
func (r *Request) ApproveFile(ctx context.Context, item model.Item, v model.FileVersion) error {
	if v == (model.FileVersion{}) {
		latest, err := r.e.wiki.LatestFileVersion(ctx, item)
		if err != nil {
			return fmt.Errorf("%s: %w", item.FullName(), err)
		}
		v = latest
	}
	exists, err := r.e.wiki.HasFileVersion(ctx, item, v)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("upload %s of %s: %w", v.Timestamp, item.FullName(), model.ErrNotFound)
	}
	if err := r.authorize(ctx, item, true); err != nil {
		return err
	}
	return r.e.approvals.SetApprovedFile(ctx, r.sc, item, v)
}

// UnapproveFile removes a file's approval.
func (r *Request) UnapproveFile(ctx context.Context, item model.Item) error {
	has, err := r.e.db.HasFileApprovalRecord(ctx, item.DBKey())
	if err != nil || !has {
		return err
	}
	if err := r.checkCanApprove(ctx, item); err != nil {
		return err
	}
	return r.e.approvals.UnsetFile(ctx, r.sc, item)
}

func (r *Request) authorize(ctx context.Context, item model.Item, media bool) error {
	var approvable bool
	var err error
	if media {
		approvable, err = r.MediaIsApprovable(ctx, item)
	} else {
		approvable, err = r.IsApprovable(ctx, item)
	}
	if err != nil {
		return err
	}
	if !approvable {
		return fmt.Errorf("%s: %w", item.FullName(), model.ErrNotApprovable)
	}
	return r.checkCanApprove(ctx, item)
}

func (r *Request) checkCanApprove(ctx context.Context, item model.Item) error {
	ok, err := r.CanApprove(ctx, item)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s may not approve %s: %w", actorLabel(r.Actor()), item.FullName(), model.ErrPermissionDenied)
	}
	return nil
}

func actorLabel(a model.Actor) string {
	if a.IsAnonymous() {
		return "anonymous"
	}
	return a.Name
}

// SaveResult describes a stored revision.
type SaveResult struct {
	Item         model.Item     `json:"item"`
	Revision     model.Revision `json:"revision"`
	AutoApproved bool           `json:"auto_approved"`
}

// SaveRevision stores text as a new revision authored by the actor.
//
// The new text is indexed first so approvability sees the page's current
// categories and marker. If automatic approvals are on and the actor may
// approve the page, the new revision is approved. Otherwise the index is
// put back to what readers see: the approved revision when there is one,
// or blank text for approvable pages when blank_if_unapproved is set.
func (r *Request) SaveRevision(ctx context.Context, title, text string) (SaveResult, error) {
	item, rev, err := r.e.wiki.SaveRevision(ctx, title, r.Actor().Name, text)
	if err != nil {
		return SaveResult{}, err
	}
	r.sc.Forget(item)
	res := SaveResult{Item: item, Revision: rev}

	if err := r.e.approvals.Reindex(ctx, item, text); err != nil {
		return res, err
	}

	approvable, err := r.IsApprovable(ctx, item)
	if err != nil {
		return res, err
	}
	if approvable && r.e.settings.AutomaticApprovals {
		can, err := r.CanApprove(ctx, item)
		if err != nil {
			return res, err
		}
		if can {
			res.AutoApproved = true
			return res, r.e.approvals.SetApproved(ctx, r.sc, item, rev.ID, true)
		}
	}

	approvedText, ok, err := r.ApprovedContent(ctx, item)
	if err != nil {
		return res, err
	}
	switch {
	case ok:
		err = r.e.approvals.Reindex(ctx, item, approvedText)
	case approvable && r.e.settings.BlankIfUnapproved:
		err = r.e.approvals.Reindex(ctx, item, "")
	}
	return res, err
}

// DeletePage deletes a page and drops its approval.
func (r *Request) DeletePage(ctx context.Context, item model.Item) error {
	if !item.Exists {
		return fmt.Errorf("%s: %w", item.FullName(), model.ErrNotFound)
	}
	if err := r.e.wiki.DeletePage(ctx, item); err != nil {
		return err
	}
	return r.e.approvals.DeleteAll(ctx, r.sc, item)
}

// UploadFile stores content as a new upload of the file.
func (r *Request) UploadFile(ctx context.Context, name string, content []byte) (model.Item, model.FileVersion, error) {
	item, v, err := r.e.wiki.UploadFile(ctx, name, r.Actor().Name, content)
	if err != nil {
		return model.Item{}, model.FileVersion{}, err
	}
	r.sc.Forget(item)
	return item, v, nil
}

// DeleteFile deletes every upload of a file and drops its approval.
func (r *Request) DeleteFile(ctx context.Context, item model.Item) error {
	if err := r.e.wiki.DeleteFile(ctx, item); err != nil {
		return err
	}
	return r.e.approvals.DeleteAllFile(ctx, r.sc, item)
}

// View is what a reader sees for a page.
type View struct {
	Item model.Item `json:"item"`
	// RevisionID is the revision shown; 0 when the text is blanked.
	RevisionID model.RevisionID `json:"rev_id"`
	Text       string           `json:"text"`
	Approved   bool             `json:"approved"`
	IsLatest   bool             `json:"is_latest"`
	// NotApprovedNotice asks the reader to be told the page has no
	// approved revision.
	NotApprovedNotice bool `json:"not_approved_notice,omitempty"`
}

// View returns the approved text of a page, or what is shown instead when
// nothing is approved.
func (r *Request) View(ctx context.Context, item model.Item) (View, error) {
	if !item.Exists {
		return View{}, fmt.Errorf("%s: %w", item.FullName(), model.ErrNotFound)
	}
	v := View{Item: item}

	latest, latestText, err := r.e.wiki.LatestText(ctx, item)
	if err != nil {
		return View{}, err
	}
	approvable, err := r.IsApprovable(ctx, item)
	if err != nil {
		return View{}, err
	}
	rev, ok, err := r.ApprovedRevision(ctx, item)
	if err != nil {
		return View{}, err
	}

	switch {
	case ok:
		text, found, err := r.ApprovedContent(ctx, item)
		if err != nil {
			return View{}, err
		}
		if found {
			v.RevisionID, v.Text, v.Approved, v.IsLatest = rev, text, true, rev == latest
			return v, nil
		}
	case approvable && r.e.settings.BlankIfUnapproved:
		v.NotApprovedNotice = r.e.settings.ShowNotApprovedMessage
		return v, nil
	}

	v.RevisionID, v.Text, v.IsLatest = latest, latestText, true
	v.NotApprovedNotice = approvable && r.e.settings.ShowNotApprovedMessage
	return v, nil
}

// Pages returns the page listing for mode.
func (r *Request) Pages(ctx context.Context, mode listing.Mode) ([]listing.PageRow, error) {
	return r.e.lister.Pages(ctx, r.sc, mode)
}

// Files returns the file listing for mode.
func (r *Request) Files(ctx context.Context, mode listing.Mode) ([]listing.FileRow, error) {
	return r.e.lister.Files(ctx, r.sc, mode)
}

// IsNotFound reports whether err means a page, revision or file is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrRevisionNotFound)
}
