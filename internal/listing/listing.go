// Package listing reports approval state across every page and file:
// what is approved, what is approved but outdated, what policy covers but
// nobody approved yet, and which records policy no longer covers.
package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

// Mode selects what a listing reports.
type Mode string

const (
	// ModeApproved lists every item with an approval.
	ModeApproved Mode = "approved"
	// ModeNotLatest lists approved items whose approval is not the latest version.
	ModeNotLatest Mode = "notlatest"
	// ModeUnapproved lists approvable items without an approval.
	ModeUnapproved Mode = "unapproved"
	// ModeInvalid lists approvals of items no longer under policy.
	ModeInvalid Mode = "invalid"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeApproved, ModeNotLatest, ModeUnapproved, ModeInvalid}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown listing mode %q (want approved, notlatest, unapproved or invalid)", s)
}

// Catalog enumerates host items.
type Catalog interface {
	Pages(ctx context.Context) ([]model.Item, error)
	Files(ctx context.Context) ([]model.Item, error)
	Item(ctx context.Context, title string) (model.Item, error)
	ItemByID(ctx context.Context, id int64) (model.Item, error)
	LatestRevision(ctx context.Context, item model.Item) (model.RevisionID, error)
	LatestFileVersion(ctx context.Context, item model.Item) (model.FileVersion, error)
}

// Records enumerates approval records.
type Records interface {
	ApprovalRecords(ctx context.Context) ([]model.ApprovalRecord, error)
	FileApprovalRecords(ctx context.Context) ([]model.FileApprovalRecord, error)
}

// Policy answers approvability.
type Policy interface {
	IsApprovable(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error)
	MediaIsApprovable(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error)
	PolicyApprovable(ctx context.Context, sc *scope.Scope, item model.Item, media bool) (bool, error)
}

// Authority answers whether an actor may approve.
type Authority interface {
	CanApprove(ctx context.Context, sc *scope.Scope, actor model.Actor, item model.Item) (bool, error)
}

// PageRow is one page in a listing.
type PageRow struct {
	Item        model.Item       `json:"item"`
	ApprovedRev model.RevisionID `json:"approved_rev,omitempty"`
	LatestRev   model.RevisionID `json:"latest_rev"`
	IsLatest    bool             `json:"is_latest"`
	// ApproveLatest is set when the actor may approve the latest revision
	// straight from the listing.
	ApproveLatest bool `json:"approve_latest,omitempty"`
}

// FileRow is one file in a listing.
type FileRow struct {
	Item          model.Item        `json:"item"`
	Approved      model.FileVersion `json:"approved"`
	Latest        model.FileVersion `json:"latest"`
	IsLatest      bool              `json:"is_latest"`
	ApproveLatest bool              `json:"approve_latest,omitempty"`
}

// Lister builds listings.
type Lister struct {
	catalog           Catalog
	records           Records
	policy            Policy
	authority         Authority
	showApproveLatest bool
}

// New creates a Lister. showApproveLatest enables the approve-latest
// action on unapproved and outdated rows.
func New(catalog Catalog, records Records, policy Policy, authority Authority, showApproveLatest bool) *Lister {
	return &Lister{
		catalog:           catalog,
		records:           records,
		policy:            policy,
		authority:         authority,
		showApproveLatest: showApproveLatest,
	}
}

// Pages returns the page listing for mode.
func (l *Lister) Pages(ctx context.Context, sc *scope.Scope, mode Mode) ([]PageRow, error) {
	if mode == ModeUnapproved {
		return l.unapprovedPages(ctx, sc)
	}

	recs, err := l.records.ApprovalRecords(ctx)
	if err != nil {
		return nil, err
	}
	rows := []PageRow{}
	for _, rec := range recs {
		item, err := l.catalog.ItemByID(ctx, rec.ItemID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		latest, err := l.catalog.LatestRevision(ctx, item)
		if err != nil {
			return nil, err
		}
		row := PageRow{Item: item, ApprovedRev: rec.RevisionID, LatestRev: latest, IsLatest: rec.RevisionID == latest}

		switch mode {
		case ModeNotLatest:
			if row.IsLatest {
				continue
			}
			if row.ApproveLatest, err = l.approveLatest(ctx, sc, item); err != nil {
				return nil, err
			}
		case ModeInvalid:
			covered, err := l.policy.PolicyApprovable(ctx, sc, item, false)
			if err != nil {
				return nil, err
			}
			if covered {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *Lister) unapprovedPages(ctx context.Context, sc *scope.Scope) ([]PageRow, error) {
	approved, err := l.approvedPageIDs(ctx)
	if err != nil {
		return nil, err
	}
	pages, err := l.catalog.Pages(ctx)
	if err != nil {
		return nil, err
	}
	rows := []PageRow{}
	for _, item := range pages {
		if approved[item.ID] {
			continue
		}
		ok, err := l.policy.IsApprovable(ctx, sc, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		latest, err := l.catalog.LatestRevision(ctx, item)
		if err != nil {
			return nil, err
		}
		row := PageRow{Item: item, LatestRev: latest}
		if row.ApproveLatest, err = l.approveLatest(ctx, sc, item); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *Lister) approvedPageIDs(ctx context.Context) (map[int64]bool, error) {
	recs, err := l.records.ApprovalRecords(ctx)
	if err != nil {
		return nil, err
	}
	ids := make(map[int64]bool, len(recs))
	for _, r := range recs {
		ids[r.ItemID] = true
	}
	return ids, nil
}

// Files returns the file listing for mode.
func (l *Lister) Files(ctx context.Context, sc *scope.Scope, mode Mode) ([]FileRow, error) {
	recs, err := l.records.FileApprovalRecords(ctx)
	if err != nil {
		return nil, err
	}
	if mode == ModeUnapproved {
		return l.unapprovedFiles(ctx, sc, recs)
	}

	rows := []FileRow{}
	for _, rec := range recs {
		item, err := l.catalog.Item(ctx, "File:"+rec.FileKey)
		if err != nil {
			return nil, err
		}
		if !item.Exists {
			continue
		}
		latest, err := l.catalog.LatestFileVersion(ctx, item)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		row := FileRow{Item: item, Approved: rec.Version, Latest: latest, IsLatest: rec.Version == latest}

		switch mode {
		case ModeNotLatest:
			if row.IsLatest {
				continue
			}
			if row.ApproveLatest, err = l.approveLatest(ctx, sc, item); err != nil {
				return nil, err
			}
		case ModeInvalid:
			covered, err := l.policy.PolicyApprovable(ctx, sc, item, true)
			if err != nil {
				return nil, err
			}
			if covered {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *Lister) unapprovedFiles(ctx context.Context, sc *scope.Scope, recs []model.FileApprovalRecord) ([]FileRow, error) {
	approved := make(map[string]bool, len(recs))
	for _, r := range recs {
		approved[r.FileKey] = true
	}
	files, err := l.catalog.Files(ctx)
	if err != nil {
		return nil, err
	}
	rows := []FileRow{}
	for _, item := range files {
		if approved[item.DBKey()] {
			continue
		}
		ok, err := l.policy.MediaIsApprovable(ctx, sc, item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		latest, err := l.catalog.LatestFileVersion(ctx, item)
		if err != nil {
			return nil, err
		}
		row := FileRow{Item: item, Latest: latest}
		if row.ApproveLatest, err = l.approveLatest(ctx, sc, item); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *Lister) approveLatest(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error) {
	if !l.showApproveLatest {
		return false, nil
	}
	return l.authority.CanApprove(ctx, sc, sc.Actor(), item)
}
