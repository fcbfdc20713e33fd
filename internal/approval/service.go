// Package approval is the source of truth for which revision of a page, or
// which upload of a file, is approved.
//
// Record changes are committed first. Derived side effects (re-rendering
// and indexing, the audit entry, the notification) run afterwards and their
// failures come back as one *SideEffectError; the committed record is never
// rolled back because a collaborator failed.
package approval

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ppiankov/approvedrevs/internal/audit"
	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/notify"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

// Records persists approval records.
type Records interface {
	ApprovedRevision(ctx context.Context, itemID int64) (model.RevisionID, bool, error)
	SetApprovedRevision(ctx context.Context, itemID int64, rev model.RevisionID) error
	DeleteApproval(ctx context.Context, itemID int64) (bool, error)
	ApprovedFile(ctx context.Context, fileKey string) (model.FileVersion, bool, error)
	SetApprovedFile(ctx context.Context, fileKey string, v model.FileVersion) error
	DeleteFileApproval(ctx context.Context, fileKey string) (bool, error)
}

// Approvability answers whether items are under the approval policy.
type Approvability interface {
	IsApprovable(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error)
	MediaIsApprovable(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error)
}

// Content fetches stored page text and file versions.
type Content interface {
	RevisionExists(ctx context.Context, item model.Item, rev model.RevisionID) (bool, error)
	RevisionText(ctx context.Context, item model.Item, rev model.RevisionID) (string, error)
	LatestText(ctx context.Context, item model.Item) (model.RevisionID, string, error)
	HasFileVersion(ctx context.Context, item model.Item, v model.FileVersion) (bool, error)
}

// Renderer turns page text into structural output.
type Renderer interface {
	Render(ctx context.Context, item model.Item, text string) (model.ParsedPage, error)
}

// Indexer stores structural output for a page.
type Indexer interface {
	Apply(ctx context.Context, item model.Item, out model.ParsedPage) error
}

// AuditLog records approval actions.
type AuditLog interface {
	Record(entry audit.Entry) error
}

// Publisher delivers notifications.
type Publisher interface {
	Publish(ctx context.Context, e notify.Event) error
}

// Options configures a Service. Audit and Events may be nil.
type Options struct {
	Records       Records
	Approvability Approvability
	Content       Content
	Renderer      Renderer
	Indexer       Indexer
	Audit         AuditLog
	Events        Publisher

	// BlankIfUnapproved indexes blank text when an approval is removed
	// instead of the latest revision.
	BlankIfUnapproved bool
	// BaseURL prefixes revision links in audit entries.
	BaseURL string
	// PolicyHash stamps the active policy into audit entries.
	PolicyHash func() string

	Logger zerolog.Logger
}

// Service manages approval records and their side effects.
type Service struct {
	opts Options
	log  zerolog.Logger
}

// NewService creates a Service.
func NewService(opts Options) *Service {
	return &Service{opts: opts, log: opts.Logger.With().Str("component", "approval").Logger()}
}

// SideEffectError reports collaborator failures after a committed record
// change.
type SideEffectError struct {
	Op   string
	Item model.Item
	Err  error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s %s committed, side effects failed: %v", e.Op, e.Item.FullName(), e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }

func sideEffects(op string, item model.Item, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return &SideEffectError{Op: op, Item: item, Err: errors.Join(errs...)}
}

// ApprovedRevision returns the approved revision of a page. Pages outside
// the approval policy have none, and neither do records pointing at a
// revision that no longer exists.
func (s *Service) ApprovedRevision(ctx context.Context, sc *scope.Scope, item model.Item) (model.RevisionID, bool, error) {
	if rev, ok, cached := sc.ApprovedRevision(item.ID); cached {
		return rev, ok, nil
	}

	approvable, err := s.opts.Approvability.IsApprovable(ctx, sc, item)
	if err != nil {
		return 0, false, err
	}
	if !approvable {
		sc.SetNoApprovedRevision(item.ID)
		return 0, false, nil
	}

	rev, ok, err := s.opts.Records.ApprovedRevision(ctx, item.ID)
	if err != nil {
		return 0, false, err
	}
	if ok {
		exists, err := s.opts.Content.RevisionExists(ctx, item, rev)
		if err != nil {
			return 0, false, fmt.Errorf("revision %d of %s: %w", rev, item.FullName(), err)
		}
		if !exists {
			s.log.Warn().Str("item", item.FullName()).Int64("rev_id", int64(rev)).
				Msg("approval record points at a missing revision")
			ok = false
		}
	}

	if !ok {
		sc.SetNoApprovedRevision(item.ID)
		return 0, false, nil
	}
	sc.SetApprovedRevision(item.ID, rev)
	return rev, true, nil
}

// HasApprovedRevision reports whether a page has an approved revision.
func (s *Service) HasApprovedRevision(ctx context.Context, sc *scope.Scope, item model.Item) (bool, error) {
	_, ok, err := s.ApprovedRevision(ctx, sc, item)
	return ok, err
}

// ApprovedContent returns the text of the approved revision.
func (s *Service) ApprovedContent(ctx context.Context, sc *scope.Scope, item model.Item) (string, bool, error) {
	if text, ok, cached := sc.ApprovedContent(item.ID); cached {
		return text, ok, nil
	}

	rev, ok, err := s.ApprovedRevision(ctx, sc, item)
	if err != nil || !ok {
		return "", false, err
	}

	text, err := s.opts.Content.RevisionText(ctx, item, rev)
	if errors.Is(err, model.ErrRevisionNotFound) {
		sc.SetNoApprovedRevision(item.ID)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("text of revision %d: %w", rev, err)
	}
	sc.SetApprovedContent(item.ID, text)
	return text, true, nil
}

// SetApproved points the page at rev and re-renders rev's text into the
// index so links and categories reflect the approved content. indexCurrent
// skips the re-render; pass it only when the index already holds rev's
// text, as right after that revision was saved.
func (s *Service) SetApproved(ctx context.Context, sc *scope.Scope, item model.Item, rev model.RevisionID, indexCurrent bool) error {
	if err := s.opts.Records.SetApprovedRevision(ctx, item.ID, rev); err != nil {
		return err
	}
	sc.SetApprovedRevision(item.ID, rev)
	s.log.Info().Str("item", item.FullName()).Int64("rev_id", int64(rev)).
		Str("actor", sc.Actor().Name).Bool("index_current", indexCurrent).Msg("revision approved")

	var errs []error
	if !indexCurrent {
		if err := s.reindexRevision(ctx, item, rev); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.record(audit.ActionApprove, sc.Actor(), item, audit.Params{
		RevisionID: int64(rev),
		Link:       s.revisionLink(item, rev),
	}); err != nil {
		errs = append(errs, err)
	}
	if err := s.publish(ctx, notify.RevisionApproved(sc.Actor(), item, rev)); err != nil {
		errs = append(errs, err)
	}
	return s.report("approve", item, errs)
}

// Unset removes the page's approval and re-indexes from blank text or the
// latest revision.
func (s *Service) Unset(ctx context.Context, sc *scope.Scope, item model.Item) error {
	if _, err := s.opts.Records.DeleteApproval(ctx, item.ID); err != nil {
		return err
	}
	sc.SetNoApprovedRevision(item.ID)
	s.log.Info().Str("item", item.FullName()).Str("actor", sc.Actor().Name).Msg("revision unapproved")

	var errs []error
	if err := s.reindexUnapproved(ctx, item); err != nil {
		errs = append(errs, err)
	}
	if err := s.record(audit.ActionUnapprove, sc.Actor(), item, audit.Params{}); err != nil {
		errs = append(errs, err)
	}
	if err := s.publish(ctx, notify.RevisionUnapproved(sc.Actor(), item)); err != nil {
		errs = append(errs, err)
	}
	return s.report("unapprove", item, errs)
}

// DeleteAll drops the page's approval record without side effects. It is
// used when the page itself is deleted.
func (s *Service) DeleteAll(ctx context.Context, sc *scope.Scope, item model.Item) error {
	existed, err := s.opts.Records.DeleteApproval(ctx, item.ID)
	if err != nil {
		return err
	}
	sc.Forget(item)
	if existed {
		s.log.Info().Str("item", item.FullName()).Msg("approval dropped with deleted page")
	}
	return nil
}

// ApprovedFile returns the approved upload of a file.
func (s *Service) ApprovedFile(ctx context.Context, sc *scope.Scope, item model.Item) (model.FileVersion, bool, error) {
	key := item.DBKey()
	if v, ok, cached := sc.FileInfo(key); cached {
		return v, ok, nil
	}

	approvable, err := s.opts.Approvability.MediaIsApprovable(ctx, sc, item)
	if err != nil {
		return model.FileVersion{}, false, err
	}
	if !approvable {
		sc.SetNoFileInfo(key)
		return model.FileVersion{}, false, nil
	}

	v, ok, err := s.opts.Records.ApprovedFile(ctx, key)
	if err != nil {
		return model.FileVersion{}, false, err
	}
	if ok {
		exists, err := s.opts.Content.HasFileVersion(ctx, item, v)
		if err != nil {
			return model.FileVersion{}, false, fmt.Errorf("upload of %s: %w", item.FullName(), err)
		}
		if !exists {
			s.log.Warn().Str("item", item.FullName()).Str("sha1", v.Fingerprint()).
				Msg("file approval record points at a missing upload")
			ok = false
		}
	}

	if !ok {
		sc.SetNoFileInfo(key)
		return model.FileVersion{}, false, nil
	}
	sc.SetFileInfo(key, v)
	return v, true, nil
}

// SetApprovedFile points the file at upload v.
func (s *Service) SetApprovedFile(ctx context.Context, sc *scope.Scope, item model.Item, v model.FileVersion) error {
	if err := s.opts.Records.SetApprovedFile(ctx, item.DBKey(), v); err != nil {
		return err
	}
	sc.SetFileInfo(item.DBKey(), v)
	s.log.Info().Str("item", item.FullName()).Str("sha1", v.Fingerprint()).
		Str("actor", sc.Actor().Name).Msg("file approved")

	var errs []error
	if err := s.record(audit.ActionApproveFile, sc.Actor(), item, audit.Params{
		FileTimestamp: v.Timestamp,
		Fingerprint:   v.Fingerprint(),
	}); err != nil {
		errs = append(errs, err)
	}
	if err := s.publish(ctx, notify.FileApproved(sc.Actor(), item, v)); err != nil {
		errs = append(errs, err)
	}
	return s.report("approve file", item, errs)
}

// UnsetFile removes the file's approval.
func (s *Service) UnsetFile(ctx context.Context, sc *scope.Scope, item model.Item) error {
	if _, err := s.opts.Records.DeleteFileApproval(ctx, item.DBKey()); err != nil {
		return err
	}
	sc.SetNoFileInfo(item.DBKey())
	s.log.Info().Str("item", item.FullName()).Str("actor", sc.Actor().Name).Msg("file unapproved")

	var errs []error
	if err := s.record(audit.ActionUnapproveFile, sc.Actor(), item, audit.Params{}); err != nil {
		errs = append(errs, err)
	}
	if err := s.publish(ctx, notify.FileUnapproved(sc.Actor(), item)); err != nil {
		errs = append(errs, err)
	}
	return s.report("unapprove file", item, errs)
}

// DeleteAllFile drops the file's approval record without side effects.
func (s *Service) DeleteAllFile(ctx context.Context, sc *scope.Scope, item model.Item) error {
	if _, err := s.opts.Records.DeleteFileApproval(ctx, item.DBKey()); err != nil {
		return err
	}
	sc.Forget(item)
	return nil
}

// Reindex renders text and stores the structural output for the page.
func (s *Service) Reindex(ctx context.Context, item model.Item, text string) error {
	out, err := s.opts.Renderer.Render(ctx, item, text)
	if err != nil {
		return fmt.Errorf("render %s: %w", item.FullName(), err)
	}
	if err := s.opts.Indexer.Apply(ctx, item, out); err != nil {
		return fmt.Errorf("index %s: %w", item.FullName(), err)
	}
	return nil
}

func (s *Service) reindexRevision(ctx context.Context, item model.Item, rev model.RevisionID) error {
	text, err := s.opts.Content.RevisionText(ctx, item, rev)
	if err != nil {
		return fmt.Errorf("text of revision %d: %w", rev, err)
	}
	return s.Reindex(ctx, item, text)
}

func (s *Service) reindexUnapproved(ctx context.Context, item model.Item) error {
	if s.opts.BlankIfUnapproved {
		return s.Reindex(ctx, item, "")
	}
	_, text, err := s.opts.Content.LatestText(ctx, item)
	if err != nil {
		return fmt.Errorf("latest text of %s: %w", item.FullName(), err)
	}
	return s.Reindex(ctx, item, text)
}

func (s *Service) record(action string, actor model.Actor, item model.Item, params audit.Params) error {
	if s.opts.Audit == nil {
		return nil
	}
	entry := audit.Entry{
		Action: action,
		Actor:  actor.Name,
		Target: audit.Target{ItemID: item.ID, Title: item.FullName()},
		Params: params,
	}
	if s.opts.PolicyHash != nil {
		entry.PolicyHash = s.opts.PolicyHash()
	}
	if err := s.opts.Audit.Record(entry); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, e notify.Event) error {
	if s.opts.Events == nil {
		return nil
	}
	if err := s.opts.Events.Publish(ctx, e); err != nil {
		return fmt.Errorf("notify %s: %w", e.Kind, err)
	}
	return nil
}

func (s *Service) report(op string, item model.Item, errs []error) error {
	err := sideEffects(op, item, errs)
	if err != nil {
		s.log.Error().Err(err).Str("item", item.FullName()).Str("op", op).Msg("side effects failed")
	}
	return err
}

// revisionLink builds "<base>/index.php?oldid=7&title=Help%3AEditing".
func (s *Service) revisionLink(item model.Item, rev model.RevisionID) string {
	q := url.Values{}
	q.Set("title", strings.ReplaceAll(item.FullName(), " ", "_"))
	q.Set("oldid", strconv.FormatInt(int64(rev), 10))
	return strings.TrimRight(s.opts.BaseURL, "/") + "/index.php?" + q.Encode()
}
