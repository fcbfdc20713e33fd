// Package scope holds the caches that live for one external request.
//
// A Scope memoizes answers that depend on the current actor and the current
// persisted state, so it must never outlive the request that created it.
// It is not safe for concurrent use.
//
// Answers are keyed by page id. Missing pages all have id 0, so nothing is
// cached for them; lookups miss and stores are dropped.
package scope

import "github.com/ppiankov/approvedrevs/internal/model"

type revEntry struct {
	rev model.RevisionID
	ok  bool
}

type contentEntry struct {
	text string
	ok   bool
}

type fileEntry struct {
	version model.FileVersion
	ok      bool
}

type verdictKey struct {
	actor  string
	itemID int64
}

// Scope is the per-request cache set.
type Scope struct {
	actor model.Actor

	approvable      map[int64]bool
	mediaApprovable map[int64]bool
	closures        map[int64][]string
	approvedRev     map[int64]revEntry
	approvedContent map[int64]contentEntry
	fileInfo        map[string]fileEntry
	canApprove      map[verdictKey]bool
}

// New creates an empty scope for actor.
func New(actor model.Actor) *Scope {
	return &Scope{
		actor:           actor,
		approvable:      make(map[int64]bool),
		mediaApprovable: make(map[int64]bool),
		closures:        make(map[int64][]string),
		approvedRev:     make(map[int64]revEntry),
		approvedContent: make(map[int64]contentEntry),
		fileInfo:        make(map[string]fileEntry),
		canApprove:      make(map[verdictKey]bool),
	}
}

// Actor returns the actor the request runs as.
func (s *Scope) Actor() model.Actor { return s.actor }

// Approvable returns the memoized approvability of an item.
func (s *Scope) Approvable(itemID int64) (value, ok bool) {
	if itemID == 0 {
		return false, false
	}
	value, ok = s.approvable[itemID]
	return value, ok
}

// SetApprovable memoizes approvability of an item.
func (s *Scope) SetApprovable(itemID int64, value bool) {
	if itemID != 0 {
		s.approvable[itemID] = value
	}
}

// MediaApprovable returns the memoized file approvability of an item.
func (s *Scope) MediaApprovable(itemID int64) (value, ok bool) {
	if itemID == 0 {
		return false, false
	}
	value, ok = s.mediaApprovable[itemID]
	return value, ok
}

// SetMediaApprovable memoizes file approvability of an item.
func (s *Scope) SetMediaApprovable(itemID int64, value bool) {
	if itemID != 0 {
		s.mediaApprovable[itemID] = value
	}
}

// Closure returns the memoized category closure of an item.
func (s *Scope) Closure(itemID int64) ([]string, bool) {
	if itemID == 0 {
		return nil, false
	}
	c, ok := s.closures[itemID]
	return c, ok
}

// SetClosure memoizes the category closure of an item.
func (s *Scope) SetClosure(itemID int64, closure []string) {
	if itemID != 0 {
		s.closures[itemID] = closure
	}
}

// ApprovedRevision returns the cached approved revision. cached is false on
// a miss; ok is false when the item is cached as having no approval.
func (s *Scope) ApprovedRevision(itemID int64) (rev model.RevisionID, ok, cached bool) {
	if itemID == 0 {
		return 0, false, false
	}
	e, cached := s.approvedRev[itemID]
	return e.rev, e.ok, cached
}

// SetApprovedRevision caches the approved revision of an item and drops any
// cached content of the previous one.
func (s *Scope) SetApprovedRevision(itemID int64, rev model.RevisionID) {
	if itemID == 0 {
		return
	}
	if prev, hit := s.approvedRev[itemID]; !hit || prev.rev != rev || !prev.ok {
		delete(s.approvedContent, itemID)
	}
	s.approvedRev[itemID] = revEntry{rev: rev, ok: true}
}

// SetNoApprovedRevision caches that an item has no approved revision.
func (s *Scope) SetNoApprovedRevision(itemID int64) {
	if itemID == 0 {
		return
	}
	s.approvedRev[itemID] = revEntry{}
	s.approvedContent[itemID] = contentEntry{}
}

// ApprovedContent returns the cached approved content.
func (s *Scope) ApprovedContent(itemID int64) (text string, ok, cached bool) {
	if itemID == 0 {
		return "", false, false
	}
	e, cached := s.approvedContent[itemID]
	return e.text, e.ok, cached
}

// SetApprovedContent caches approved content of an item.
func (s *Scope) SetApprovedContent(itemID int64, text string) {
	if itemID == 0 {
		return
	}
	s.approvedContent[itemID] = contentEntry{text: text, ok: true}
}

// FileInfo returns the cached approved file version for a file key.
func (s *Scope) FileInfo(fileKey string) (v model.FileVersion, ok, cached bool) {
	e, cached := s.fileInfo[fileKey]
	return e.version, e.ok, cached
}

// SetFileInfo caches the approved version of a file.
func (s *Scope) SetFileInfo(fileKey string, v model.FileVersion) {
	s.fileInfo[fileKey] = fileEntry{version: v, ok: true}
}

// SetNoFileInfo caches that a file has no approved version.
func (s *Scope) SetNoFileInfo(fileKey string) { s.fileInfo[fileKey] = fileEntry{} }

// CanApprove returns the finished authorization verdict for actor on item.
func (s *Scope) CanApprove(actor model.Actor, itemID int64) (value, ok bool) {
	if itemID == 0 {
		return false, false
	}
	value, ok = s.canApprove[verdictKey{actor: actor.Key(), itemID: itemID}]
	return value, ok
}

// SetCanApprove stores a finished authorization verdict.
func (s *Scope) SetCanApprove(actor model.Actor, itemID int64, value bool) {
	if itemID == 0 {
		return
	}
	s.canApprove[verdictKey{actor: actor.Key(), itemID: itemID}] = value
}

// Forget drops everything cached about an item. Approvability, closure and
// verdicts depend on content, so edits and deletions must call it.
func (s *Scope) Forget(item model.Item) {
	delete(s.approvable, item.ID)
	delete(s.mediaApprovable, item.ID)
	delete(s.closures, item.ID)
	delete(s.approvedRev, item.ID)
	delete(s.approvedContent, item.ID)
	delete(s.fileInfo, item.DBKey())
	for k := range s.canApprove {
		if k.itemID == item.ID {
			delete(s.canApprove, k)
		}
	}
}
