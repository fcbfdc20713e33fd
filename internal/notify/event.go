// Package notify publishes approval state changes to subscribers.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/approvedrevs/internal/model"
)

// Event kinds. Convention: "subject.action".
const (
	KindRevisionApproved   = "revision.approved"
	KindRevisionUnapproved = "revision.unapproved"
	KindFileApproved       = "file.approved"
	KindFileUnapproved     = "file.unapproved"
)

// Kinds returns every event kind plus the "*" wildcard accepted by
// subscriptions.
func Kinds() []string {
	return []string{KindRevisionApproved, KindRevisionUnapproved, KindFileApproved, KindFileUnapproved, "*"}
}

// Event describes one approval state change.
type Event struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	ItemID        int64     `json:"item_id"`
	Title         string    `json:"title"`
	RevisionID    int64     `json:"rev_id,omitempty"`
	FileTimestamp string    `json:"file_timestamp,omitempty"`
	SHA1          string    `json:"sha1,omitempty"`
}

func newEvent(kind string, actor model.Actor, item model.Item) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Actor:     actor.Name,
		ItemID:    item.ID,
		Title:     item.FullName(),
	}
}

// RevisionApproved is published after a page approval is stored.
func RevisionApproved(actor model.Actor, item model.Item, rev model.RevisionID) Event {
	e := newEvent(KindRevisionApproved, actor, item)
	e.RevisionID = int64(rev)
	return e
}

// RevisionUnapproved is published after a page approval is removed.
func RevisionUnapproved(actor model.Actor, item model.Item) Event {
	return newEvent(KindRevisionUnapproved, actor, item)
}

// FileApproved is published after a file approval is stored.
func FileApproved(actor model.Actor, item model.Item, v model.FileVersion) Event {
	e := newEvent(KindFileApproved, actor, item)
	e.FileTimestamp = v.Timestamp
	e.SHA1 = v.SHA1
	return e
}

// FileUnapproved is published after a file approval is removed.
func FileUnapproved(actor model.Actor, item model.Item) Event {
	return newEvent(KindFileUnapproved, actor, item)
}
