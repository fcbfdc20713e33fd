package model

import (
	"fmt"
	"strings"
)

// Item is an addressable content unit: a page or a file.
type Item struct {
	ID        int64       `json:"id"`
	Namespace NamespaceID `json:"namespace"`
	Name      string      `json:"name"`
	Exists    bool        `json:"exists"`
}

// FullName returns the fully-qualified title, e.g. "Help:Editing".
func (it Item) FullName() string {
	prefix := it.Namespace.Name()
	if prefix == "" {
		return it.Name
	}
	return prefix + ":" + it.Name
}

// DBKey returns the name with spaces replaced by underscores. Files are keyed
// by it in file_approval_records.
func (it Item) DBKey() string {
	return strings.ReplaceAll(it.Name, " ", "_")
}

// BaseName returns the name without any subpage suffix.
func (it Item) BaseName() string {
	if i := strings.Index(it.Name, "/"); i >= 0 {
		return it.Name[:i]
	}
	return it.Name
}

func (it Item) String() string {
	return fmt.Sprintf("%s (#%d)", it.FullName(), it.ID)
}

// RevisionID identifies one page revision. Revision ids increase monotonically.
type RevisionID int64

// Revision is an immutable stored page version.
type Revision struct {
	ID        RevisionID `json:"id"`
	ItemID    int64      `json:"item_id"`
	Author    string     `json:"author"`
	Timestamp string     `json:"timestamp"`
}

// FileVersion identifies one uploaded version of a file.
type FileVersion struct {
	Timestamp string `json:"timestamp"`
	SHA1      string `json:"sha1"`
}

// Fingerprint returns the short form of the content hash used in log lines.
func (v FileVersion) Fingerprint() string {
	if len(v.SHA1) <= 8 {
		return v.SHA1
	}
	return v.SHA1[:8]
}

// ApprovalRecord points a page at its approved revision.
type ApprovalRecord struct {
	ItemID     int64      `json:"item_id"`
	RevisionID RevisionID `json:"rev_id"`
}

// FileApprovalRecord points a file at its approved upload.
type FileApprovalRecord struct {
	FileKey string      `json:"file_key"`
	Version FileVersion `json:"version"`
}
