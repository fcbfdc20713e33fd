package audit

// Actions recorded in the approval log.
const (
	ActionApprove       = "approve"
	ActionUnapprove     = "unapprove"
	ActionApproveFile   = "approvefile"
	ActionUnapproveFile = "unapprovefile"
)

// Target identifies the item an entry is about.
type Target struct {
	ItemID int64  `json:"item_id"`
	Title  string `json:"title"`
}

// Params carries the rendered details of an approval: the approved revision
// and a link to it for pages, the upload timestamp and a short content
// fingerprint for files.
type Params struct {
	RevisionID    int64  `json:"rev_id,omitempty"`
	Link          string `json:"link,omitempty"`
	FileTimestamp string `json:"file_timestamp,omitempty"`
	Fingerprint   string `json:"fingerprint,omitempty"`
}

// Entry is one line in the hash-chained JSONL audit log.
// All fields are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp  string `json:"ts"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	Target     Target `json:"target"`
	Params     Params `json:"params"`
	PolicyHash string `json:"policy_hash"`
	PrevHash   string `json:"prev_hash"`
}
