package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func seedLog(f *testing.F, actions ...string) []byte {
	path := filepath.Join(f.TempDir(), "seed.jsonl")
	l, err := Open(path)
	if err != nil {
		f.Fatal(err)
	}
	for i, action := range actions {
		if err := l.Record(Entry{
			Action:     action,
			Actor:      "Alice",
			Target:     Target{ItemID: int64(i + 1), Title: "Foo"},
			Params:     Params{RevisionID: int64(i + 1)},
			PolicyHash: "sha256:seed",
		}); err != nil {
			f.Fatal(err)
		}
	}
	_ = l.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		f.Fatal(err)
	}
	return data
}

// A log that verifies must still verify after Open picks up its tail and
// appends one more entry.
func FuzzAppendAfterReopen(f *testing.F) {
	f.Add(seedLog(f, ActionApprove, ActionUnapprove, ActionApproveFile))
	f.Add(seedLog(f, ActionUnapproveFile))
	f.Add([]byte{})
	f.Add([]byte(`{"action":"approve"}` + "\n"))
	f.Add([]byte("not json\n\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		path := filepath.Join(t.TempDir(), "fuzz.jsonl")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		before := Verify(path)
		if !before.Valid || (len(data) > 0 && !bytes.HasSuffix(data, []byte("\n"))) {
			return
		}

		l, err := Open(path)
		if err != nil {
			t.Fatalf("open of a verified log failed: %v", err)
		}
		if l.Len() != before.Lines {
			t.Fatalf("Len %d, Verify counted %d", l.Len(), before.Lines)
		}
		if err := l.Record(Entry{Action: ActionApprove, Actor: "Fuzz", Target: Target{Title: "Bar"}}); err != nil {
			t.Fatal(err)
		}
		_ = l.Close()

		after := Verify(path)
		if !after.Valid || after.Lines != before.Lines+1 {
			t.Fatalf("chain broken after append: %+v", after)
		}
	})
}
