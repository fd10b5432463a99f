package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"celebrator/internal/mastodon"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func alice() mastodon.Account {
	return mastodon.Account{ID: "42", Username: "alice", DisplayName: "Alice", StatusesCount: 100}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "data", "milestone_log.json"))
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("expected empty ledger, got %d entries", l.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "milestone_log.json")
	l := New(path, WithClock(fixedClock))
	l.Add(1, mastodon.Account{ID: "7", Username: "bob", DisplayName: "Bob"}, "s1")
	l.Add(100, alice(), "s2")
	l.Add(100, mastodon.Account{ID: "8", Username: "carol", DisplayName: "キャロル"}, "s3")
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := New(path)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(l.entries, fresh.entries) {
		t.Fatalf("round trip mismatch:\nsaved  %+v\nloaded %+v", l.entries, fresh.entries)
	}
	if got := fresh.Milestones(); !reflect.DeepEqual(got, []int64{1, 100}) {
		t.Fatalf("unexpected milestones %v", got)
	}
}

func TestSaveReplacesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milestone_log.json")
	if err := os.WriteFile(path, []byte(`{"100":[{"accountId":"1","statusId":"x","username":"u","displayName":"d","createdAt":1}],"200":[]}`+"                                 "), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(path)
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "{\n" +
		"  \"100\": [\n" +
		"    {\n" +
		"      \"accountId\": \"1\",\n" +
		"      \"statusId\": \"x\",\n" +
		"      \"username\": \"u\",\n" +
		"      \"displayName\": \"d\",\n" +
		"      \"createdAt\": 1\n" +
		"    }\n" +
		"  ]\n" +
		"}\n"
	if string(data) != want {
		t.Fatalf("unexpected file content:\n%s", data)
	}
}

func TestLoadMalformedReturnsDeserializationError(t *testing.T) {
	cases := map[string]string{
		"truncated":   `{"100": [{"accountId": "1"`,
		"empty":       "",
		"array":       `[]`,
		"null":        `null`,
		"bad key":     `{"hundred": []}`,
		"zero key":    `{"0": []}`,
		"wrong value": `{"100": {"accountId": "1"}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "milestone_log.json")
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			err := New(path).Load()
			var derr *DeserializationError
			if !errors.As(err, &derr) {
				t.Fatalf("expected DeserializationError, got %v", err)
			}
			if derr.Path != path {
				t.Fatalf("unexpected path %q", derr.Path)
			}
		})
	}
}

func TestLoadReadsOriginalFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "milestone_log.json")
	content := `{
  "1": [
    {
      "accountId": "110000000000000001",
      "statusId": "110000000000000099",
      "username": "newbie",
      "displayName": "Newbie",
      "createdAt": 1700000000
    }
  ],
  "1000": []
}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(path)
	if err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !l.Has(1, "110000000000000001") {
		t.Fatal("expected new-member entry to be present")
	}
	if l.Has(1000, "110000000000000001") {
		t.Fatal("unexpected entry under 1000")
	}
	entries := l.Entries(1)
	if len(entries) != 1 || entries[0].StatusID != "110000000000000099" || entries[0].LoggedTime().Unix() != 1700000000 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestHasAndAdd(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "l.json"), WithClock(fixedClock))
	if l.Has(100, "42") {
		t.Fatal("empty ledger must not have entries")
	}
	e := l.Add(100, alice(), "s1")
	if e.LoggedAt != fixedNow.Unix() || e.Username != "alice" || e.DisplayName != "Alice" || e.StatusID != "s1" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !l.Has(100, "42") {
		t.Fatal("expected entry after Add")
	}
	if l.Has(200, "42") || l.Has(100, "43") {
		t.Fatal("Has must match both milestone and account")
	}
}

func TestAddDoesNotDeduplicate(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "l.json"))
	l.Add(100, alice(), "s1")
	l.Add(100, alice(), "s2")
	if l.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", l.Len())
	}
	dups := l.Duplicates()
	if len(dups) != 1 || dups[0] != (Duplicate{Milestone: 100, AccountID: "42", Count: 2}) {
		t.Fatalf("unexpected duplicates %+v", dups)
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "l.json"))
	l.Add(100, alice(), "s1")
	entries := l.Entries(100)
	entries[0].AccountID = "mutated"
	if !l.Has(100, "42") {
		t.Fatal("Entries must not expose internal storage")
	}
}

func TestSaveFailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "data")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(filepath.Join(blocker, "milestone_log.json"))
	l.Add(100, alice(), "s1")
	if err := l.Save(); err == nil {
		t.Fatal("expected save error")
	}
	if !l.Has(100, "42") {
		t.Fatal("failed save must keep in-memory state")
	}
}
