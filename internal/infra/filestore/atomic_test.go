package filestore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWrite_CreatesFileAndParentDirs(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data", "milestone_log.json")

	if err := AtomicWrite(target, []byte(`{"100":[]}`), 0o600); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != `{"100":[]}` {
		t.Fatalf("unexpected content: %s", data)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestAtomicWrite_ReplacesWholeFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "ledger.json")
	if err := AtomicWrite(target, []byte("a much longer first version"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(target, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "short" {
		t.Fatalf("expected full replace, got %q", data)
	}
}

func TestAtomicWrite_NoTempFileLeftOnSuccess(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.json")

	if err := AtomicWrite(target, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}

func TestAtomicWrite_FailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(filepath.Join(blocker, "file.json"), []byte("data"), 0o600); err == nil {
		t.Fatal("expected error when parent path is a regular file")
	}
}

func TestReadFileOrEmpty_MissingReturnsNilNil(t *testing.T) {
	data, err := ReadFileOrEmpty(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil data, got: %s", data)
	}
}

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	t.Setenv("CELEBRATOR_TEST_DIR", "/srv/bot")
	tests := []struct {
		input, fallback, want string
	}{
		{"~/ledger.json", "", filepath.Join(home, "ledger.json")},
		{"~", "", home},
		{"$CELEBRATOR_TEST_DIR/ledger.json", "", "/srv/bot/ledger.json"},
		{"", "./data/milestone_log.json", "./data/milestone_log.json"},
		{"", "", ""},
	}
	for _, tt := range tests {
		if got := ResolvePath(tt.input, tt.fallback); got != tt.want {
			t.Errorf("ResolvePath(%q, %q) = %q, want %q", tt.input, tt.fallback, got, tt.want)
		}
	}
}

func TestMarshalJSONIndent_TrailingNewline(t *testing.T) {
	data, err := MarshalJSONIndent(map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "{\n  \"a\": 1\n}\n" {
		t.Fatalf("unexpected output %q", data)
	}
}
