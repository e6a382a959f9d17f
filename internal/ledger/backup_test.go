package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshotMissingSourceIsNoOp(t *testing.T) {
	b := NewBackups(filepath.Join(t.TempDir(), "backups"))
	path, err := b.Snapshot(filepath.Join(t.TempDir(), "nope.csv"), "pre-write")
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Fatalf("path = %q, want empty", path)
	}
}

func TestSnapshotCopiesAndLists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "requisitions.csv")
	if err := os.WriteFile(src, []byte("id,dedup_token\nREQ-00001,t1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := NewBackups(filepath.Join(dir, "backups"))
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return base }

	first, err := b.Snapshot(src, "pre-write")
	if err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "id,dedup_token\nREQ-00001,t1\n" {
		t.Fatalf("backup content = %q", got)
	}

	b.now = func() time.Time { return base.Add(2 * time.Second) }
	if _, err := b.Snapshot(src, "corrupt"); err != nil {
		t.Fatal(err)
	}

	list, err := b.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("backups = %d, want 2", len(list))
	}
	// Newest first.
	if list[0].Tag != "corrupt" || list[1].Tag != "pre-write" {
		t.Fatalf("order = %q, %q", list[0].Tag, list[1].Tag)
	}
	if !list[0].TakenAt.After(list[1].TakenAt) {
		t.Fatalf("timestamps out of order: %v, %v", list[0].TakenAt, list[1].TakenAt)
	}
}

func TestListEmptyDir(t *testing.T) {
	b := NewBackups(filepath.Join(t.TempDir(), "never-created"))
	list, err := b.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("backups = %d, want 0", len(list))
	}
}

func TestSanitizeTag(t *testing.T) {
	if got := sanitizeTag("pre-write"); got != "pre-write" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeTag("../../etc"); got != "______etc" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeTag("  "); got != "manual" {
		t.Fatalf("got %q", got)
	}
}
