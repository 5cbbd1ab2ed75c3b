package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestSetGetRemove(t *testing.T) {
	s := testStore(t)

	type rec struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}

	s.Set("job-abc", rec{Name: "audio.mp3", N: 7})

	var got rec
	if !s.Get("job-abc", &got) {
		t.Fatal("expected hit")
	}
	if got.Name != "audio.mp3" || got.N != 7 {
		t.Fatalf("got %+v", got)
	}

	s.Remove("job-abc")
	if s.Get("job-abc", &got) {
		t.Fatal("expected miss after remove")
	}
}

func TestGetMissingKey(t *testing.T) {
	s := testStore(t)
	var v map[string]any
	if s.Get("nope", &v) {
		t.Fatal("missing key should be a miss")
	}
}

func TestCorruptEntryIsDiscarded(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	var v map[string]any
	if s.Get("bad", &v) {
		t.Fatal("corrupt entry should be a miss")
	}
	if s.Has("bad") {
		t.Fatal("corrupt entry should be deleted, not repaired")
	}
}

func TestRenameLeavesSingleEntry(t *testing.T) {
	s := testStore(t)

	s.Set("local-key", map[string]string{"a": "b"})
	s.Rename("local-key", "backend-id")

	if s.Has("local-key") {
		t.Fatal("old key still present after rename")
	}
	var v map[string]string
	if !s.Get("backend-id", &v) || v["a"] != "b" {
		t.Fatalf("renamed entry unreadable: %v", v)
	}
}

func TestSanitizeKeys(t *testing.T) {
	s := testStore(t)
	s.Set("gs://bucket/file name", 1)
	var v int
	if !s.Get("gs://bucket/file name", &v) || v != 1 {
		t.Fatal("sanitized key round trip failed")
	}
}
