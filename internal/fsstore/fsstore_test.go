package fsstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "thing.json")

	want := doc{Name: "serial-1", Count: 7}
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got doc
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file: %s", e.Name())
		}
	}
}

func TestReadJSONMissingReturnsErrNotFound(t *testing.T) {
	dir := t.TempDir()
	var got doc
	err := ReadJSON(filepath.Join(dir, "absent.json"), &got)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestReadJSONOrDefaultLeavesZeroValue(t *testing.T) {
	dir := t.TempDir()
	got := doc{Name: "should not survive", Count: 99}
	if err := ReadJSONOrDefault(filepath.Join(dir, "absent.json"), &got); err != nil {
		t.Fatalf("ReadJSONOrDefault: %v", err)
	}
	if got != (doc{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestWriteJSONOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thing.json")

	if err := WriteJSON(path, doc{Name: "v1", Count: 1}); err != nil {
		t.Fatalf("WriteJSON v1: %v", err)
	}
	if err := WriteJSON(path, doc{Name: "v2", Count: 2}); err != nil {
		t.Fatalf("WriteJSON v2: %v", err)
	}

	var got doc
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "v2" || got.Count != 2 {
		t.Fatalf("got %+v, want v2/2", got)
	}
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "queue", "pending", "job.json")
	dst := filepath.Join(dir, "queue", "active", "job.json")

	if err := WriteJSON(src, doc{Name: "job"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := Move(src, dst); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected src removed, stat err = %v", err)
	}
	var got doc
	if err := ReadJSON(dst, &got); err != nil {
		t.Fatalf("ReadJSON dst: %v", err)
	}
	if got.Name != "job" {
		t.Fatalf("got %+v", got)
	}
}

func TestListJSONFilesOrdersByModTimeThenName(t *testing.T) {
	dir := t.TempDir()

	write := func(name string, mtime time.Time) {
		p := filepath.Join(dir, name)
		if err := WriteJSON(p, doc{Name: name}); err != nil {
			t.Fatalf("WriteJSON %s: %v", name, err)
		}
		if err := os.Chtimes(p, mtime, mtime); err != nil {
			t.Fatalf("Chtimes %s: %v", name, err)
		}
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	write("c.json", base.Add(2*time.Minute))
	write("a.json", base)
	write("b.json", base)        // same mtime as a.json, tiebreak by name
	write("ignored.txt", base)   // non-JSON, excluded
	os.WriteFile(filepath.Join(dir, ".partial.json"), []byte("{}"), 0o644) // dotfile, excluded

	entries, err := ListJSONFiles(dir)
	if err != nil {
		t.Fatalf("ListJSONFiles: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	names := []string{entries[0].Name, entries[1].Name, entries[2].Name}
	want := []string{"a.json", "b.json", "c.json"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got order %v, want %v", names, want)
		}
	}
}

func TestListJSONFilesExcludesErrorSidecars(t *testing.T) {
	dir := t.TempDir()
	if err := WriteJSON(filepath.Join(dir, "job-1.json"), doc{Name: "job-1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := WriteJSON(filepath.Join(dir, "job-1.error.json"), doc{Name: "job-1-error"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	entries, err := ListJSONFiles(dir)
	if err != nil {
		t.Fatalf("ListJSONFiles: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "job-1.json" {
		t.Fatalf("got %+v, want only job-1.json", entries)
	}
}

func TestListJSONFilesMissingDirReturnsEmpty(t *testing.T) {
	entries, err := ListJSONFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListJSONFiles: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("got %d entries, want 0", len(entries))
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	dirs := []string{"queue/pending", "queue/active", "status"}
	if err := EnsureDirs(root, dirs); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, d := range dirs {
		info, err := os.Stat(filepath.Join(root, d))
		if err != nil {
			t.Fatalf("stat %s: %v", d, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", d)
		}
	}
}

func TestAppendJSONLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "structured", "20260101.json")

	if err := AppendJSONLine(path, doc{Name: "first"}); err != nil {
		t.Fatalf("AppendJSONLine 1: %v", err)
	}
	if err := AppendJSONLine(path, doc{Name: "second"}); err != nil {
		t.Fatalf("AppendJSONLine 2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("got %d lines, want 2", lines)
	}
}
