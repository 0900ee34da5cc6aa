package hashdb

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsEmptyDB(t *testing.T) {
	db, err := Load(filepath.Join(t.TempDir(), "version_hashes.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := db.Expected("11.0.1"); ok {
		t.Fatalf("expected no hash on file")
	}
}

func TestVerifyWithNoEntryIsNonFatal(t *testing.T) {
	db, err := Load(filepath.Join(t.TempDir(), "version_hashes.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := db.Verify("11.0.1", "deadbeef"); err != nil {
		t.Fatalf("Verify with no entry on file should be nil, got %v", err)
	}
}

func TestAddThenVerifyMatch(t *testing.T) {
	db, err := Load(filepath.Join(t.TempDir(), "version_hashes.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := db.Add("11.0.1", VersionInfo{SHA256: "ABCDEF0123456789"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := db.Verify("11.0.1", "abcdef0123456789"); err != nil {
		t.Fatalf("Verify should be case-insensitive match, got %v", err)
	}
}

func TestVerifyMismatchReturnsErrMismatch(t *testing.T) {
	db, err := Load(filepath.Join(t.TempDir(), "version_hashes.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := db.Add("11.0.1", VersionInfo{SHA256: "aaaa"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err = db.Verify("11.0.1", "bbbb")
	var mismatch *ErrMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("got %v, want *ErrMismatch", err)
	}
	if mismatch.Version != "11.0.1" {
		t.Fatalf("got version %q", mismatch.Version)
	}
}

func TestAddPersistsAcrossLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version_hashes.json")
	db, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := db.Add("11.0.1", VersionInfo{SHA256: "cafef00d", Filename: "PanOS_11.0.1.tgz"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load reloaded: %v", err)
	}
	hash, ok := reloaded.Expected("11.0.1")
	if !ok || hash != "cafef00d" {
		t.Fatalf("got %q, %v", hash, ok)
	}
}
