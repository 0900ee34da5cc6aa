// Package hashdb is the optional SHA-256 download-verification database
// described in SPEC_FULL.md §C.1, grounded on
// original_source/hash_manager.py. It is consulted by the Upgrade Engine's
// download phase only when config.validation.verify_hashes is enabled.
package hashdb

import (
	"fmt"
	"strings"
	"sync"

	"github.com/natej/panos-upgrade/internal/fsstore"
)

// VersionInfo is one entry of config/version_hashes.json.
type VersionInfo struct {
	SHA256      string `json:"sha256"`
	Filename    string `json:"filename,omitempty"`
	SizeMB      int    `json:"size_mb,omitempty"`
	ReleaseDate string `json:"release_date,omitempty"`
}

// ErrMismatch reports a hash that does not match the expected value for a
// version: the download may be corrupted or tampered with.
type ErrMismatch struct {
	Version  string
	Expected string
	Actual   string
}

func (e *ErrMismatch) Error() string {
	return fmt.Sprintf("hashdb: hash mismatch for version %s: expected %.16s..., actual %.16s...",
		e.Version, e.Expected, e.Actual)
}

// DB is the version-hash database.
type DB struct {
	path string

	mu     sync.RWMutex
	hashes map[string]VersionInfo
}

// Load reads config/version_hashes.json from path. A missing file is not
// an error: it simply means no version has a known hash yet.
func Load(path string) (*DB, error) {
	d := &DB{path: path}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the hash database from disk.
func (d *DB) Reload() error {
	var hashes map[string]VersionInfo
	if err := fsstore.ReadJSON(d.path, &hashes); err != nil {
		if err == fsstore.ErrNotFound {
			hashes = map[string]VersionInfo{}
		} else {
			return fmt.Errorf("hashdb: loading %s: %w", d.path, err)
		}
	}
	d.mu.Lock()
	d.hashes = hashes
	d.mu.Unlock()
	return nil
}

// Expected returns the expected SHA-256 for version, and ok=false if no
// hash is on file for it.
func (d *DB) Expected(version string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	info, ok := d.hashes[version]
	if !ok || info.SHA256 == "" {
		return "", false
	}
	return info.SHA256, true
}

// Verify checks actualHash against the expected hash for version. If no
// expected hash is on file, it returns nil (non-strict: a missing entry
// only produces a warning upstream, never blocks the download). A
// mismatch returns *ErrMismatch.
func (d *DB) Verify(version, actualHash string) error {
	expected, ok := d.Expected(version)
	if !ok {
		return nil
	}
	if !strings.EqualFold(strings.TrimSpace(expected), strings.TrimSpace(actualHash)) {
		return &ErrMismatch{Version: version, Expected: expected, Actual: actualHash}
	}
	return nil
}

// Add records or updates the hash for a version and persists the database.
func (d *DB) Add(version string, info VersionInfo) error {
	d.mu.Lock()
	if d.hashes == nil {
		d.hashes = map[string]VersionInfo{}
	}
	d.hashes[version] = info
	snapshot := make(map[string]VersionInfo, len(d.hashes))
	for k, v := range d.hashes {
		snapshot[k] = v
	}
	d.mu.Unlock()

	return fsstore.WriteJSON(d.path, snapshot)
}
