// Package fsstore implements the write-temp-then-rename protocol that
// backs every shared, file-system-based artifact the daemon writes:
// job descriptors, status snapshots, validation artifacts, and command
// sidecars. It is the one primitive every other component in this module
// builds on, the way the Atomic File Store is described in spec §4.1.
package fsstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by ReadJSON when the target file does not exist.
// Callers are expected to treat this as "not yet produced", never as a
// hard error.
var ErrNotFound = errors.New("fsstore: not found")

// WriteJSON marshals v and atomically replaces path with the result: it
// writes a dotted temp file in the same directory, fsyncs it, then renames
// it onto path. Readers never observe a torn write.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal %s: %w", path, err)
	}
	return WriteFile(path, data)
}

// WriteFile atomically replaces path with data using the same
// write-temp-then-rename protocol as WriteJSON.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", dir, err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("fsstore: create temp %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsstore: write temp %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("fsstore: fsync temp %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsstore: close temp %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("fsstore: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// ReadJSON reads and unmarshals path into v. It returns ErrNotFound,
// never a bare os.IsNotExist, when the file is absent.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("fsstore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("fsstore: unmarshal %s: %w", path, err)
	}
	return nil
}

// ReadJSONOrDefault reads path into v, leaving v at its zero value and
// returning nil if the file does not exist.
func ReadJSONOrDefault(path string, v any) error {
	err := ReadJSON(path, v)
	if errors.Is(err, ErrNotFound) {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && !rv.IsNil() {
			rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		}
		return nil
	}
	return err
}

// AppendJSONLine appends one JSON-encoded line to path, creating the file
// and its directory if needed. Unlike WriteJSON this is not a full-file
// atomic replace: a reader may observe the file mid-write, and each call is
// a single write(2) of a complete line.
func AppendJSONLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", filepath.Dir(path), err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fsstore: marshal %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("fsstore: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("fsstore: append %s: %w", path, err)
	}
	return nil
}

// Move renames src to dst, both expected on the same file system, as a
// single atomic step. If dst's parent directory does not exist yet it is
// created first.
func Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("fsstore: mkdir %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("fsstore: move %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Entry describes one file found by ListJSONFiles, carrying the mtime used
// to order intake scans (spec §4.9/§4.10: mtime-ascending, tie-broken by
// name).
type Entry struct {
	Path    string
	Name    string
	ModTime time.Time
}

// ListJSONFiles lists *.json files directly under dir, ignoring dotfiles
// (partial temp files always start with '.') and "*.error.json" rejection
// sidecars, sorted mtime-ascending with name as the tiebreak.
func ListJSONFiles(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: readdir %s: %w", dir, err)
	}

	var out []Entry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) == 0 || name[0] == '.' {
			continue
		}
		if filepath.Ext(name) != ".json" {
			continue
		}
		if strings.HasSuffix(name, ".error.json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(dir, name),
			Name:    name,
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.Before(out[j].ModTime)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// EnsureDirs creates every directory in dirs (each relative to root) if it
// does not already exist.
func EnsureDirs(root string, dirs []string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return fmt.Errorf("fsstore: mkdir %s: %w", d, err)
		}
	}
	return nil
}
