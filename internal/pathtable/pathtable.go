// Package pathtable is the read-only Upgrade-Path Table: a total function
// from a source version string to a finite ordered sequence of target
// versions (spec §4.3). A lookup miss means "skip device", not an error.
package pathtable

import (
	"fmt"
	"sync"

	"github.com/natej/panos-upgrade/internal/fsstore"
)

// Table is the Upgrade-Path Table.
type Table struct {
	path string

	mu   sync.RWMutex
	data map[string][]string
}

// Load reads config/upgrade_paths.json from path: a single mapping from
// source version string to a non-empty list of target version strings.
func Load(path string) (*Table, error) {
	t := &Table{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the upgrade-path document from disk.
func (t *Table) Reload() error {
	var data map[string][]string
	if err := fsstore.ReadJSON(t.path, &data); err != nil {
		if err == fsstore.ErrNotFound {
			data = map[string][]string{}
		} else {
			return fmt.Errorf("pathtable: loading %s: %w", t.path, err)
		}
	}
	t.mu.Lock()
	t.data = data
	t.mu.Unlock()
	return nil
}

// Plan returns the ordered sequence of versions to install starting from
// fromVersion, and ok=false if fromVersion is not in the table ("skip,
// not in table"). The target of the device is always sequence[len-1].
func (t *Table) Plan(fromVersion string) (sequence []string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seq, found := t.data[fromVersion]
	if !found || len(seq) == 0 {
		return nil, false
	}
	out := make([]string, len(seq))
	copy(out, seq)
	return out, true
}
