// Package inventory is the read-only Inventory Store: a lookup from
// device serial to its static inventory record, loaded once at startup
// (or on manual refresh) and never mutated by the core (spec §4.2).
package inventory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
)

// ErrMissingMgmtIP is returned by Lookup when a device record exists but
// has no management IP, which spec §4.2 treats as a fatal lookup error
// for any job touching that device.
var ErrMissingMgmtIP = errors.New("inventory: device has no management IP")

// ErrNotFound is returned by Lookup when the serial is absent.
var ErrNotFound = errors.New("inventory: device not found")

// Store is the Inventory Store.
type Store struct {
	path string

	mu      sync.RWMutex
	doc     model.InventoryDocument
}

// Load reads devices/inventory.json from path.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the inventory document from disk, for manual refresh.
func (s *Store) Reload() error {
	var doc model.InventoryDocument
	if err := fsstore.ReadJSON(s.path, &doc); err != nil {
		if errors.Is(err, fsstore.ErrNotFound) {
			doc = model.InventoryDocument{Devices: map[string]model.Device{}}
		} else {
			return fmt.Errorf("inventory: loading %s: %w", s.path, err)
		}
	}
	if doc.Devices == nil {
		doc.Devices = map[string]model.Device{}
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Lookup resolves a serial to its Device record. It returns
// ErrMissingMgmtIP if the record exists but has no management IP, since
// no job touching that device can proceed without one.
func (s *Store) Lookup(serial string) (model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dev, ok := s.doc.Devices[serial]
	if !ok {
		return model.Device{}, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	if dev.MgmtIP == "" {
		return model.Device{}, fmt.Errorf("%w: %s", ErrMissingMgmtIP, serial)
	}
	return dev, nil
}

// Exists reports whether serial resolves, without the management-IP check
// Lookup performs; used by admission checks that only need to know the
// serial is a real device.
func (s *Store) Exists(serial string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.doc.Devices[serial]
	return ok
}

// DeviceCount reports the number of loaded devices.
func (s *Store) DeviceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.Devices)
}

// All returns a snapshot copy of every loaded device.
func (s *Store) All() []model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Device, 0, len(s.doc.Devices))
	for _, d := range s.doc.Devices {
		out = append(out, d)
	}
	return out
}
