package inventory

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
)

func writeInventory(t *testing.T, path string, devices map[string]model.Device) {
	t.Helper()
	doc := model.InventoryDocument{Devices: devices, DeviceCount: len(devices)}
	if err := fsstore.WriteJSON(path, doc); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func TestLoadMissingFileIsEmptyStore(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "inventory.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.DeviceCount() != 0 {
		t.Fatalf("got %d devices, want 0", store.DeviceCount())
	}
}

func TestLookupFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{
		"SN001": {Serial: "SN001", Hostname: "fw-a", MgmtIP: "10.0.0.1", CurrentVersion: "10.1.0"},
	})

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	dev, err := store.Lookup("SN001")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if dev.Hostname != "fw-a" {
		t.Fatalf("got %+v", dev)
	}
}

func TestLookupNotFound(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "inventory.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = store.Lookup("SN999")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLookupMissingMgmtIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{
		"SN002": {Serial: "SN002", Hostname: "fw-b"},
	})

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = store.Lookup("SN002")
	if !errors.Is(err, ErrMissingMgmtIP) {
		t.Fatalf("got %v, want ErrMissingMgmtIP", err)
	}
}

func TestExistsDoesNotCheckMgmtIP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{
		"SN003": {Serial: "SN003"},
	})

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !store.Exists("SN003") {
		t.Fatalf("expected SN003 to exist")
	}
	if store.Exists("SN404") {
		t.Fatalf("did not expect SN404 to exist")
	}
}

func TestReloadPicksUpNewDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.json")
	writeInventory(t, path, map[string]model.Device{"SN001": {Serial: "SN001"}})

	store, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	writeInventory(t, path, map[string]model.Device{
		"SN001": {Serial: "SN001"},
		"SN002": {Serial: "SN002"},
	})
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if store.DeviceCount() != 2 {
		t.Fatalf("got %d devices, want 2", store.DeviceCount())
	}
}
