package pathtable

import (
	"path/filepath"
	"testing"

	"github.com/natej/panos-upgrade/internal/fsstore"
)

func TestLoadMissingFileIsEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade_paths.json")
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := table.Plan("10.1.0"); ok {
		t.Fatalf("expected no plan from an empty table")
	}
}

func TestPlanReturnsCopyOfSequence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade_paths.json")
	data := map[string][]string{
		"10.1.0": {"10.1.6", "10.2.3", "11.0.1"},
	}
	if err := fsstore.WriteJSON(path, data); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	seq, ok := table.Plan("10.1.0")
	if !ok {
		t.Fatalf("expected a plan from 10.1.0")
	}
	if len(seq) != 3 || seq[2] != "11.0.1" {
		t.Fatalf("got %v", seq)
	}

	seq[0] = "mutated"
	seq2, _ := table.Plan("10.1.0")
	if seq2[0] == "mutated" {
		t.Fatalf("Plan leaked internal slice storage to the caller")
	}
}

func TestPlanMissVersionSkipsNotErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade_paths.json")
	if err := fsstore.WriteJSON(path, map[string][]string{"10.1.0": {"10.2.0"}}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := table.Plan("9.0.0"); ok {
		t.Fatalf("expected no plan for an unknown source version")
	}
}

func TestReloadPicksUpChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upgrade_paths.json")
	if err := fsstore.WriteJSON(path, map[string][]string{"10.1.0": {"10.2.0"}}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := fsstore.WriteJSON(path, map[string][]string{"10.1.0": {"11.0.0"}}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := table.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	seq, ok := table.Plan("10.1.0")
	if !ok || seq[0] != "11.0.0" {
		t.Fatalf("got %v, ok=%v, want [11.0.0]", seq, ok)
	}
}
