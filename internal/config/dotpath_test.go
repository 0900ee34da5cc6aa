package config

import "testing"

func TestGetNestedScalar(t *testing.T) {
	cfg := Default(t.TempDir())
	got, err := Get(cfg, "validation.min_disk_gb")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.(float64) != 5.0 {
		t.Fatalf("got %v, want 5.0", got)
	}
}

func TestGetUnknownKeyErrors(t *testing.T) {
	cfg := Default(t.TempDir())
	if _, err := Get(cfg, "validation.not_a_real_field"); err == nil {
		t.Fatalf("expected an error for an unknown key")
	}
}

func TestSetScalarPersists(t *testing.T) {
	workDir := t.TempDir()
	cfg, err := Load(workDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := Set(cfg, "validation.min_disk_gb", "12.5"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if cfg.Validation.MinDiskGB != 12.5 {
		t.Fatalf("got %v, want 12.5", cfg.Validation.MinDiskGB)
	}

	reloaded, err := Load(workDir)
	if err != nil {
		t.Fatalf("Load reloaded: %v", err)
	}
	if reloaded.Validation.MinDiskGB != 12.5 {
		t.Fatalf("got %v after reload, want 12.5", reloaded.Validation.MinDiskGB)
	}
}

func TestSetBooleanAndStringValues(t *testing.T) {
	cfg := Default(t.TempDir())

	if err := Set(cfg, "validation.verify_hashes", "true"); err != nil {
		t.Fatalf("Set bool: %v", err)
	}
	if !cfg.Validation.VerifyHashes {
		t.Fatalf("expected verify_hashes=true")
	}

	if err := Set(cfg, "logging.level", "debug"); err != nil {
		t.Fatalf("Set string: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("got %q, want debug", cfg.Logging.Level)
	}
}

func TestSetUnknownSectionErrors(t *testing.T) {
	cfg := Default(t.TempDir())
	if err := Set(cfg, "not_a_section.anything", "1"); err == nil {
		t.Fatalf("expected an error for an unknown section")
	}
}
