package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultConfigAndLayout(t *testing.T) {
	workDir := t.TempDir()
	cfg, err := Load(workDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers.Max != 5 {
		t.Fatalf("got Workers.Max=%d, want 5", cfg.Workers.Max)
	}

	if _, err := os.Stat(configFilePath(workDir)); err != nil {
		t.Fatalf("expected config.json to be written: %v", err)
	}
	for _, d := range AllDirs {
		if _, err := os.Stat(filepath.Join(workDir, d)); err != nil {
			t.Fatalf("expected directory %s: %v", d, err)
		}
	}
}

func TestLoadReadsPersistedConfig(t *testing.T) {
	workDir := t.TempDir()
	first, err := Load(workDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	first.Workers.Max = 17
	if err := Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second, err := Load(workDir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if second.Workers.Max != 17 {
		t.Fatalf("got Workers.Max=%d, want 17", second.Workers.Max)
	}
}

func TestConfigPathHelpers(t *testing.T) {
	cfg := Default("/opt/panos-upgrade")
	cases := map[string]string{
		cfg.InventoryPath():          "/opt/panos-upgrade/devices/inventory.json",
		cfg.UpgradePathsPath():       "/opt/panos-upgrade/config/upgrade_paths.json",
		cfg.VersionHashesPath():      "/opt/panos-upgrade/config/version_hashes.json",
		cfg.DaemonStatusPath():       "/opt/panos-upgrade/status/daemon.json",
		cfg.WorkersStatusPath():      "/opt/panos-upgrade/status/workers.json",
		cfg.DeviceStatusPath("001"):  "/opt/panos-upgrade/status/devices/001.json",
		cfg.QueueDir("pending"):      "/opt/panos-upgrade/queue/pending",
		cfg.CommandsIncomingDir():    "/opt/panos-upgrade/commands/incoming",
		cfg.ValidationPreDir():       "/opt/panos-upgrade/validation/pre_flight",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
