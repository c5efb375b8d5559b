package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestLoadYAMLOverridesDefaults verifies that file values replace defaults and missing keys keep them.
func TestLoadYAMLOverridesDefaults(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "aguasur-config-test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "aguasur.yaml")
	content := `
db_path: /var/lib/aguasur/data.db
cron_spec: "*/30 * * * *"
providers:
  - name: Pipas del Sur
    tiers:
      - batch_liters: 4000
        cost_per_liter: 0.05
engine:
  critical_level_fraction: 0.25
  urgent_keywords: ["socorro"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DBPath != "/var/lib/aguasur/data.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.CronSpec != "*/30 * * * *" {
		t.Errorf("CronSpec = %q", cfg.CronSpec)
	}
	if cfg.Engine.CriticalLevelFraction != 0.25 {
		t.Errorf("CriticalLevelFraction = %v, want 0.25", cfg.Engine.CriticalLevelFraction)
	}
	if cfg.Engine.BaselinePerCapitaLitersPerDay != 50 {
		t.Errorf("BaselinePerCapitaLitersPerDay = %v, want default 50", cfg.Engine.BaselinePerCapitaLitersPerDay)
	}
	if len(cfg.Engine.UrgentKeywords) != 1 || cfg.Engine.UrgentKeywords[0] != "socorro" {
		t.Errorf("UrgentKeywords = %v", cfg.Engine.UrgentKeywords)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Tiers[0].BatchLiters != 4000 {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AGUASUR_DB_PATH", "/tmp/override.db")
	t.Setenv("AGUASUR_NOTIFY_CHATS", "101, 202")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DBPath != "/tmp/override.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if len(cfg.NotifyChatIDs) != 2 || cfg.NotifyChatIDs[0] != 101 || cfg.NotifyChatIDs[1] != 202 {
		t.Errorf("NotifyChatIDs = %v", cfg.NotifyChatIDs)
	}
}

func TestLoadRejectsBadChatID(t *testing.T) {
	t.Setenv("AGUASUR_NOTIFY_CHATS", "12abc")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed chat id")
	}
}

func TestEngineValidate(t *testing.T) {
	if err := DefaultEngine().Validate(); err != nil {
		t.Fatalf("default engine config should be valid: %v", err)
	}

	cfg := DefaultEngine()
	cfg.CriticalLevelFraction = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero critical fraction")
	}

	cfg = DefaultEngine()
	cfg.LowLevelFraction = 0.1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when low fraction is below critical fraction")
	}
}
