package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GASLEDGER_CONFIG", "")
	t.Setenv("ENTRY_ID", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Storage.Driver != "file" {
		t.Fatalf("expected file driver default, got %q", cfg.Storage.Driver)
	}
	if cfg.PollInterval != 30*time.Minute {
		t.Fatalf("expected 30m poll interval, got %v", cfg.PollInterval)
	}
	if cfg.ZoneOffsetHours != 8 {
		t.Fatalf("expected +8 zone offset, got %d", cfg.ZoneOffsetHours)
	}
	if cfg.CycleMode != CycleCalendarMonth {
		t.Fatalf("expected calendar month cycle mode, got %q", cfg.CycleMode)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
entries:
  - entry_id: entry-1
    token: tok-1
    payment_no: pay-1
    company_code: c-1
storage:
  driver: postgres
  dsn: postgres://localhost/gasledger
poll_interval: 15m
cycle_mode: description_change
zone_offset_hours: 8
`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GASLEDGER_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Entries) != 1 || cfg.Entries[0].EntryID != "entry-1" {
		t.Fatalf("entries not loaded: %+v", cfg.Entries)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN == "" {
		t.Fatalf("storage not loaded: %+v", cfg.Storage)
	}
	if cfg.PollInterval != 15*time.Minute {
		t.Fatalf("expected 15m poll interval, got %v", cfg.PollInterval)
	}
	if cfg.CycleMode != CycleDescriptionChange {
		t.Fatalf("expected description_change mode, got %q", cfg.CycleMode)
	}
}

func TestLoadConfigSingleEntryFromEnv(t *testing.T) {
	t.Setenv("GASLEDGER_CONFIG", "")
	t.Setenv("ENTRY_ID", "entry-env")
	t.Setenv("ENTRY_TOKEN", "tok-env")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.Entries) != 1 || cfg.Entries[0].EntryID != "entry-env" {
		t.Fatalf("env entry not loaded: %+v", cfg.Entries)
	}
	if cfg.Entries[0].PaymentNo != "entry-env" {
		t.Fatalf("payment_no must default to entry id, got %q", cfg.Entries[0].PaymentNo)
	}
}

func TestLoadConfigRejectsBadDriver(t *testing.T) {
	t.Setenv("GASLEDGER_CONFIG", "")
	t.Setenv("ENTRY_ID", "")
	t.Setenv("STORAGE_DRIVER", "etcd")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestLoadConfigRejectsEntryWithoutPaymentNo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
entries:
  - entry_id: entry-1
`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GASLEDGER_CONFIG", path)

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for entry without payment_no")
	}
}
