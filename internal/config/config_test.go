package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("unexpected driver: %s", cfg.Database.Driver)
	}
	if cfg.Voucher.LockThreshold != 1 {
		t.Fatalf("unexpected lock threshold: %d", cfg.Voucher.LockThreshold)
	}
	if cfg.Voucher.HoldDuration() != 15*time.Minute {
		t.Fatalf("unexpected hold duration: %s", cfg.Voucher.HoldDuration())
	}
	if cfg.Redis.Enabled || cfg.Queue.Enabled {
		t.Fatalf("redis and queue should be disabled by default")
	}
}

func TestLoadFileReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := []byte(`
server:
  mode: release
database:
  driver: postgres
  dsn: postgres://localhost/voucher
voucher:
  lock_threshold: 5
  default_hold_minutes: 30
  timezone: Asia/Shanghai
  cache_ttl_seconds: 0
  sweep_interval_seconds: 10
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Server.Mode != "release" || cfg.Database.Driver != "postgres" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Voucher.LockThreshold != 5 {
		t.Fatalf("unexpected lock threshold: %d", cfg.Voucher.LockThreshold)
	}
	if cfg.Voucher.HoldDuration() != 30*time.Minute {
		t.Fatalf("unexpected hold duration: %s", cfg.Voucher.HoldDuration())
	}
	if cfg.Voucher.CacheTTL() != 0 {
		t.Fatalf("cache ttl should be disabled: %s", cfg.Voucher.CacheTTL())
	}
	if cfg.Voucher.SweepInterval() != 10*time.Second {
		t.Fatalf("unexpected sweep interval: %s", cfg.Voucher.SweepInterval())
	}
	loc, err := cfg.Voucher.Location()
	if err != nil {
		t.Fatalf("load location failed: %v", err)
	}
	if loc.String() != "Asia/Shanghai" {
		t.Fatalf("unexpected location: %s", loc)
	}
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("VOUCHER_LOCK_THRESHOLD", "3")
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if cfg.Voucher.LockThreshold != 3 {
		t.Fatalf("env override not applied: %d", cfg.Voucher.LockThreshold)
	}
}

func TestVoucherConfigInvalidTimezone(t *testing.T) {
	cfg := VoucherConfig{Timezone: "Mars/Olympus"}
	if _, err := cfg.Location(); err == nil {
		t.Fatalf("expected invalid timezone error")
	}
}
