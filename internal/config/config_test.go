package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Fatalf("default interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.Feed.URL != "https://polkachu.com/api/v2/chain_upgrades" {
		t.Fatalf("default feed url = %s", cfg.Feed.URL)
	}
	if !cfg.Alerting.NotifyChanges || cfg.Alerting.RearmOnPostpone {
		t.Fatalf("unexpected alerting defaults: %+v", cfg.Alerting)
	}
	if len(cfg.Networks.AllowList) != 0 {
		t.Fatalf("allow list should default to empty, got %v", cfg.Networks.AllowList)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
feed:
  request_timeout: 3s
networks:
  allow_list: [cosmos, osmosis]
scheduler:
  interval: 5m
alerting:
  rearm_on_postpone: true
telegram:
  bot_token: abc
chains:
  rpc:
    evmos: http://localhost:8545
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Feed.RequestTimeout != 3*time.Second {
		t.Fatalf("request timeout = %s", cfg.Feed.RequestTimeout)
	}
	if len(cfg.Networks.AllowList) != 2 || cfg.Networks.AllowList[1] != "osmosis" {
		t.Fatalf("allow list = %v", cfg.Networks.AllowList)
	}
	if !cfg.Alerting.RearmOnPostpone {
		t.Fatal("rearm_on_postpone should be true")
	}
	if cfg.Chains.RPC["evmos"] != "http://localhost:8545" {
		t.Fatalf("chains.rpc = %v", cfg.Chains.RPC)
	}
	if err := cfg.ValidateTransport(); err != nil {
		t.Fatalf("token configured, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Feed:      FeedConfig{URL: "http://feed", RequestTimeout: time.Second},
		Scheduler: SchedulerConfig{Interval: time.Minute},
		Storage:   StorageConfig{Driver: "file"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	cronOnly := base
	cronOnly.Scheduler = SchedulerConfig{Cron: "*/5 * * * *"}
	if err := cronOnly.Validate(); err != nil {
		t.Fatalf("cron without interval should validate: %v", err)
	}

	pg := base
	pg.Storage.Driver = "postgres"
	if err := pg.Validate(); err == nil {
		t.Fatal("postgres without dsn should fail")
	}

	bad := base
	bad.Storage.Driver = "redis"
	if err := bad.Validate(); err == nil {
		t.Fatal("unknown driver should fail")
	}

	if err := base.ValidateTransport(); !errors.Is(err, ErrMissingBotToken) {
		t.Fatalf("missing token should be fatal, got %v", err)
	}
}
