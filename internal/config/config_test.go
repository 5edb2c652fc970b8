package config

import (
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "8090" {
		t.Errorf("Expected default port 8090, got %s", cfg.Server.Port)
	}
	if cfg.Sync.Interval != 15*time.Minute {
		t.Errorf("Expected default sync interval 15m, got %v", cfg.Sync.Interval)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Expected default remote timeout 30s, got %v", cfg.Remote.Timeout)
	}
	if cfg.Store.DataDir == "" {
		t.Error("Expected a default data directory")
	}
	if cfg.Network.ProbeURL != cfg.Remote.BaseURL {
		t.Errorf("Expected probe URL to default to remote base, got %s", cfg.Network.ProbeURL)
	}
}

func TestLoad_overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("SYNC_INTERVAL", "1m")
	t.Setenv("SYNC_ENTITY_TYPES", "fields, crops ,sensors")
	t.Setenv("PROBE_URL", "http://probe.local/ping")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != "9999" {
		t.Errorf("Expected port 9999, got %s", cfg.Server.Port)
	}
	if cfg.Sync.Interval != time.Minute {
		t.Errorf("Expected sync interval 1m, got %v", cfg.Sync.Interval)
	}
	want := []string{"fields", "crops", "sensors"}
	if len(cfg.Sync.EntityTypes) != len(want) {
		t.Fatalf("Expected %v, got %v", want, cfg.Sync.EntityTypes)
	}
	for i, w := range want {
		if cfg.Sync.EntityTypes[i] != w {
			t.Errorf("Entity type %d: expected %s, got %s", i, w, cfg.Sync.EntityTypes[i])
		}
	}
	if cfg.Network.ProbeURL != "http://probe.local/ping" {
		t.Errorf("Expected explicit probe URL kept, got %s", cfg.Network.ProbeURL)
	}
}

func TestLoad_invalidDuration(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "often")

	if _, err := Load(); err == nil {
		t.Error("Expected error for malformed duration")
	}
}

func TestServerConfig_addr(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: "8090"}
	if c.Addr() != "0.0.0.0:8090" {
		t.Errorf("Unexpected addr %s", c.Addr())
	}
}
