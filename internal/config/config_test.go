package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("server.port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/weather.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.Sandbox.Timeout != 500*time.Millisecond {
		t.Errorf("sandbox.timeout = %v, want 500ms", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.MaxRows != 999 {
		t.Errorf("sandbox.max_rows = %d, want 999", cfg.Sandbox.MaxRows)
	}
	if cfg.Trends.MaxPoints != 600 {
		t.Errorf("trends.max_points = %d, want 600", cfg.Trends.MaxPoints)
	}
	if cfg.MQTT.Topic() != "weather_station/json" {
		t.Errorf("mqtt topic = %q", cfg.MQTT.Topic())
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without a host")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/station.db
mqtt:
  base_topic: station/
sandbox:
  timeout: 750ms
redis:
  host: cache.local
`)
	t.Setenv("WEATHERHUB_SANDBOX__MAX_ROWS", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/tmp/station.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.MQTT.Topic() != "station/json" {
		t.Errorf("mqtt topic = %q, want station/json", cfg.MQTT.Topic())
	}
	if cfg.Sandbox.Timeout != 750*time.Millisecond {
		t.Errorf("sandbox.timeout = %v", cfg.Sandbox.Timeout)
	}
	if cfg.Sandbox.MaxRows != 9999 {
		t.Errorf("sandbox.max_rows = %d, want env override 9999", cfg.Sandbox.MaxRows)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Addr() != "cache.local:6379" {
		t.Errorf("redis addr = %q", cfg.Redis.Addr())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "sandbox:\n  max_rows: 0\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for zero max_rows")
	}
}
