package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

//nolint:gocyclo
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `server:
  addr: ":8085"
optimizer:
  budget_seconds: 10
  iteration_cap: 500
travel:
  provider:
    type: "matrix"
    conf:
      url: "http://matrix.local/v1"
  timeout_seconds: 3
  fallback_speed_kmh: 50
weather:
  enabled: true
  url: "http://weather.local/v1"
location:
  max_age_seconds: 120
runstore:
  backend: "sqlite"
  path: "runs.db"
  retention_days: 14
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "fieldops"
  username: "user"
  password: "pass"
  location_topic: "fieldops/technician/+/location"
  use_tls: false
metrics:
  sinks:
    - type: "nop"
observability:
  metrics_addr: ":9105"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"server.addr", cfg.Server.Addr, ":8085"},
		{"optimizer.budget", cfg.Optimizer.Options().Budget, 10 * time.Second},
		{"optimizer.iteration_cap", cfg.Optimizer.Options().IterationCap, 500},
		{"travel.provider", cfg.Travel.Provider.Type, "matrix"},
		{"travel.provider.url", cfg.Travel.Provider.Conf["url"], "http://matrix.local/v1"},
		{"travel.timeout", cfg.Travel.Timeout(), 3 * time.Second},
		{"travel.fallback_speed", cfg.Travel.FallbackSpeed(), 50.0},
		{"weather.enabled", cfg.Weather.Enabled, true},
		{"location.max_age", cfg.Location.MaxAge(), 2 * time.Minute},
		{"runstore.backend", cfg.RunStore.Backend, "sqlite"},
		{"runstore.retention", cfg.RunStore.Retention(), 14 * 24 * time.Hour},
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.client_id", cfg.MQTT.ClientID, "fieldops"},
		{"mqtt.use_tls", cfg.MQTT.UseTLS, false},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"observability.metrics_addr", cfg.Observability.MetricsAddr, ":9105"},
		{"logging.level_default", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "server:\n  addr: \":8080\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("FIELDOPS_SERVER__ADDR", ":9000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("expected env override, got %s", cfg.Server.Addr)
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "runstore:\n  backend: \"postgres\"\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRejectsWeatherWithoutURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "weather:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for weather without url")
	}
}

func TestRunStoreDefaults(t *testing.T) {
	cfg := RunStoreConfig{}
	cfg.SetDefaults()
	if cfg.Backend != "memory" {
		t.Fatalf("expected memory backend, got %s", cfg.Backend)
	}
	if cfg.Retention() != 30*24*time.Hour {
		t.Fatalf("expected 30 day retention, got %v", cfg.Retention())
	}
}

func TestLocationDefaults(t *testing.T) {
	cfg := LocationConfig{}
	if cfg.MaxAge() != 5*time.Minute {
		t.Fatalf("expected 5m staleness bound, got %v", cfg.MaxAge())
	}
}
