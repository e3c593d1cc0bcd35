package config

import (
	"os"
	"path/filepath"
	"strings"
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

const minimalConfig = `
database:
  user: hub
  password: hub
  database: hub
rabbitmq:
  user: guest
  password: guest
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Database.Host != "localhost" || cfg.Database.Port != 5432 {
		t.Errorf("database defaults wrong: %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.Dispatch.Port != 3000 {
		t.Errorf("dispatch port default wrong: %d", cfg.Dispatch.Port)
	}
	if cfg.Dispatch.URL != "http://localhost:3000" {
		t.Errorf("dispatch url should derive from the port, got %s", cfg.Dispatch.URL)
	}
	if cfg.JWT.SecretKey == "" {
		t.Error("a secret key should be generated when absent")
	}
	if cfg.AlertInterval() != 1500*time.Millisecond {
		t.Errorf("alert interval default wrong: %s", cfg.AlertInterval())
	}
	if cfg.AlertTimeout() != 45*time.Second {
		t.Errorf("alert timeout default wrong: %s", cfg.AlertTimeout())
	}
	if cfg.SampleInterval() != 5*time.Second {
		t.Errorf("sample interval default wrong: %s", cfg.SampleInterval())
	}
	if cfg.Navigation.MinMoveMeters != 15 {
		t.Errorf("min move default wrong: %f", cfg.Navigation.MinMoveMeters)
	}
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, `
database:
  user: hub
rabbitmq:
  user: guest
  password: guest
`))
	if err == nil {
		t.Fatal("missing database password should fail validation")
	}
	if !strings.Contains(err.Error(), "database.password") {
		t.Errorf("error should name the missing field, got %v", err)
	}
}

func TestLoadRejectsBadRanges(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, minimalConfig+`
alert:
  interval_ms: 10
channel:
  reconnect_min_ms: 5000
  reconnect_max_ms: 1000
`))
	if err == nil {
		t.Fatal("out-of-range values should fail validation")
	}
	msg := err.Error()
	if !strings.Contains(msg, "alert.interval_ms") {
		t.Errorf("error should mention alert.interval_ms, got %v", err)
	}
	if !strings.Contains(msg, "reconnect_max_ms") {
		t.Errorf("error should mention the backoff ordering, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file should error")
	}
}
