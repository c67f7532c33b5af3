package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// writeConfig marshals a config document to a temp file and returns its path.
func writeConfig(t *testing.T, doc map[string]any) string {
	t.Helper()
	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoad_MinimalConfig(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"logging": map[string]any{"level": "DEBUG"},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("level = %q, want DEBUG", cfg.Logging.Level)
	}
	// Defaults fill the rest.
	if cfg.Logging.Format != "text" {
		t.Errorf("default format = %q, want text", cfg.Logging.Format)
	}
	if cfg.Server.ServicePort != DefaultServicePort {
		t.Errorf("default service port = %d, want %d", cfg.Server.ServicePort, DefaultServicePort)
	}
	if cfg.Server.RegistrationPort != DefaultRegistrationPort {
		t.Errorf("default registration port = %d, want %d", cfg.Server.RegistrationPort, DefaultRegistrationPort)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("default shutdown timeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(missing)
	if err != nil {
		t.Fatalf("expected defaults with missing config file, got: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("default level = %q, want INFO", cfg.Logging.Level)
	}
	if cfg.Server.IdleTimeout != 5*time.Minute {
		t.Errorf("default idle timeout = %v, want 5m", cfg.Server.IdleTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"logging": map[string]any{"level": "warn", "format": "json", "output": "stderr"},
		"server": map[string]any{
			"service_port":      7100,
			"registration_port": 7101,
			"read_timeout":      "10s",
			"rate_limit":        map[string]any{"requests_per_second": 500, "burst": 1000},
		},
		"metrics": map[string]any{"enabled": true},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Levels are normalized to uppercase.
	if cfg.Logging.Level != "WARN" {
		t.Errorf("level = %q, want WARN", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Server.ServicePort != 7100 || cfg.Server.RegistrationPort != 7101 {
		t.Errorf("ports = %d/%d, want 7100/7101", cfg.Server.ServicePort, cfg.Server.RegistrationPort)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 500 {
		t.Errorf("rate limit = %d, want 500", cfg.Server.RateLimit.RequestsPerSecond)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics should be enabled")
	}
}

func TestLoad_InvalidLevel(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"logging": map[string]any{"level": "LOUD"},
	})

	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an invalid log level")
	}
}

func TestCreateCommandClient(t *testing.T) {
	cfg := &StorageConfig{Client: map[string]any{
		"dial_timeout": "2s",
		"call_timeout": "5s",
	}}

	client, err := CreateCommandClient(cfg)
	if err != nil {
		t.Fatalf("CreateCommandClient: %v", err)
	}
	if client == nil {
		t.Fatal("CreateCommandClient returned nil")
	}
}

func TestCreateCommandClient_UnknownKey(t *testing.T) {
	cfg := &StorageConfig{Client: map[string]any{
		"dail_timeout": "2s", // typo must fail loudly
	}}

	if _, err := CreateCommandClient(cfg); err == nil {
		t.Fatal("CreateCommandClient accepted an unknown option")
	}
}

func TestCreateCommandClient_Defaults(t *testing.T) {
	client, err := CreateCommandClient(&StorageConfig{Client: map[string]any{}})
	if err != nil {
		t.Fatalf("CreateCommandClient: %v", err)
	}
	if client == nil {
		t.Fatal("CreateCommandClient returned nil")
	}
}
