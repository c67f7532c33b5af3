package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("default configuration should validate: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "SHOUT" },
			wantMsg: "oneof",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantMsg: "oneof",
		},
		{
			name:    "zero service port",
			mutate:  func(c *Config) { c.Server.ServicePort = 0 },
			wantMsg: "ServicePort",
		},
		{
			name: "colliding ports",
			mutate: func(c *Config) {
				c.Server.ServicePort = 6000
				c.Server.RegistrationPort = 6000
			},
			wantMsg: "must differ",
		},
		{
			name:    "negative read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -1 },
			wantMsg: "gt",
		},
		{
			name: "rate limit without burst",
			mutate: func(c *Config) {
				c.Server.RateLimit.RequestsPerSecond = 100
				c.Server.RateLimit.Burst = 0
			},
			wantMsg: "burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("Validate accepted an invalid configuration")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "error"
	cfg.Server.ServicePort = 9000
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("level = %q, want ERROR (normalized, not replaced)", cfg.Logging.Level)
	}
	if cfg.Server.ServicePort != 9000 {
		t.Errorf("service port = %d, want 9000", cfg.Server.ServicePort)
	}
	if cfg.Server.RegistrationPort != DefaultRegistrationPort {
		t.Errorf("registration port = %d, want default", cfg.Server.RegistrationPort)
	}
}
