package config

import (
	"strings"
	"time"
)

// Default ports of the two naming server programs. Clients and storage
// nodes reach the server at these well-known ports unless reconfigured.
const (
	DefaultServicePort      = 6000
	DefaultRegistrationPort = 6001
)

// ApplyDefaults fills unspecified configuration fields with their defaults.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ServicePort == 0 {
		cfg.ServicePort = DefaultServicePort
	}
	if cfg.RegistrationPort == 0 {
		cfg.RegistrationPort = DefaultRegistrationPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Client == nil {
		cfg.Client = make(map[string]any)
	}
}
