// Package config loads, defaults, and validates the naming server
// configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (NAMINGD_*), for keys that the configuration
//     file also sets; a variable for a key absent from the file is not read
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete naming server configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the listener and connection settings.
	Server ServerConfig `mapstructure:"server"`

	// Storage configures the outbound side: directive calls to storage
	// nodes. The client section is a free-form map decoded by the storage
	// client factory.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics toggles Prometheus metrics collection.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format selects the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output is where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains the listener and connection settings.
type ServerConfig struct {
	// BindAddress is the local address both listeners bind to. Empty means
	// all interfaces.
	BindAddress string `mapstructure:"bind_address"`

	// ServicePort serves the client-facing naming service program.
	ServicePort uint16 `mapstructure:"service_port" validate:"required,min=1"`

	// RegistrationPort serves the storage-node-facing registration program.
	RegistrationPort uint16 `mapstructure:"registration_port" validate:"required,min=1"`

	// MaxConnections caps concurrent client connections. Zero is unlimited.
	MaxConnections uint `mapstructure:"max_connections"`

	// ReadTimeout bounds reading one RPC request from a connection.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`

	// WriteTimeout bounds writing one RPC reply.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"required,gt=0"`

	// IdleTimeout bounds the gap between requests on one connection.
	// LOCK waits are exempt: a waiter may block indefinitely.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0"`

	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// RateLimit bounds per-connection request rates.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the per-connection token bucket. Zero values
// disable limiting.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second"`
	Burst             uint `mapstructure:"burst"`
}

// StorageConfig configures the outbound storage-node side.
type StorageConfig struct {
	// Client holds the options of the outbound command client, decoded by
	// the factory in this package.
	Client map[string]any `mapstructure:"client"`
}

// MetricsConfig toggles metrics collection.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load loads configuration from file, environment, and defaults. An empty
// configPath falls back to the default search locations; a missing file is
// not an error, the defaults simply apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("NAMINGD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "namingd"))
	}
	v.AddConfigPath("/etc/namingd")
}

func readConfigFile(v *viper.Viper, configPath string) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	// A missing file means defaults; anything else is a real failure.
	if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
		return nil
	}
	if configPath != "" {
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			return nil
		}
	}
	return fmt.Errorf("read configuration file: %w", err)
}
