// Package metrics provides Prometheus metrics collection for the naming
// server.
//
// All metrics are optional. If InitRegistry is never called, constructors
// return no-op implementations with zero overhead, so the server can run
// with or without metrics collection enabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. It must be called
// before creating metrics instances; calling it more than once is harmless.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
