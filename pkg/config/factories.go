package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/corfid/namingd/pkg/storage"
)

// CreateCommandClient builds the outbound storage command client from the
// free-form client option map. Unknown keys are rejected so typos in the
// configuration file fail loudly instead of silently running on defaults.
func CreateCommandClient(cfg *StorageConfig) (*storage.CommandClient, error) {
	clientCfg := storage.DefaultClientConfig()

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &clientCfg,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("build storage client decoder: %w", err)
	}
	if err := decoder.Decode(cfg.Client); err != nil {
		return nil, fmt.Errorf("decode storage.client options: %w", err)
	}

	if clientCfg.DialTimeout <= 0 || clientCfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("storage.client timeouts must be positive")
	}

	return storage.NewCommandClient(clientCfg), nil
}
