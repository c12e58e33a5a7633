package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file and unmarshals it into the specified type.
// T must be a struct type that can be unmarshaled from YAML.
func LoadConfig[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// LoadClientConfig reads a request client configuration, applies defaults and
// parses its endpoint.
func LoadClientConfig(path string) (*Client, error) {
	cfg, err := LoadConfig[Client](path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWorkerConfig reads a worker configuration, applies defaults and parses
// its endpoint.
func LoadWorkerConfig(path string) (*Worker, error) {
	logger := log.With().Str("com", "config-loader").Logger()

	cfg, err := LoadConfig[Worker](path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("worker configuration validation failed: %w", err)
	}

	logger.Info().
		Str("endpoint", cfg.Endpoint.String()).
		Dur("heartbeat_interval", cfg.HeartbeatInterval).
		Dur("reconnect_delay", cfg.ReconnectDelay).
		Msg("loaded worker configuration")

	return cfg, nil
}

// LoadBrokerConfig reads a broker configuration, applies defaults and removes
// duplicated vhosts.
func LoadBrokerConfig(path string) (*Broker, error) {
	logger := log.With().Str("com", "config-loader").Logger()

	cfg, err := LoadConfig[Broker](path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if cfg.DeduplicateVhosts() {
		logger.Warn().Msg("duplicate vhost paths detected and removed from configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("broker configuration validation failed: %w", err)
	}

	logger.Info().Int("vhost_count", len(cfg.Vhosts)).Msg("loaded broker configuration")

	return cfg, nil
}
