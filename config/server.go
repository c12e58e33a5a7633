package config

import (
	"fmt"
	"strings"
	"time"
)

// Broker configures the development broker.
type Broker struct {
	Listen             string        `yaml:"listen"`
	Vhosts             []Vhost       `yaml:"vhosts"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`   // How often workers are sent HB
	HealthCheckTimeout time.Duration `yaml:"health_check_timeout"` // Silence before a worker is evicted
	LoadBalancer       string        `yaml:"load_balancer"`        // round-robin or least-deliveries
}

// Vhost is an isolated namespace of channels and workers.
type Vhost struct {
	Path     string   `yaml:"path"`
	Secret   string   `yaml:"secret"`   // Empty accepts any token
	Channels []string `yaml:"channels"` // Opened at startup
}

// Validate validates the Broker configuration.
func (b *Broker) Validate() error {
	if err := ValidateAddress(b.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if len(b.Vhosts) == 0 {
		return fmt.Errorf("at least one vhost must be configured")
	}
	for i, v := range b.Vhosts {
		if !strings.HasPrefix(v.Path, "/") {
			return fmt.Errorf("vhost[%d]: path %q must start with '/'", i, v.Path)
		}
		if strings.ContainsAny(v.Path, ":\r\n") || strings.ContainsAny(v.Secret, ":\r\n") {
			return fmt.Errorf("vhost[%d]: path and secret must not contain ':' or line breaks", i)
		}
	}
	switch b.LoadBalancer {
	case "round-robin", "least-deliveries":
	default:
		return fmt.Errorf("unknown load_balancer %q", b.LoadBalancer)
	}
	return nil
}

// DeduplicateVhosts removes vhosts with a repeated path, keeping the first.
// It returns a boolean indicating if duplicates were found.
func (b *Broker) DeduplicateVhosts() bool {
	seen := make(map[string]bool)
	deduplicated := make([]Vhost, 0, len(b.Vhosts))
	hasDuplicates := false

	for _, v := range b.Vhosts {
		if !seen[v.Path] {
			seen[v.Path] = true
			deduplicated = append(deduplicated, v)
		} else {
			hasDuplicates = true
		}
	}

	b.Vhosts = deduplicated
	return hasDuplicates
}
