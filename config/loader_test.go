package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"
)

// testConfig is a simple struct for testing the generic loader
type testConfig struct {
	Name    string `yaml:"name"`
	Port    int    `yaml:"port"`
	Enabled bool   `yaml:"enabled"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := writeConfig(t, `name: test-service
port: 8080
enabled: true
`)

	cfg, err := LoadConfig[testConfig](configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "test-service" {
		t.Errorf("expected Name 'test-service', got '%s'", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected Port 8080, got %d", cfg.Port)
	}
	if !cfg.Enabled {
		t.Errorf("expected Enabled true, got false")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig[testConfig]("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for non-existent file, got nil")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("expected error to contain 'read config file', got: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `name: [invalid yaml
port: not closed`)

	_, err := LoadConfig[testConfig](configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Errorf("expected error to contain 'parse config', got: %v", err)
	}
}

// Property: writing any config to YAML and loading it back is lossless.
func TestLoadConfig_RoundTrip_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		original := testConfig{
			Name:    rapid.StringMatching(`[a-z0-9_-]{1,20}`).Draw(rt, "name"),
			Port:    rapid.IntRange(0, 65535).Draw(rt, "port"),
			Enabled: rapid.Bool().Draw(rt, "enabled"),
		}

		yamlData, err := yaml.Marshal(&original)
		if err != nil {
			rt.Fatalf("failed to marshal config: %v", err)
		}
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, yamlData, 0644); err != nil {
			rt.Fatalf("failed to write config: %v", err)
		}

		loaded, err := LoadConfig[testConfig](configPath)
		if err != nil {
			rt.Fatalf("LoadConfig failed: %v", err)
		}
		if *loaded != original {
			rt.Fatalf("round trip mismatch: got %+v, want %+v", *loaded, original)
		}
	})
}

func TestLoadClientConfig(t *testing.T) {
	configPath := writeConfig(t, `uri: "wr://secret@broker.example.com:9772/dev"
`)

	cfg, err := LoadClientConfig(configPath)
	if err != nil {
		t.Fatalf("LoadClientConfig failed: %v", err)
	}

	if cfg.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("expected default request timeout, got %v", cfg.RequestTimeout)
	}
	if cfg.Endpoint.Address() != "broker.example.com:9772" {
		t.Errorf("unexpected address %q", cfg.Endpoint.Address())
	}
	if cfg.Endpoint.Vhost != "/dev" || cfg.Endpoint.Token != "secret" {
		t.Errorf("unexpected endpoint %+v", cfg.Endpoint)
	}
}

func TestLoadClientConfig_InvalidURI(t *testing.T) {
	configPath := writeConfig(t, `uri: "http://broker.example.com/dev"
`)

	_, err := LoadClientConfig(configPath)
	if err == nil {
		t.Fatal("expected error for wrong scheme, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported scheme") {
		t.Errorf("expected error about scheme, got: %v", err)
	}
}

func TestLoadWorkerConfig(t *testing.T) {
	configPath := writeConfig(t, `uri: "wr://secret@127.0.0.1/dev"
heartbeat_interval: 200ms
metrics:
  listen: "127.0.0.1:9100"
`)

	cfg, err := LoadWorkerConfig(configPath)
	if err != nil {
		t.Fatalf("LoadWorkerConfig failed: %v", err)
	}

	if cfg.HeartbeatInterval != 200*time.Millisecond {
		t.Errorf("expected heartbeat 200ms, got %v", cfg.HeartbeatInterval)
	}
	if cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("expected default reconnect delay, got %v", cfg.ReconnectDelay)
	}
	if cfg.ReadTimeout() != 1400*time.Millisecond {
		t.Errorf("expected read timeout 1.4s, got %v", cfg.ReadTimeout())
	}
	if cfg.Endpoint.Port != DefaultPort {
		t.Errorf("expected default port, got %d", cfg.Endpoint.Port)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("unexpected metrics listen %q", cfg.Metrics.Listen)
	}
}

func TestLoadWorkerConfig_InvalidMetricsListen(t *testing.T) {
	configPath := writeConfig(t, `uri: "wr://127.0.0.1/dev"
metrics:
  listen: "no-port"
`)

	_, err := LoadWorkerConfig(configPath)
	if err == nil {
		t.Fatal("expected error for invalid metrics listen address, got nil")
	}
	if !strings.Contains(err.Error(), "invalid address") {
		t.Errorf("expected error about invalid address, got: %v", err)
	}
}

func TestLoadBrokerConfig_DuplicateDeduplication(t *testing.T) {
	configPath := writeConfig(t, `listen: "127.0.0.1:0"
vhosts:
  - path: /dev
    secret: one
  - path: /prod
    secret: two
  - path: /dev
    secret: three
`)

	cfg, err := LoadBrokerConfig(configPath)
	if err != nil {
		t.Fatalf("LoadBrokerConfig failed: %v", err)
	}

	if len(cfg.Vhosts) != 2 {
		t.Fatalf("expected 2 vhosts after deduplication, got %d", len(cfg.Vhosts))
	}
	if cfg.Vhosts[0].Secret != "one" {
		t.Errorf("expected first occurrence to be kept, got secret %q", cfg.Vhosts[0].Secret)
	}
	if cfg.LoadBalancer != DefaultLoadBalancer {
		t.Errorf("expected default load balancer, got %q", cfg.LoadBalancer)
	}
}

func TestLoadBrokerConfig_NoVhosts(t *testing.T) {
	configPath := writeConfig(t, `listen: "127.0.0.1:0"
`)

	_, err := LoadBrokerConfig(configPath)
	if err == nil {
		t.Fatal("expected error for no vhosts configured, got nil")
	}
	if !strings.Contains(err.Error(), "at least one vhost") {
		t.Errorf("expected error about vhosts, got: %v", err)
	}
}

func TestLoadBrokerConfig_UnknownBalancer(t *testing.T) {
	configPath := writeConfig(t, `vhosts:
  - path: /dev
load_balancer: random
`)

	_, err := LoadBrokerConfig(configPath)
	if err == nil {
		t.Fatal("expected error for unknown balancer, got nil")
	}
	if !strings.Contains(err.Error(), "load_balancer") {
		t.Errorf("expected error about load_balancer, got: %v", err)
	}
}
