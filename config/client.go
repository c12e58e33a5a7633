package config

import (
	"fmt"
	"time"
)

// Client configures a Request Client.
type Client struct {
	URI            string        `yaml:"uri"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // Dial and response timeout, default 5s

	// Parsed from URI by Validate (not from YAML)
	Endpoint Endpoint `yaml:"-"`
}

// Validate parses the URI into Endpoint.
func (c *Client) Validate() error {
	ep, err := ParseEndpoint(c.URI)
	if err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	c.Endpoint = ep
	return nil
}

// Worker configures a long-lived Worker.
type Worker struct {
	URI               string        `yaml:"uri"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // default 500ms
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`    // default 1s
	RequestTimeout    time.Duration `yaml:"request_timeout"`    // Used by message replies, default 5s
	Metrics           WorkerMetrics `yaml:"metrics"`

	// Parsed from URI by Validate (not from YAML)
	Endpoint Endpoint `yaml:"-"`
}

type WorkerMetrics struct {
	Listen string `yaml:"listen"` // host:port serving /metrics, empty disables
}

// Validate parses the URI into Endpoint and checks intervals.
func (w *Worker) Validate() error {
	ep, err := ParseEndpoint(w.URI)
	if err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	if w.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if w.ReconnectDelay < 0 {
		return fmt.Errorf("reconnect_delay cannot be negative")
	}
	if w.Metrics.Listen != "" {
		if err := ValidateAddress(w.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	w.Endpoint = ep
	return nil
}

// ReadTimeout bounds a single blocking read: two missed heartbeats plus a second.
func (w *Worker) ReadTimeout() time.Duration {
	return 2*w.HeartbeatInterval + time.Second
}
