package config

import (
	"time"
)

// Default timeout and interval values
const (
	// DefaultPort is used when an endpoint URI has no port
	DefaultPort = 8081

	// DefaultRequestTimeout bounds dial and response of one request
	DefaultRequestTimeout = 5 * time.Second

	// DefaultReconnectDelay is the constant wait between worker connect attempts
	DefaultReconnectDelay = 1000 * time.Millisecond

	// DefaultHeartbeatInterval is the default interval between heartbeat messages
	DefaultHeartbeatInterval = 500 * time.Millisecond

	// DefaultBrokerListen is where the development broker listens
	DefaultBrokerListen = "127.0.0.1:8081"

	// DefaultHealthCheckTimeout matches the worker read timeout for the default interval
	DefaultHealthCheckTimeout = 2*DefaultHeartbeatInterval + time.Second

	// DefaultLoadBalancer picks the worker receiving a relayed event
	DefaultLoadBalancer = "round-robin"
)

// ApplyDefaults fills zero-value fields.
func (c *Client) ApplyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// ApplyDefaults fills zero-value fields.
func (w *Worker) ApplyDefaults() {
	if w.HeartbeatInterval == 0 {
		w.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if w.ReconnectDelay == 0 {
		w.ReconnectDelay = DefaultReconnectDelay
	}
	if w.RequestTimeout == 0 {
		w.RequestTimeout = DefaultRequestTimeout
	}
}

// ApplyDefaults fills zero-value fields.
func (b *Broker) ApplyDefaults() {
	if b.Listen == "" {
		b.Listen = DefaultBrokerListen
	}
	if b.HeartbeatInterval == 0 {
		b.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if b.HealthCheckTimeout == 0 {
		b.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	if b.LoadBalancer == "" {
		b.LoadBalancer = DefaultLoadBalancer
	}
}
