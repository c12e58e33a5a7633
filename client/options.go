package client

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type options struct {
	logger  zerolog.Logger
	metrics *Metrics
}

// Option customizes a Client or Worker.
type Option func(*options)

// WithLogger replaces the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records request and worker activity into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		logger: log.With().Str("com", component).Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
