package run

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mmx233/Kosmonaut/client"
	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	metricsListen string

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Start a worker that logs every received event",
		Args:  cobra.NoArgs,
		RunE:  runWorker,
	}
)

func init() {
	workerCmd.Flags().StringVar(&metricsListen, "metrics", "", "serve prometheus metrics on this address, overrides the config file")
}

func runWorker(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "worker-cmd").Logger()

	// Load configuration with validation
	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadWorkerConfig(configFile)
	if err != nil {
		return err
	}
	if metricsListen != "" {
		cfg.Metrics.Listen = metricsListen
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []client.Option{client.WithLogger(log.With().Str("com", "worker").Logger())}
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, client.WithMetrics(client.NewMetrics(reg)))

		shutdown := serveMetrics(cfg.Metrics.Listen, reg, logger)
		defer shutdown()
	}

	w, err := client.NewWorker(cfg, loggingHandler(logger), opts...)
	if err != nil {
		return err
	}

	logger.Info().Str("endpoint", cfg.Endpoint.String()).Msg("starting worker")
	if err := w.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}

// loggingHandler writes every event and error to the log.
func loggingHandler(logger zerolog.Logger) client.Handler {
	return client.HandlerFuncs{
		MessageFunc: func(msg *client.Message) {
			logger.Info().Str("event", msg.Event).RawJSON("data", []byte(msg.Data)).Msg("event received")
		},
		ErrorFunc: func(err *protocol.ServerError) {
			logger.Warn().Int("code", err.Code).Str("category", err.Category).Msg("broker error")
		},
		ExceptionFunc: func(err error) {
			logger.Error().Err(err).Msg("worker exception")
		},
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger zerolog.Logger) (shutdown func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// The worker keeps running without metrics
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
