package run

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	brokerCmd = &cobra.Command{
		Use:   "broker",
		Short: "Start a development broker",
		Args:  cobra.NoArgs,
		RunE:  runBroker,
	}
)

func runBroker(cmd *cobra.Command, args []string) error {
	logger := log.With().Str("com", "broker-cmd").Logger()

	// Load configuration
	logger.Info().Str("config", configFile).Msg("loading configuration")
	cfg, err := config.LoadBrokerConfig(configFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := server.New(cfg, log.With().Str("com", "broker").Logger())
	if err != nil {
		return err
	}
	if err := s.Listen(ctx); err != nil {
		return err
	}

	logger.Info().Msg("broker stopped")
	return nil
}
