package request

import (
	"context"
	"fmt"

	"github.com/Mmx233/Kosmonaut/client"
	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/tools"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	uri        string

	Cmd = &cobra.Command{
		Use:   "request",
		Short: "Send a single request to the broker",
		Args:  cobra.NoArgs,
	}

	openCmd = &cobra.Command{
		Use:   "open <channel>",
		Short: "Open a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return c.OpenChannel(ctx, args[0])
			})
		},
	}

	closeCmd = &cobra.Command{
		Use:   "close <channel>",
		Short: "Close a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return c.CloseChannel(ctx, args[0])
			})
		},
	}

	broadcastCmd = &cobra.Command{
		Use:   "broadcast <channel> <event> <json>",
		Short: "Broadcast an event with JSON data on a channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return c.BroadcastRaw(ctx, args[0], args[1], args[2])
			})
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token <user id> [pattern]",
		Short: "Request a single use access token",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ".*"
			if len(args) == 2 {
				pattern = args[1]
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				token, err := c.RequestAccessToken(ctx, args[0], pattern)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.PersistentFlags().StringVar(&uri, "uri", "", "backend endpoint uri, overrides the config file")
	Cmd.AddCommand(openCmd, closeCmd, broadcastCmd, tokenCmd)
}

// loadConfig prefers --uri over the config file.
func loadConfig() (*config.Client, error) {
	if uri != "" {
		// Validated by client.NewClient
		return &config.Client{URI: uri}, nil
	}
	return config.LoadClientConfig(configFile)
}

func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	logger := log.With().Str("com", "request-cmd").Logger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := client.NewClient(cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := fn(cmd.Context(), c); err != nil {
		return err
	}
	logger.Info().Str("endpoint", c.Endpoint().String()).Str("command", cmd.Name()).Msg("request succeeded")
	return nil
}
