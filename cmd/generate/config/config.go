package config

import (
	"fmt"
	"os"

	"github.com/Mmx233/Kosmonaut/examples"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string // --config flag value

	Cmd = &cobra.Command{
		Use:   "config",
		Short: "Generate configuration files",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "output config file path")
	Cmd.AddCommand(
		templateCmd("client", "request client", examples.ClientConfig),
		templateCmd("worker", "worker", examples.WorkerConfig),
		templateCmd("broker", "development broker", examples.BrokerConfig),
	)
}

// GetConfigFile returns the value of the --config flag
func GetConfigFile() string {
	return configFile
}

func templateCmd(name, description string, template func() ([]byte, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Generate %s configuration file", description),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeTemplate(name, GetConfigFile(), template)
		},
	}
}

func writeTemplate(name, outputPath string, template func() ([]byte, error)) error {
	logger := log.With().Str("com", "generate").Logger()

	// Check if file exists
	if _, err := os.Stat(outputPath); err == nil {
		return fmt.Errorf("file already exists: %s", outputPath)
	}

	// Load embedded template
	content, err := template()
	if err != nil {
		return fmt.Errorf("load %s config template: %w", name, err)
	}

	// Write to file
	if err := os.WriteFile(outputPath, content, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	logger.Info().Str("file", outputPath).Msgf("generated %s configuration", name)
	return nil
}
