package run

import (
	"github.com/Mmx233/Kosmonaut/config"
	"github.com/Mmx233/Kosmonaut/tools"
	"github.com/spf13/cobra"
)

var (
	configFile = tools.GetenvDefault(config.EnvPrefix+"CONFIG", "config.yaml")
	Cmd        = &cobra.Command{
		Use:   "run",
		Short: "Run a worker or a development broker",
		Args:  cobra.NoArgs,
	}
)

func init() {
	Cmd.PersistentFlags().StringVarP(&configFile, "config", "c", configFile, "path of config file")
	Cmd.AddCommand(workerCmd)
	Cmd.AddCommand(brokerCmd)
}
