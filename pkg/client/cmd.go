// Copyright (c) Sony Research Inc. All rights reserved.

package client

import (
	"fmt"

	"github.com/SonyResearch/metavision-driver/pkg/client/bias"
	"github.com/SonyResearch/metavision-driver/pkg/client/events"
	"github.com/SonyResearch/metavision-driver/pkg/client/restart"
	"github.com/SonyResearch/metavision-driver/pkg/client/stats"
	"github.com/SonyResearch/metavision-driver/pkg/client/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// readConfig reads parameters from the configuration file
func readConfig(configPath string) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("mvctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No configuration file read, using defaults or command-line values")
	}
}

func NewMvctlCommand() *cobra.Command {
	var configPath string

	cmds := &cobra.Command{
		Use:   "mvctl",
		Short: "Event camera fleet control tool",
		Long: `Control and inspect event-camera agents over their HTTP API.
Usage:
  mvctl [subcommand] [parameters]

Example:
  mvctl stats --agents cam-host-1,cam-host-2 --port 8080`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			readConfig(configPath)
		},
	}

	cmds.CompletionOptions.DisableDefaultCmd = true

	cmds.PersistentFlags().StringP("agents", "a", "", "Comma-separated agent addresses, or the path to a file with one address per line")
	cmds.PersistentFlags().StringP("port", "p", "", "Agent HTTP port")
	cmds.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the configuration file")

	cmds.AddCommand(
		bias.NewCmdBias(),
		events.NewCmdEvents(),
		stats.NewCmdStats(),
		stats.NewCmdCheckStall(),
		restart.NewCmdRestart(),
		version.NewCmdVersion(),
	)

	return cmds
}
