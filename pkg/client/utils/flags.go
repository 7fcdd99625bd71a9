// Copyright (c) Sony Research Inc. All rights reserved.

package utils

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// StringFlagOrConfig returns the flag value when set, otherwise the value
// from the configuration file, otherwise def.
func StringFlagOrConfig(cmd *cobra.Command, name, def string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	if v := viper.GetString(name); v != "" {
		fmt.Printf("Using %s from configuration file: %s\n", name, v)
		return v
	}
	return def
}

// IntFlagOrConfig returns the flag value when set, otherwise the value from
// the configuration file, otherwise def.
func IntFlagOrConfig(cmd *cobra.Command, name string, def int) int {
	if v, _ := cmd.Flags().GetInt(name); v != 0 {
		return v
	}
	if v := viper.GetInt(name); v != 0 {
		fmt.Printf("Using %s from configuration file: %d\n", name, v)
		return v
	}
	return def
}

// ResolveAgents reads the agent source from the flag or the configuration
// file and expands it into a list of addresses.
func ResolveAgents(cmd *cobra.Command) ([]string, error) {
	source := StringFlagOrConfig(cmd, "agents", "")
	if source == "" {
		return nil, fmt.Errorf("agent source must be specified with --agents or in the configuration file")
	}
	return GetAgentList(source)
}
