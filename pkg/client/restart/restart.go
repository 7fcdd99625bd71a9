// Copyright (c) Sony Research Inc. All rights reserved.

package restart

import (
	"fmt"
	"os"
	"sync"

	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	"github.com/SonyResearch/metavision-driver/pkg/client/utils"

	"github.com/spf13/cobra"
)

const defaultPort = "8080"

func NewCmdRestart() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the acquisition session on every agent",
		Long: `Restart the camera acquisition session on every agent.
Usage:
  mvctl restart --agents <addresses> [--port <port>]

Examples:
  mvctl restart -a cam-host-1,cam-host-2 --port 8080`,
		Run: func(cmd *cobra.Command, args []string) {
			agents, err := utils.ResolveAgents(cmd)
			if err != nil {
				fmt.Printf("Failed to resolve agent list: %v\n", err)
				os.Exit(1)
			}
			port := utils.StringFlagOrConfig(cmd, "port", defaultPort)

			RestartAgents(agents, port)
		},
	}

	return cmd
}

// RestartAgents requests a session restart on every agent concurrently and
// summarizes the failures.
func RestartAgents(agents []string, port string) {
	var wg sync.WaitGroup
	errorCh := make(chan error, len(agents))

	for _, addr := range agents {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()

			fmt.Printf("Requesting restart of agent %s...\n", address)
			var status httpserver.StatusResponse
			if err := utils.PostJSON(utils.AgentURL(address, port, "/v1/restart"), nil, &status); err != nil {
				errorCh <- fmt.Errorf("request to agent %s failed: %v", address, err)
				return
			}
			fmt.Printf("Agent %s: %s\n", address, status.Status)
		}(addr)
	}
	wg.Wait()
	close(errorCh)

	var errors []string
	for err := range errorCh {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		fmt.Printf("Encountered %d errors during restart:\n", len(errors))
		for _, err := range errors {
			fmt.Println("-", err)
		}
		os.Exit(1)
	}
	fmt.Println("Restart requests successfully sent to all agents")
}
