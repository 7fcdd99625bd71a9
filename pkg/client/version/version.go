// Copyright (c) Sony Research Inc. All rights reserved.

package version

import (
	"fmt"
	"sync"

	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	"github.com/SonyResearch/metavision-driver/pkg/client/utils"
	"github.com/SonyResearch/metavision-driver/pkg/version"

	"github.com/spf13/cobra"
)

const defaultPort = "8080"

func NewCmdVersion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show client and agent build versions",
		Long: `Show the client build version. With --agents, every agent is asked
for its version too, so mixed-version fleets are easy to spot.
Usage:
  mvctl version [--agents <addresses>] [--port <port>]`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mvctl version %s (built %s, %s)\n",
				version.Version, version.BuildTime, version.GoVersion())

			agents, err := utils.ResolveAgents(cmd)
			if err != nil {
				return // local version only
			}
			port := utils.StringFlagOrConfig(cmd, "port", defaultPort)

			type result struct {
				agent   string
				version httpserver.VersionResponse
				err     error
			}
			var wg sync.WaitGroup
			results := make(chan result, len(agents))
			for _, agent := range agents {
				wg.Add(1)
				go func(agent string) {
					defer wg.Done()
					var v httpserver.VersionResponse
					err := utils.GetJSON(utils.AgentURL(agent, port, "/v1/version"), &v)
					results <- result{agent: agent, version: v, err: err}
				}(agent)
			}
			wg.Wait()
			close(results)

			for res := range results {
				if res.err != nil {
					fmt.Printf("Agent %s: %v\n", res.agent, res.err)
					continue
				}
				fmt.Printf("Agent %s: %s (built %s, %s)\n",
					res.agent, res.version.Version, res.version.BuildTime, res.version.GoVersion)
			}
		},
	}

	return cmd
}
