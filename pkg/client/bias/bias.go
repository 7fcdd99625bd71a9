// Copyright (c) Sony Research Inc. All rights reserved.

package bias

import (
	"fmt"
	"os"
	"sync"

	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	"github.com/SonyResearch/metavision-driver/pkg/client/utils"

	"github.com/spf13/cobra"
)

const defaultPort = "8080"

type result struct {
	agent string
	bias  httpserver.BiasResponse
	err   error
}

func NewCmdBias() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bias",
		Short: "Read, write and persist sensor bias parameters",
		Long: `Read, write and persist sensor bias parameters on every agent.
Usage:
  mvctl bias get --name <bias> --agents <addresses> [--port <port>]
  mvctl bias set --name <bias> --value <value> --agents <addresses> [--port <port>]
  mvctl bias save --agents <addresses> [--port <port>]

Examples:
  mvctl bias get --name bias_fo -a cam-host-1,cam-host-2
  mvctl bias set --name bias_hpf --value 1400 -a agents.txt`,
	}

	cmd.AddCommand(newCmdGet(), newCmdSet(), newCmdSave())
	return cmd
}

func newCmdGet() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read one bias parameter from every agent",
		Run: func(cmd *cobra.Command, args []string) {
			if name == "" {
				fmt.Println("Error: bias name must be specified with --name")
				os.Exit(1)
			}
			agents, port := resolveTargets(cmd)

			forEachAgent(agents, func(agent string) result {
				var bias httpserver.BiasResponse
				err := utils.GetJSON(utils.AgentURL(agent, port, "/v1/bias/"+name), &bias)
				return result{agent: agent, bias: bias, err: err}
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Bias parameter name")
	return cmd
}

func newCmdSet() *cobra.Command {
	var name string
	var value int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Write one bias parameter on every agent",
		Run: func(cmd *cobra.Command, args []string) {
			if name == "" {
				fmt.Println("Error: bias name must be specified with --name")
				os.Exit(1)
			}
			if !cmd.Flags().Changed("value") {
				fmt.Println("Error: bias value must be specified with --value")
				os.Exit(1)
			}
			agents, port := resolveTargets(cmd)

			forEachAgent(agents, func(agent string) result {
				var bias httpserver.BiasResponse
				err := utils.PutJSON(utils.AgentURL(agent, port, "/v1/bias/"+name),
					httpserver.BiasRequest{Value: value}, &bias)
				return result{agent: agent, bias: bias, err: err}
			})
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Bias parameter name")
	cmd.Flags().IntVarP(&value, "value", "v", 0, "Bias value to write")
	return cmd
}

func newCmdSave() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Persist current biases to each agent's bias file",
		Run: func(cmd *cobra.Command, args []string) {
			agents, port := resolveTargets(cmd)

			forEachAgent(agents, func(agent string) result {
				err := utils.PostJSON(utils.AgentURL(agent, port, "/v1/biases/save"), nil, nil)
				return result{agent: agent, err: err}
			})
		},
	}
}

func resolveTargets(cmd *cobra.Command) ([]string, string) {
	agents, err := utils.ResolveAgents(cmd)
	if err != nil {
		fmt.Printf("Failed to resolve agent list: %v\n", err)
		os.Exit(1)
	}
	port := utils.StringFlagOrConfig(cmd, "port", defaultPort)
	return agents, port
}

// forEachAgent runs op against every agent concurrently and prints the
// outcomes in arrival order.
func forEachAgent(agents []string, op func(agent string) result) {
	var wg sync.WaitGroup
	results := make(chan result, len(agents))

	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			results <- op(agent)
		}(agent)
	}
	wg.Wait()
	close(results)

	failures := 0
	for res := range results {
		if res.err != nil {
			failures++
			fmt.Printf("Agent %s: %v\n", res.agent, res.err)
			continue
		}
		if res.bias.Name != "" {
			fmt.Printf("Agent %s: %s = %d\n", res.agent, res.bias.Name, res.bias.Value)
		} else {
			fmt.Printf("Agent %s: ok\n", res.agent)
		}
	}
	if failures > 0 {
		fmt.Printf("%d of %d agents failed\n", failures, len(agents))
	}
}
