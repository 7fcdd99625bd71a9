// Copyright (c) Sony Research Inc. All rights reserved.

package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	"github.com/SonyResearch/metavision-driver/pkg/client/utils"
	"github.com/SonyResearch/metavision-driver/pkg/rules"

	"github.com/spf13/cobra"
)

const defaultPort = "8080"

type result struct {
	agent string
	stats httpserver.StatsResponse
	err   error
}

func NewCmdStats() *cobra.Command {
	var checkStall bool
	var probeSeconds int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline statistics, optionally checking for stalls",
		Long: `Show event rate statistics of every agent. With --check-stall two
snapshots are taken and compared to detect stalled or backed-up pipelines.
Usage:
  mvctl stats --agents <addresses> [--port <port>] [--check-stall] [--probe-interval <seconds>]

Examples:
  mvctl stats -a cam-host-1,cam-host-2
  mvctl stats -a agents.txt --check-stall --probe-interval 5`,
		Run: func(cmd *cobra.Command, args []string) {
			agents, err := utils.ResolveAgents(cmd)
			if err != nil {
				fmt.Printf("Failed to resolve agent list: %v\n", err)
				os.Exit(1)
			}
			port := utils.StringFlagOrConfig(cmd, "port", defaultPort)

			if !checkStall {
				for _, res := range fetchAll(agents, port) {
					printStats(res)
				}
				return
			}

			runCheckStall(cmd, agents, port, probeSeconds)
		},
	}

	cmd.Flags().BoolVar(&checkStall, "check-stall", false, "Compare two snapshots and report stalled pipelines")
	cmd.Flags().IntVar(&probeSeconds, "probe-interval", 0, "Seconds between the two stall-check snapshots")

	return cmd
}

// NewCmdCheckStall is stats --check-stall under its own name, for operators
// wiring it into cron or alerting.
func NewCmdCheckStall() *cobra.Command {
	var probeSeconds int

	cmd := &cobra.Command{
		Use:   "checkstall",
		Short: "Detect stalled or backed-up pipelines across the fleet",
		Long: `Take two statistics snapshots from every agent and compare them.
Exits non-zero when any agent is stalled, backed up or unreachable.
Usage:
  mvctl checkstall --agents <addresses> [--port <port>] [--probe-interval <seconds>]

Examples:
  mvctl checkstall -a agents.txt --probe-interval 5`,
		Run: func(cmd *cobra.Command, args []string) {
			agents, err := utils.ResolveAgents(cmd)
			if err != nil {
				fmt.Printf("Failed to resolve agent list: %v\n", err)
				os.Exit(1)
			}
			port := utils.StringFlagOrConfig(cmd, "port", defaultPort)
			runCheckStall(cmd, agents, port, probeSeconds)
		},
	}

	cmd.Flags().IntVar(&probeSeconds, "probe-interval", 0, "Seconds between the two snapshots")
	return cmd
}

func runCheckStall(cmd *cobra.Command, agents []string, port string, probeSeconds int) {
	if probeSeconds <= 0 {
		probeSeconds = utils.IntFlagOrConfig(cmd, "probe-interval", 3)
	}
	probe := time.Duration(probeSeconds) * time.Second
	fmt.Printf("Taking two snapshots %v apart...\n", probe)

	before := fetchAll(agents, port)
	time.Sleep(probe)
	after := fetchAll(agents, port)

	problems := CheckStall(before, after)
	if len(problems) == 0 {
		fmt.Println("No anomalies detected")
		return
	}
	for agent, findings := range problems {
		fmt.Printf("Agent %s:\n", agent)
		for _, f := range findings {
			fmt.Printf("  [%s] %s\n", f.Kind, f.Message)
		}
	}
	os.Exit(1)
}

func fetchAll(agents []string, port string) map[string]result {
	var wg sync.WaitGroup
	results := make(chan result, len(agents))

	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()

			var stats httpserver.StatsResponse
			err := utils.GetJSON(utils.AgentURL(agent, port, "/v1/stats"), &stats)
			results <- result{agent: agent, stats: stats, err: err}
		}(agent)
	}
	wg.Wait()
	close(results)

	byAgent := make(map[string]result, len(agents))
	for res := range results {
		byAgent[res.agent] = res
	}
	return byAgent
}

func printStats(res result) {
	if res.err != nil {
		fmt.Printf("Agent %s: %v\n", res.agent, res.err)
		return
	}
	jsonData, err := json.MarshalIndent(res.stats, "", "  ")
	if err != nil {
		fmt.Printf("Agent %s: failed to format statistics: %v\n", res.agent, err)
		return
	}
	fmt.Printf("Agent %s:\n%s\n", res.agent, jsonData)
}

// CheckStall evaluates each agent's pair of snapshots. Agents that failed
// either fetch are reported as a finding too, so a dead agent does not pass
// silently.
func CheckStall(before, after map[string]result) map[string][]rules.Finding {
	problems := make(map[string][]rules.Finding)
	for agent, b := range before {
		a, ok := after[agent]
		if !ok {
			continue
		}
		if b.err != nil || a.err != nil {
			err := b.err
			if err == nil {
				err = a.err
			}
			problems[agent] = []rules.Finding{{
				Kind:     "unreachable",
				Message:  err.Error(),
				Severity: rules.SeverityError,
			}}
			continue
		}

		findings := rules.Evaluate(toSample(b.stats), toSample(a.stats))
		if len(findings) > 0 {
			problems[agent] = findings
		}
	}
	return problems
}

func toSample(s httpserver.StatsResponse) rules.Sample {
	return rules.Sample{
		TakenAt:    time.Now(),
		State:      s.State,
		QueueDepth: s.QueueDepth,
		Report:     s.Report,
	}
}
