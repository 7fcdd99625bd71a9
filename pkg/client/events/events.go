// Copyright (c) Sony Research Inc. All rights reserved.

package events

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	"github.com/SonyResearch/metavision-driver/pkg/agent/journal"
	"github.com/SonyResearch/metavision-driver/pkg/client/utils"

	"github.com/spf13/cobra"
)

const defaultPort = "8080"

// AgentEvents is one agent's slice of the fleet-wide query.
type AgentEvents struct {
	Agent   string           `json:"agent"`
	Records []journal.Record `json:"records,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func NewCmdEvents() *cobra.Command {
	var minSeverity int
	var kind string
	var unacked bool
	var sinceMinutes int
	var pollInterval int
	var outDir string
	var webhookURL string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Query camera event journals across the fleet",
		Long: `Query the event journal of every agent: status changes, runtime
errors and back-pressure warnings.
Usage:
  mvctl events --agents <addresses> [--min-severity <0..2>] [--kind <kind>] [--unacked] [--since-min <minutes>] [--interval <minutes>] [--webhook <url>]

Examples:
  mvctl events -a cam-host-1,cam-host-2 --min-severity 2 --since-min 60
  mvctl events -a agents.txt --unacked --interval 5 --webhook https://hooks.example.com/xyz`,
		Run: func(cmd *cobra.Command, args []string) {
			agents, err := utils.ResolveAgents(cmd)
			if err != nil {
				fmt.Printf("Failed to resolve agent list: %v\n", err)
				os.Exit(1)
			}
			port := utils.StringFlagOrConfig(cmd, "port", defaultPort)
			if webhookURL == "" {
				webhookURL = utils.StringFlagOrConfig(cmd, "webhook", "")
			}

			query := buildQuery(minSeverity, kind, unacked, sinceMinutes)

			if pollInterval <= 0 {
				collectOnce(agents, port, query, outDir, webhookURL)
				return
			}

			pollDuration := time.Duration(pollInterval) * time.Minute
			fmt.Printf("Polling event journals every %v, press Ctrl+C to stop\n", pollDuration)
			collectOnce(agents, port, query, outDir, webhookURL)
			ticker := time.NewTicker(pollDuration)
			defer ticker.Stop()
			for range ticker.C {
				collectOnce(agents, port, query, outDir, webhookURL)
			}
		},
	}

	cmd.Flags().IntVar(&minSeverity, "min-severity", 0, "Minimum record severity (0 info, 1 warning, 2 error)")
	cmd.Flags().StringVar(&kind, "kind", "", "Only records of this kind (status, runtime_error, backpressure)")
	cmd.Flags().BoolVar(&unacked, "unacked", false, "Only records not returned by a previous query")
	cmd.Flags().IntVar(&sinceMinutes, "since-min", 0, "Only records from the last N minutes")
	cmd.Flags().IntVarP(&pollInterval, "interval", "i", 0, "Automatic query interval in minutes, 0 means query once")
	cmd.Flags().StringVar(&outDir, "out-dir", "cameraEvents", "Directory for saved query results")
	cmd.Flags().StringVar(&webhookURL, "webhook", "", "Webhook URL notified when severe records are found")

	return cmd
}

func buildQuery(minSeverity int, kind string, unacked bool, sinceMinutes int) string {
	q := url.Values{}
	if minSeverity > 0 {
		q.Set("min_severity", strconv.Itoa(minSeverity))
	}
	if kind != "" {
		q.Set("kind", kind)
	}
	if unacked {
		q.Set("unacked", "true")
	}
	if sinceMinutes > 0 {
		since := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute).UnixMilli()
		q.Set("since", strconv.FormatInt(since, 10))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func collectOnce(agents []string, port, query, outDir, webhookURL string) {
	var wg sync.WaitGroup
	results := make(chan AgentEvents, len(agents))

	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()

			var resp httpserver.EventsResponse
			if err := utils.GetJSON(utils.AgentURL(agent, port, "/v1/events"+query), &resp); err != nil {
				results <- AgentEvents{Agent: agent, Error: err.Error()}
				return
			}
			results <- AgentEvents{Agent: agent, Records: resp.Records}
		}(agent)
	}
	wg.Wait()
	close(results)

	var all []AgentEvents
	for res := range results {
		all = append(all, res)
		if res.Error != "" {
			fmt.Printf("Agent %s: query failed: %s\n", res.Agent, res.Error)
			continue
		}
		fmt.Printf("Agent %s: %d records\n", res.Agent, len(res.Records))
		for _, rec := range res.Records {
			fmt.Printf("  %s  [%s] severity=%d  %s\n",
				utils.FormatTimestamp(rec.Timestamp), rec.Kind, rec.Severity, rec.Message)
		}
	}

	saveResults(all, outDir)

	if webhookURL != "" {
		if err := NotifyWebhook(webhookURL, all); err != nil {
			fmt.Printf("Webhook notification failed: %v\n", err)
		}
	}
}

func saveResults(all []AgentEvents, outDir string) {
	hasRecords := false
	for _, res := range all {
		if len(res.Records) > 0 {
			hasRecords = true
			break
		}
	}
	if !hasRecords {
		return
	}

	jsonData, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		fmt.Printf("Failed to convert results to JSON: %v\n", err)
		return
	}
	fileName := fmt.Sprintf("events_%s.json", time.Now().Format("2006-01-02_15-04-05"))
	if err := utils.AppendWithTimestamp(outDir, fileName, jsonData); err != nil {
		fmt.Println("Error:", err)
	} else {
		fmt.Printf("Event records saved to %s\n", fileName)
	}
}
