// Copyright (c) Sony Research Inc. All rights reserved.

package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/client/utils"
)

// TextMessage is the webhook payload: a plain-text message envelope
// understood by most chat-ops webhook receivers.
type TextMessage struct {
	MsgType string `json:"msg_type"`
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

// NotifyWebhook posts one message per agent that either failed to answer or
// reported records. Quiet agents are skipped.
func NotifyWebhook(webhookURL string, results []AgentEvents) error {
	if webhookURL == "" {
		return fmt.Errorf("webhook address cannot be empty")
	}
	if len(results) == 0 {
		return fmt.Errorf("no event information to send")
	}

	for _, agentResult := range results {
		if agentResult.Error == "" && len(agentResult.Records) == 0 {
			continue
		}

		var msgBuffer bytes.Buffer
		msgBuffer.WriteString("[camera events]\n")
		msgBuffer.WriteString(fmt.Sprintf("Agent: %s\n", agentResult.Agent))
		msgBuffer.WriteString(fmt.Sprintf("Processing time: %s\n", time.Now().Format("2006-01-02 15:04:05")))
		msgBuffer.WriteString("--------------------\n")

		if agentResult.Error != "" {
			msgBuffer.WriteString("Status: Failed\n")
			msgBuffer.WriteString(fmt.Sprintf("Error message: %s\n", agentResult.Error))
		} else {
			msgBuffer.WriteString(fmt.Sprintf("Status: Found %d records\n", len(agentResult.Records)))
			for i, rec := range agentResult.Records {
				msgBuffer.WriteString(fmt.Sprintf(
					"%d. Time: %s\n   Kind: %s\n   Severity: %d\n   Message: %s\n",
					i+1,
					utils.FormatTimestamp(rec.Timestamp),
					rec.Kind,
					rec.Severity,
					rec.Message,
				))
			}
		}

		msg := TextMessage{MsgType: "text"}
		msg.Content.Text = msgBuffer.String()

		msgJSON, err := json.Marshal(msg)
		if err != nil {
			fmt.Printf("Agent %s message serialization failed: %v, skipped\n", agentResult.Agent, err)
			continue
		}

		resp, err := http.Post(webhookURL, "application/json", bytes.NewBuffer(msgJSON))
		if err != nil {
			fmt.Printf("Agent %s message sending failed: %v, skipped\n", agentResult.Agent, err)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			fmt.Printf("Agent %s webhook returned non-success status: %s, skipped\n", agentResult.Agent, resp.Status)
			continue
		}
		fmt.Printf("Event records from agent %s sent to webhook\n", agentResult.Agent)
	}

	return nil
}
