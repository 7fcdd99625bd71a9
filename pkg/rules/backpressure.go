// Copyright (c) Sony Research Inc. All rights reserved.

// Package rules evaluates pipeline health from statistics snapshots taken
// at two points in time. It has no side effects; callers decide whether a
// finding is journaled, alerted on, or just printed.
package rules

import (
	"fmt"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"
)

// Severity levels of a finding, matching journal record severities.
const (
	SeverityInfo int32 = iota
	SeverityWarning
	SeverityError
)

// depthWarnThreshold is the queue depth at which sustained growth is
// reported. Short bursts above it are normal; growth across two samples
// is not.
const depthWarnThreshold = 16

// Sample is one observation of a running pipeline.
type Sample struct {
	TakenAt    time.Time    `json:"taken_at"`
	State      string       `json:"state"`
	QueueDepth int          `json:"queue_depth"`
	Report     stats.Report `json:"report"`
}

// Finding is one detected problem.
type Finding struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Severity int32  `json:"severity"`
}

// Evaluate compares an earlier and a later sample of the same session.
// The sample order matters; callers pass them oldest first.
func Evaluate(before, after Sample) []Finding {
	var findings []Finding

	if after.State != "running" {
		findings = append(findings, Finding{
			Kind:     "not_running",
			Message:  fmt.Sprintf("session is %s", after.State),
			Severity: SeverityWarning,
		})
		return findings
	}

	// A running session whose report never advances produces no events:
	// the sensor went quiet or the callback path died.
	if after.Report.IntervalEnd == before.Report.IntervalEnd {
		findings = append(findings, Finding{
			Kind: "stalled",
			Message: fmt.Sprintf("no statistics report since %s (interval end %d us)",
				before.TakenAt.Format(time.RFC3339), before.Report.IntervalEnd),
			Severity: SeverityError,
		})
	}

	// Depth growing across samples means the sink drains slower than the
	// sensor produces. The queue never drops, so this is the only signal.
	if after.QueueDepth > before.QueueDepth && after.QueueDepth >= depthWarnThreshold {
		findings = append(findings, Finding{
			Kind: "backpressure",
			Message: fmt.Sprintf("transfer queue depth growing: %d -> %d",
				before.QueueDepth, after.QueueDepth),
			Severity: SeverityWarning,
		})
	}

	return findings
}
