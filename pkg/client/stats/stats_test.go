// Copyright (c) Sony Research Inc. All rights reserved.

package stats

import (
	"errors"
	"testing"

	"github.com/SonyResearch/metavision-driver/pkg/agent/httpserver"
	driverstats "github.com/SonyResearch/metavision-driver/pkg/driver/stats"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(state string, depth int, intervalEnd int64) result {
	return result{
		stats: httpserver.StatsResponse{
			State:      state,
			QueueDepth: depth,
			Report:     driverstats.Report{IntervalEnd: intervalEnd},
		},
	}
}

func TestCheckStall(t *testing.T) {
	before := map[string]result{
		"cam-host-1": snapshot("running", 0, 1_000_000),
		"cam-host-2": snapshot("running", 0, 1_000_000),
		"cam-host-3": {err: errors.New("connection refused")},
	}
	after := map[string]result{
		"cam-host-1": snapshot("running", 1, 2_000_000),
		"cam-host-2": snapshot("running", 0, 1_000_000),
		"cam-host-3": {err: errors.New("connection refused")},
	}

	problems := CheckStall(before, after)

	assert.NotContains(t, problems, "cam-host-1", "healthy agent flagged")

	require.Contains(t, problems, "cam-host-2")
	assert.Equal(t, "stalled", problems["cam-host-2"][0].Kind)

	require.Contains(t, problems, "cam-host-3")
	assert.Equal(t, "unreachable", problems["cam-host-3"][0].Kind)
}

func TestCheckStall_AgentMissingFromSecondSnapshot(t *testing.T) {
	before := map[string]result{"cam-host-1": snapshot("running", 0, 1_000_000)}
	problems := CheckStall(before, map[string]result{})
	assert.Empty(t, problems)
}
