// Copyright (c) Sony Research Inc. All rights reserved.

// Package httpserver exposes the agent's control surface: bias access,
// statistics, the event journal and a restart hook.
package httpserver

import (
	"github.com/SonyResearch/metavision-driver/pkg/agent/journal"
	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"
)

// BiasResponse reports the value of one bias parameter as it is in effect
// on the sensor, which may differ from what was requested.
type BiasResponse struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// BiasRequest is the body of a bias write.
type BiasRequest struct {
	Value int `json:"value"`
}

// InfoResponse describes the camera behind this agent.
type InfoResponse struct {
	Serial   string `json:"serial"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	State    string `json:"state"`
	Dispatch string `json:"dispatch"`
}

// StatsResponse is one snapshot of the acquisition pipeline.
type StatsResponse struct {
	Serial     string       `json:"serial"`
	State      string       `json:"state"`
	QueueDepth int          `json:"queue_depth"`
	Report     stats.Report `json:"report"`
}

// EventsResponse carries journal records matching a query.
type EventsResponse struct {
	Total   int              `json:"total"`
	Records []journal.Record `json:"records"`
}

// VersionResponse reports the agent build.
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	BuildTime string `json:"build_time"`
}

// StatusResponse acknowledges an action without further payload.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse carries a request failure.
type ErrorResponse struct {
	Error string `json:"error"`
}
