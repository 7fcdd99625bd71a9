// Copyright (c) Sony Research Inc. All rights reserved.

// Package stats tracks event throughput over a rolling report interval.
package stats

import (
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"

	"go.uber.org/zap"
)

// Report is the summary emitted once per interval crossing. Rates are in
// events per microsecond, which reads as millions of events per second.
type Report struct {
	AvgRateMevs   float64 `json:"avg_rate_mevs"`
	MaxRateMevs   float64 `json:"max_rate_mevs"`
	AvgMsgSize    float64 `json:"avg_msg_size"`
	PercentOn     int     `json:"percent_on"`
	MaxQueueDepth int     `json:"max_queue_depth"`
	TotalEvents   uint64  `json:"total_events"`
	IntervalEnd   int64   `json:"interval_end"` // camera time, microseconds
}

// Aggregator accumulates throughput statistics between reports.
//
// Single-writer contract: Update, NoteSent and NoteQueueDepth must all be
// called from the one goroutine that owns event processing (the sensor
// callback goroutine in direct dispatch, the processing goroutine in queued
// dispatch). The accumulators are therefore unsynchronized. LastReport is
// safe to call from any goroutine.
type Aggregator struct {
	interval int64 // report interval, microseconds of camera time

	maxRate         float64
	totalEvents     uint64
	totalTime       float64
	totalMsgsSent   uint64
	totalEventsSent uint64
	eventCount      [2]uint64
	maxQueueDepth   int
	lastReportTime  int64

	onReport func(Report)

	mu         sync.Mutex
	lastReport Report
}

// New creates an aggregator reporting once per interval of camera time.
// onReport may be nil; when set it runs on the processing goroutine after
// each report is emitted.
func New(interval time.Duration, onReport func(Report)) *Aggregator {
	return &Aggregator{
		interval: interval.Microseconds(),
		onReport: onReport,
	}
}

// Update folds one non-empty batch into the running statistics and emits a
// report when the batch's last timestamp crosses the report boundary. The
// returned report is nil when no boundary was crossed.
func (a *Aggregator) Update(b event.Batch) *Report {
	if len(b) == 0 {
		return nil
	}

	tEnd := b[len(b)-1].T
	n := len(b)
	dt := float64(tEnd - b[0].T)
	rate := 0.0
	if dt != 0 {
		rate = float64(n) / dt
	}
	if rate > a.maxRate {
		a.maxRate = rate
	}
	a.totalEvents += uint64(n)
	a.totalTime += dt
	for i := range b {
		a.eventCount[b[i].P&1]++
	}

	if tEnd <= a.lastReportTime+a.interval {
		return nil
	}
	return a.emit(tEnd)
}

func (a *Aggregator) emit(tEnd int64) *Report {
	avgRate := 0.0
	if a.totalTime > 0 {
		avgRate = float64(a.totalEvents) / a.totalTime
	}
	avgSize := 0.0
	if a.totalMsgsSent != 0 {
		avgSize = float64(a.totalEventsSent) / float64(a.totalMsgsSent)
	}
	totCount := a.eventCount[0] + a.eventCount[1]
	if totCount == 0 {
		totCount = 1
	}
	pctOn := int(100 * a.eventCount[1] / totCount)

	r := Report{
		AvgRateMevs:   avgRate,
		MaxRateMevs:   a.maxRate,
		AvgMsgSize:    avgSize,
		PercentOn:     pctOn,
		MaxQueueDepth: a.maxQueueDepth,
		TotalEvents:   a.totalEvents,
		IntervalEnd:   tEnd,
	}

	logger.Logger.Info("event rate report",
		zap.Float64("avg_mevs", r.AvgRateMevs),
		zap.Float64("max_mevs", r.MaxRateMevs),
		zap.Float64("out_size_ev", r.AvgMsgSize),
		zap.Int("percent_on", r.PercentOn),
		zap.Int("max_queue_depth", r.MaxQueueDepth))

	// Advance by exactly one interval rather than to tEnd so the report
	// phase stays aligned with the camera clock.
	a.lastReportTime += a.interval
	a.maxRate = 0
	a.totalEvents = 0
	a.totalTime = 0
	a.totalMsgsSent = 0
	a.totalEventsSent = 0
	a.eventCount[0] = 0
	a.eventCount[1] = 0
	a.maxQueueDepth = 0

	a.mu.Lock()
	a.lastReport = r
	a.mu.Unlock()

	if a.onReport != nil {
		a.onReport(r)
	}
	return &r
}

// NoteSent records one published message of numEvents events.
func (a *Aggregator) NoteSent(numEvents int) {
	a.totalMsgsSent++
	a.totalEventsSent += uint64(numEvents)
}

// NoteQueueDepth records the queue depth observed at a dequeue.
func (a *Aggregator) NoteQueueDepth(depth int) {
	if depth > a.maxQueueDepth {
		a.maxQueueDepth = depth
	}
}

// LastReport returns a copy of the most recently emitted report. The zero
// Report means nothing has been emitted yet.
func (a *Aggregator) LastReport() Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastReport
}
