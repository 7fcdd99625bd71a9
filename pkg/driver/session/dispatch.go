// Copyright (c) Sony Research Inc. All rights reserved.

package session

import (
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"

	"go.uber.org/zap"
)

// dequeueTimeout bounds the processing loop's wait so it notices an
// external shutdown request even without a wake-up.
const dequeueTimeout = time.Second

// directEventCallback runs statistics and the publish sink on the sensor
// callback goroutine. The sink's latency directly delays the next callback.
func (c *Controller) directEventCallback(b event.Batch) {
	if len(b) == 0 {
		return
	}
	c.stats.Update(b)
	c.sink.Publish(b)
	c.stats.NoteSent(len(b))
}

// queuedEventCallback copies the batch away as quickly as possible so
// events are never dropped at the device level, then returns. All
// processing happens on the processing goroutine.
func (c *Controller) queuedEventCallback(b event.Batch) {
	if len(b) == 0 {
		return
	}
	c.queue.Enqueue(b)
}

func (c *Controller) stopping() bool {
	select {
	case <-c.quit:
		return true
	default:
		return false
	}
}

// processingLoop drains the transfer queue one batch at a time until the
// sink's liveness predicate or the session shutdown flag says otherwise. A
// dequeued batch always runs to completion, publish included, before the
// flags are checked again.
func (c *Controller) processingLoop() {
	defer c.wg.Done()

	keep := func() bool { return c.sink.KeepRunning() && !c.stopping() }
	for keep() {
		b, depth, ok := c.queue.Dequeue(dequeueTimeout, keep)
		if !ok {
			continue
		}
		c.stats.NoteQueueDepth(depth)
		c.stats.Update(b)
		c.sink.Publish(b)
		c.stats.NoteSent(len(b))
	}
	logger.Logger.Info("processing loop exited")
}

func (c *Controller) onStatusChange(s device.Status) {
	logger.Logger.Info("camera status changed", zap.String("status", s.String()))
	if c.recorder != nil {
		c.recorder.Record("status", "camera "+s.String(), 0)
	}
}

// Runtime errors are logged and journaled only; they never unwind a call
// in progress. Recovery is the operator's responsibility.
func (c *Controller) onRuntimeError(err error) {
	logger.Logger.Error("camera runtime error", zap.Error(err))
	if c.recorder != nil {
		c.recorder.Record("runtime_error", err.Error(), 2)
	}
}
