// Copyright (c) Sony Research Inc. All rights reserved.

// Package event defines the change-event data unit produced by the sensor.
package event

// Polarity of a change event: the direction the pixel brightness crossed
// the contrast threshold.
const (
	PolarityOff = 0
	PolarityOn  = 1
)

// Event is a single sensor change event. Timestamps are microseconds on the
// camera clock, strictly non-decreasing within a batch. Immutable once
// produced.
type Event struct {
	T int64  // timestamp in microseconds
	X uint16 // pixel column
	Y uint16 // pixel row
	P uint8  // PolarityOff or PolarityOn
}

// Batch is a contiguous run of events delivered together by the hardware
// layer. In direct dispatch it is only valid for the duration of the
// callback; the queued path copies it before returning.
type Batch []Event

// Duration returns the time span covered by the batch in microseconds,
// 0 for batches with fewer than two events.
func (b Batch) Duration() int64 {
	if len(b) < 2 {
		return 0
	}
	return b[len(b)-1].T - b[0].T
}

// Clone returns a copy of the batch backed by freshly allocated storage,
// sized exactly to the batch length.
func (b Batch) Clone() Batch {
	if len(b) == 0 {
		return nil
	}
	c := make(Batch, len(b))
	copy(c, b)
	return c
}
