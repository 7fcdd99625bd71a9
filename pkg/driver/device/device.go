// Copyright (c) Sony Research Inc. All rights reserved.

// Package device declares the external collaborators of the acquisition
// core: the sensor device handle, the device provider, and the downstream
// publish sink. The core never talks to vendor SDKs directly; hardware,
// simulator and playback backends all satisfy these interfaces.
package device

import (
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"
)

// SyncMode is the device's role in a multi-camera timestamp
// synchronization topology.
type SyncMode string

const (
	SyncStandalone SyncMode = "standalone"
	SyncPrimary    SyncMode = "primary"
	SyncSecondary  SyncMode = "secondary"
)

// Status is delivered through the status-change callback.
type Status int

const (
	StatusStarted Status = iota
	StatusStopped
)

func (s Status) String() string {
	if s == StatusStarted {
		return "started"
	}
	return "stopped"
}

// EventCallback receives one batch per invocation on the device's own
// callback goroutine. The batch is only valid for the duration of the call;
// implementations that defer processing must copy it first. The callback
// must return quickly or the device may drop events internally.
type EventCallback func(b event.Batch)

// StatusCallback receives device start/stop notifications.
type StatusCallback func(s Status)

// ErrorCallback receives asynchronous runtime errors. Such errors never
// unwind a call in progress; they are reported out of band.
type ErrorCallback func(err error)

// Device is a handle to one sensor. Callback registration returns an id
// used for deregistration. The device serializes invocations of its own
// callbacks; no two run concurrently.
type Device interface {
	// GetBias returns the current value of a bias parameter, or
	// ErrUnknownBias for names the sensor does not expose.
	GetBias(name string) (int, error)
	// SetBias writes a bias parameter and returns the value that actually
	// took hold (hardware may clamp). Unknown names return ErrUnknownBias.
	SetBias(name string, value int) (int, error)
	// LoadBiases applies bias values from a file in the backend's format.
	LoadBiases(path string) error
	// SaveBiases writes the current bias values to a file.
	SaveBiases(path string) error

	SerialNumber() string
	Geometry() (width, height int)
	SetSyncMode(mode SyncMode) error

	Start() error
	Stop() error

	AddEventCallback(cb EventCallback) int
	RemoveEventCallback(id int)
	AddStatusCallback(cb StatusCallback) int
	RemoveStatusCallback(id int)
	AddErrorCallback(cb ErrorCallback) int
	RemoveErrorCallback(id int)
}

// Provider opens device handles. An empty serial means first available.
type Provider interface {
	Open(serial string) (Device, error)
}

// Sink receives processed event batches. Publish gets a batch reference
// valid only for the duration of the call. KeepRunning is the liveness
// predicate the processing loop polls between batches; once it returns
// false the loop drains no further.
type Sink interface {
	Publish(b event.Batch)
	KeepRunning() bool
}
