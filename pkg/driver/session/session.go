// Copyright (c) Sony Research Inc. All rights reserved.

// Package session orchestrates one camera acquisition session: device
// lifecycle, callback registration, dispatch mode and shutdown ordering.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/queue"
	"github.com/SonyResearch/metavision-driver/pkg/driver/stats"

	"go.uber.org/zap"
)

// DispatchMode selects how events travel from the sensor callback to the
// publish sink. Fixed for the lifetime of the session.
type DispatchMode string

const (
	// DispatchDirect computes statistics and publishes synchronously on the
	// sensor callback goroutine. Lowest latency, but a slow sink stalls
	// event ingestion. Only correct with a fast, non-blocking sink.
	DispatchDirect DispatchMode = "direct"
	// DispatchQueued copies each batch into the transfer queue and returns
	// immediately; a dedicated processing goroutine does statistics and
	// publishing. One extra copy per batch, but the callback never waits on
	// downstream latency.
	DispatchQueued DispatchMode = "queued"
)

// State of the session lifecycle.
type State int32

const (
	Uninitialized State = iota
	Initialized
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Recorder journals out-of-band device happenings (status changes, runtime
// errors). May be nil.
type Recorder interface {
	Record(kind, message string, severity int32)
}

// Config for one acquisition session.
type Config struct {
	SerialNumber string          // empty: first available device
	BiasFile     string          // empty: device defaults, saving disabled
	SyncMode     device.SyncMode // standalone, primary or secondary
	Dispatch     DispatchMode
	StatInterval time.Duration // camera-time interval between rate reports
}

// Biases on this list are never written through to the sensor; a set
// request logs a warning and returns the value currently in effect.
var protectedBiases = map[string]struct{}{
	"bias_diff": {},
}

// Controller drives one device through the
// Uninitialized -> Initialized -> Running -> Stopped lifecycle.
//
// The mutex guards lifecycle transitions and bias access only. The event
// data path (callbacks, queue, stats) is deliberately outside it: the
// transfer queue has its own lock and the statistics aggregator is
// single-writer by dispatch-mode construction.
type Controller struct {
	mu       sync.Mutex
	provider device.Provider
	cfg      Config
	recorder Recorder

	dev    device.Device
	state  State
	serial string
	width  int
	height int

	stats *stats.Aggregator
	queue *queue.TransferQueue
	sink  device.Sink

	eventCBID  int
	statusCBID int
	errorCBID  int
	cbActive   bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewController creates a session controller in the Uninitialized state.
// onReport and recorder may be nil.
func NewController(provider device.Provider, cfg Config, recorder Recorder, onReport func(stats.Report)) *Controller {
	if cfg.StatInterval <= 0 {
		cfg.StatInterval = time.Second
	}
	if cfg.Dispatch == "" {
		cfg.Dispatch = DispatchDirect
	}
	return &Controller{
		provider: provider,
		cfg:      cfg,
		recorder: recorder,
		stats:    stats.New(cfg.StatInterval, onReport),
		queue:    queue.New(),
	}
}

// Initialize acquires the device, applies the bias file (best effort),
// reads back serial and geometry, configures the sync mode and registers
// all callbacks. Any failure other than the bias file load is fatal.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Uninitialized {
		return fmt.Errorf("initialize called in state %s", c.state)
	}

	dev, err := c.provider.Open(c.cfg.SerialNumber)
	if err != nil {
		logger.Logger.Error("could not open device", zap.Error(err))
		return fmt.Errorf("could not initialize camera: %w", err)
	}
	c.dev = dev

	if c.cfg.BiasFile != "" {
		if err := dev.LoadBiases(c.cfg.BiasFile); err != nil {
			logger.Logger.Warn("reading bias file failed, continuing with default biases",
				zap.String("file", c.cfg.BiasFile), zap.Error(err))
		}
	} else {
		logger.Logger.Info("no bias file provided, using device defaults")
	}

	// Read back in case the config left the serial empty.
	c.serial = dev.SerialNumber()
	c.width, c.height = dev.Geometry()
	logger.Logger.Info("camera acquired",
		zap.String("serial", c.serial),
		zap.Int("width", c.width),
		zap.Int("height", c.height))

	switch c.cfg.SyncMode {
	case device.SyncStandalone, device.SyncPrimary, device.SyncSecondary:
	default:
		return fmt.Errorf("%w: %q", device.ErrInvalidSyncMode, c.cfg.SyncMode)
	}
	if err := dev.SetSyncMode(c.cfg.SyncMode); err != nil {
		return fmt.Errorf("could not set sync mode %s: %w", c.cfg.SyncMode, err)
	}

	c.statusCBID = dev.AddStatusCallback(c.onStatusChange)
	c.errorCBID = dev.AddErrorCallback(c.onRuntimeError)
	switch c.cfg.Dispatch {
	case DispatchQueued:
		c.eventCBID = dev.AddEventCallback(c.queuedEventCallback)
	default:
		c.eventCBID = dev.AddEventCallback(c.directEventCallback)
	}
	c.cbActive = true

	c.state = Initialized
	return nil
}

// Start stores the publish sink, launches the processing goroutine in
// queued dispatch and starts the device. On a device start failure the
// already-launched goroutine is left for a subsequent Stop to clean up.
func (c *Controller) Start(sink device.Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Initialized {
		return fmt.Errorf("start called in state %s", c.state)
	}
	c.sink = sink

	if c.cfg.Dispatch == DispatchQueued {
		c.quit = make(chan struct{})
		c.wg.Add(1)
		go c.processingLoop()
	}

	if err := c.dev.Start(); err != nil {
		logger.Logger.Error("device start failed", zap.Error(err))
		return fmt.Errorf("device start failed: %w", err)
	}

	c.state = Running
	return nil
}

// Stop halts the session. Order matters: stop the device first so no new
// callbacks arrive, then deregister the callbacks, then shut down and join
// the processing goroutine. Idempotent and safe from any state; returns
// whether a running device was actually stopped.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Stopped {
		return false
	}

	stopped := false
	if c.dev != nil {
		if err := c.dev.Stop(); err == nil {
			stopped = true
		} else if !errors.Is(err, device.ErrNotRunning) {
			logger.Logger.Warn("device stop failed", zap.Error(err))
		}
	}

	if c.cbActive {
		c.dev.RemoveEventCallback(c.eventCBID)
		c.dev.RemoveStatusCallback(c.statusCBID)
		c.dev.RemoveErrorCallback(c.errorCBID)
		c.cbActive = false
	}

	if c.quit != nil {
		close(c.quit)
		c.queue.Shutdown()
		c.wg.Wait()
		c.quit = nil
	}

	c.state = Stopped
	return stopped
}

// GetBias reads a bias parameter from the device.
func (c *Controller) GetBias(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return 0, fmt.Errorf("no device: session is %s", c.state)
	}
	return c.dev.GetBias(name)
}

// SetBias writes a bias parameter and returns the value that took hold.
// Protected names are never written; the current value is returned
// unchanged. Unknown names surface device.ErrUnknownBias.
func (c *Controller) SetBias(name string, value int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return 0, fmt.Errorf("no device: session is %s", c.state)
	}

	if _, protected := protectedBiases[name]; protected {
		logger.Logger.Warn("ignoring change to protected bias", zap.String("name", name))
		return c.dev.GetBias(name)
	}

	prev, err := c.dev.GetBias(name)
	if err != nil {
		return 0, err
	}
	if value != prev {
		if _, err := c.dev.SetBias(name, value); err != nil {
			return 0, err
		}
	}
	// Read back what actually took hold; hardware may clamp.
	now, err := c.dev.GetBias(name)
	if err != nil {
		return 0, err
	}
	if now != prev {
		logger.Logger.Info("changed bias",
			zap.String("name", name), zap.Int("from", prev),
			zap.Int("requested", value), zap.Int("to", now))
	}
	return now, nil
}

// SaveBiases writes the current bias values back to the configured file.
func (c *Controller) SaveBiases() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return fmt.Errorf("no device: session is %s", c.state)
	}
	if c.cfg.BiasFile == "" {
		logger.Logger.Warn("no bias file specified at startup, no biases saved")
		return device.ErrNoBiasFile
	}
	if err := c.dev.SaveBiases(c.cfg.BiasFile); err != nil {
		logger.Logger.Warn("failed to write bias file", zap.Error(err))
		return err
	}
	logger.Logger.Info("biases written to file", zap.String("file", c.cfg.BiasFile))
	return nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SerialNumber returns the serial read back from the device at initialize.
func (c *Controller) SerialNumber() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serial
}

// Geometry returns the sensor dimensions read back at initialize.
func (c *Controller) Geometry() (width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.height
}

// Dispatch returns the configured dispatch mode.
func (c *Controller) Dispatch() DispatchMode {
	return c.cfg.Dispatch
}

// QueueDepth returns the current transfer queue depth (always 0 in direct
// dispatch).
func (c *Controller) QueueDepth() int {
	return c.queue.Len()
}

// StatsReport returns the most recently emitted statistics report.
func (c *Controller) StatsReport() stats.Report {
	return c.stats.LastReport()
}
