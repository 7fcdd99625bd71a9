// Copyright (c) Sony Research Inc. All rights reserved.

package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"
)

type fakeDevice struct {
	mu           sync.Mutex
	serial       string
	biases       map[string]int
	running      bool
	startErr     error
	startCalls   int
	stopCalls    int
	setBiasCalls int
	syncMode     device.SyncMode

	eventCB  device.EventCallback
	statusCB device.StatusCallback
	errorCB  device.ErrorCallback
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		serial: "00042",
		biases: map[string]int{
			"bias_diff":     300,
			"bias_diff_on":  384,
			"bias_diff_off": 222,
		},
	}
}

func (d *fakeDevice) GetBias(name string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.biases[name]
	if !ok {
		return 0, device.ErrUnknownBias
	}
	return v, nil
}

func (d *fakeDevice) SetBias(name string, value int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.biases[name]; !ok {
		return 0, device.ErrUnknownBias
	}
	d.setBiasCalls++
	d.biases[name] = value
	return value, nil
}

func (d *fakeDevice) LoadBiases(path string) error { return errors.New("no such file") }
func (d *fakeDevice) SaveBiases(path string) error { return nil }
func (d *fakeDevice) SerialNumber() string         { return d.serial }
func (d *fakeDevice) Geometry() (int, int)         { return 640, 480 }

func (d *fakeDevice) SetSyncMode(mode device.SyncMode) error {
	d.syncMode = mode
	return nil
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startCalls++
	if d.startErr != nil {
		return d.startErr
	}
	d.running = true
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopCalls++
	if !d.running {
		return device.ErrNotRunning
	}
	d.running = false
	return nil
}

func (d *fakeDevice) AddEventCallback(cb device.EventCallback) int   { d.eventCB = cb; return 1 }
func (d *fakeDevice) RemoveEventCallback(id int)                     { d.eventCB = nil }
func (d *fakeDevice) AddStatusCallback(cb device.StatusCallback) int { d.statusCB = cb; return 2 }
func (d *fakeDevice) RemoveStatusCallback(id int)                    { d.statusCB = nil }
func (d *fakeDevice) AddErrorCallback(cb device.ErrorCallback) int   { d.errorCB = cb; return 3 }
func (d *fakeDevice) RemoveErrorCallback(id int)                     { d.errorCB = nil }

// fire plays the hardware callback goroutine delivering one batch.
func (d *fakeDevice) fire(b event.Batch) {
	if d.eventCB != nil {
		d.eventCB(b)
	}
}

type fakeProvider struct {
	dev     *fakeDevice
	openErr error
	serial  string
}

func (p *fakeProvider) Open(serial string) (device.Device, error) {
	p.serial = serial
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.dev, nil
}

type fakeSink struct {
	mu      sync.Mutex
	batches []event.Batch
	total   int
	alive   bool
}

func newFakeSink() *fakeSink { return &fakeSink{alive: true} }

func (s *fakeSink) Publish(b event.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b.Clone())
	s.total += len(b)
}

func (s *fakeSink) KeepRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *fakeSink) totalEvents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func makeBatch(n int, t0 int64) event.Batch {
	b := make(event.Batch, n)
	for i := range b {
		b[i] = event.Event{T: t0 + int64(i), P: uint8(i % 2)}
	}
	return b
}

func testConfig(mode DispatchMode) Config {
	return Config{
		SyncMode:     device.SyncStandalone,
		Dispatch:     mode,
		StatInterval: time.Second,
	}
}

func TestController_InvalidSyncModeFailsBeforeStart(t *testing.T) {
	dev := newFakeDevice()
	cfg := testConfig(DispatchDirect)
	cfg.SyncMode = "invalid"
	c := NewController(&fakeProvider{dev: dev}, cfg, nil, nil)

	err := c.Initialize()
	if !errors.Is(err, device.ErrInvalidSyncMode) {
		t.Fatalf("Initialize error = %v, want ErrInvalidSyncMode", err)
	}
	if dev.startCalls != 0 {
		t.Errorf("device Start called %d times after config error, want 0", dev.startCalls)
	}
}

func TestController_InitializeBiasFileFailureIsNonFatal(t *testing.T) {
	dev := newFakeDevice()
	cfg := testConfig(DispatchDirect)
	cfg.BiasFile = "/nonexistent/biases.yaml"
	c := NewController(&fakeProvider{dev: dev}, cfg, nil, nil)

	if err := c.Initialize(); err != nil {
		t.Fatalf("Initialize failed on bias file load: %v", err)
	}
	if c.State() != Initialized {
		t.Errorf("state = %s, want initialized", c.State())
	}
}

func TestController_InitializeReadsBackGeometryAndSerial(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchDirect), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	if c.SerialNumber() != "00042" {
		t.Errorf("serial = %q, want 00042", c.SerialNumber())
	}
	w, h := c.Geometry()
	if w != 640 || h != 480 {
		t.Errorf("geometry = %dx%d, want 640x480", w, h)
	}
}

func TestController_OpenFailure(t *testing.T) {
	p := &fakeProvider{openErr: errors.New("no device attached")}
	c := NewController(p, testConfig(DispatchDirect), nil, nil)
	if err := c.Initialize(); err == nil {
		t.Fatal("Initialize succeeded with no device")
	}
	if c.State() != Uninitialized {
		t.Errorf("state = %s after failed initialize, want uninitialized", c.State())
	}
}

func TestController_DirectDispatchPublishesSynchronously(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchDirect), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	sink := newFakeSink()
	if err := c.Start(sink); err != nil {
		t.Fatal(err)
	}

	dev.fire(makeBatch(10, 0))
	dev.fire(event.Batch{}) // empty: silently ignored
	dev.fire(makeBatch(5, 1000))

	// Direct mode publishes on the callback goroutine, so the sink has
	// everything the moment fire returns.
	if got := sink.totalEvents(); got != 15 {
		t.Errorf("sink received %d events, want 15", got)
	}
	if !c.Stop() {
		t.Error("Stop() = false on a running session, want true")
	}
}

func TestController_QueuedDispatchDrainsAll(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchQueued), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	sink := newFakeSink()
	if err := c.Start(sink); err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{10, 5, 20} {
		dev.fire(makeBatch(n, int64(n)*100))
	}

	deadline := time.After(2 * time.Second)
	for sink.totalEvents() < 35 {
		select {
		case <-deadline:
			t.Fatalf("sink received %d events before deadline, want 35", sink.totalEvents())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !c.Stop() {
		t.Error("Stop() = false on a running session, want true")
	}
	if c.QueueDepth() != 0 {
		t.Errorf("queue depth after stop = %d, want 0", c.QueueDepth())
	}
}

func TestController_QueuedBatchIsCopied(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchQueued), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	sink := newFakeSink()
	if err := c.Start(sink); err != nil {
		t.Fatal(err)
	}

	b := makeBatch(4, 100)
	dev.fire(b)
	// The producer's storage is reusable as soon as the callback returns.
	for i := range b {
		b[i].T = -1
	}

	deadline := time.After(2 * time.Second)
	for sink.totalEvents() < 4 {
		select {
		case <-deadline:
			t.Fatal("batch never reached the sink")
		case <-time.After(5 * time.Millisecond):
		}
	}
	sink.mu.Lock()
	got := sink.batches[0][0].T
	sink.mu.Unlock()
	if got != 100 {
		t.Errorf("sink saw mutated producer storage: T = %d, want 100", got)
	}
	c.Stop()
}

func TestController_StopTwice(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchQueued), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(newFakeSink()); err != nil {
		t.Fatal(err)
	}

	if !c.Stop() {
		t.Error("first Stop() = false, want true")
	}
	opsAfterFirst := dev.stopCalls
	if c.Stop() {
		t.Error("second Stop() = true, want false")
	}
	if dev.stopCalls != opsAfterFirst {
		t.Errorf("second Stop performed device operations (%d -> %d stop calls)",
			opsAfterFirst, dev.stopCalls)
	}
}

func TestController_StopFromUninitialized(t *testing.T) {
	c := NewController(&fakeProvider{dev: newFakeDevice()}, testConfig(DispatchDirect), nil, nil)
	if c.Stop() {
		t.Error("Stop() = true on an uninitialized session, want false")
	}
}

func TestController_StartFailureCleanedUpByStop(t *testing.T) {
	dev := newFakeDevice()
	dev.startErr = errors.New("usb gone")
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchQueued), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(newFakeSink()); err == nil {
		t.Fatal("Start succeeded despite device start error")
	}
	// The processing goroutine was already launched; Stop must join it.
	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not join the processing goroutine")
	}
}

func TestController_SetBiasProtected(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchDirect), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}

	got, err := c.SetBias("bias_diff", 5)
	if err != nil {
		t.Fatalf("SetBias(bias_diff) error: %v", err)
	}
	if got != 300 {
		t.Errorf("SetBias(bias_diff, 5) = %d, want unchanged 300", got)
	}
	if dev.setBiasCalls != 0 {
		t.Errorf("device write path invoked %d times for protected bias, want 0", dev.setBiasCalls)
	}
}

func TestController_SetBias(t *testing.T) {
	tests := []struct {
		name    string
		bias    string
		value   int
		want    int
		wantErr error
	}{
		{name: "Change a writable bias", bias: "bias_diff_on", value: 400, want: 400},
		{name: "No-op write", bias: "bias_diff_off", value: 222, want: 222},
		{name: "Unknown bias", bias: "bias_nope", value: 1, wantErr: device.ErrUnknownBias},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchDirect), nil, nil)
			if err := c.Initialize(); err != nil {
				t.Fatal(err)
			}
			got, err := c.SetBias(tt.bias, tt.value)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetBias error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("SetBias = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestController_SaveBiasesWithoutFile(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchDirect), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveBiases(); !errors.Is(err, device.ErrNoBiasFile) {
		t.Errorf("SaveBiases without configured file = %v, want ErrNoBiasFile", err)
	}
}

func TestController_SinkLivenessStopsDrain(t *testing.T) {
	dev := newFakeDevice()
	c := NewController(&fakeProvider{dev: dev}, testConfig(DispatchQueued), nil, nil)
	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	sink := newFakeSink()
	if err := c.Start(sink); err != nil {
		t.Fatal(err)
	}

	sink.mu.Lock()
	sink.alive = false
	sink.mu.Unlock()

	// With the liveness predicate down the loop winds down on its own;
	// Stop must still join it promptly.
	done := make(chan bool, 1)
	go func() { done <- c.Stop() }()
	select {
	case stopped := <-done:
		if !stopped {
			t.Error("Stop() = false on a running session, want true")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop blocked after sink liveness went false")
	}
}
