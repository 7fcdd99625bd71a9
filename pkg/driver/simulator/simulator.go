// Copyright (c) Sony Research Inc. All rights reserved.

// Package simulator provides a synthetic event-camera device. It stands in
// for attached hardware when the agent runs without a sensor and backs the
// pipeline tests: a generator goroutine plays the role of the vendor SDK's
// callback thread.
package simulator

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Default bias table of a Gen3.1 VGA sensor. The simulator accepts writes
// to any of these names and rejects everything else.
var defaultBiases = map[string]int{
	"bias_diff":     300,
	"bias_diff_on":  384,
	"bias_diff_off": 222,
	"bias_fo":       1477,
	"bias_hpf":      1499,
	"bias_pr":       1250,
	"bias_refr":     1500,
}

// Config for one simulated device.
type Config struct {
	Serial     string
	Width      int
	Height     int
	EventRate  int           // events per second across the whole sensor
	BatchSpan  time.Duration // camera time covered by one delivered batch
	OnFraction float64       // share of ON-polarity events, 0..1
}

func (c *Config) applyDefaults() {
	if c.Serial == "" {
		c.Serial = "SIM0001"
	}
	if c.Width == 0 {
		c.Width = 640
	}
	if c.Height == 0 {
		c.Height = 480
	}
	if c.EventRate == 0 {
		c.EventRate = 100_000
	}
	if c.BatchSpan == 0 {
		c.BatchSpan = 10 * time.Millisecond
	}
	if c.OnFraction == 0 {
		c.OnFraction = 0.5
	}
}

// Device is a synthetic sensor implementing device.Device.
type Device struct {
	cfg Config

	mu       sync.Mutex
	biases   map[string]int
	syncMode device.SyncMode
	running  bool

	nextCBID  int
	eventCBs  map[int]device.EventCallback
	statusCBs map[int]device.StatusCallback
	errorCBs  map[int]device.ErrorCallback

	quit chan struct{}
	wg   sync.WaitGroup
}

// Provider opens simulated devices. Every Open returns a fresh device; the
// requested serial is adopted so multi-camera setups can be simulated.
type Provider struct {
	Config Config
}

func (p *Provider) Open(serial string) (device.Device, error) {
	cfg := p.Config
	if serial != "" {
		cfg.Serial = serial
	}
	return New(cfg), nil
}

func New(cfg Config) *Device {
	cfg.applyDefaults()
	biases := make(map[string]int, len(defaultBiases))
	for k, v := range defaultBiases {
		biases[k] = v
	}
	return &Device{
		cfg:       cfg,
		biases:    biases,
		syncMode:  device.SyncStandalone,
		eventCBs:  make(map[int]device.EventCallback),
		statusCBs: make(map[int]device.StatusCallback),
		errorCBs:  make(map[int]device.ErrorCallback),
	}
}

func (d *Device) GetBias(name string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.biases[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", device.ErrUnknownBias, name)
	}
	return v, nil
}

func (d *Device) SetBias(name string, value int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.biases[name]; !ok {
		return 0, fmt.Errorf("%w: %s", device.ErrUnknownBias, name)
	}
	d.biases[name] = value
	return value, nil
}

// biasFile is the on-disk calibration format: a flat name -> value map.
type biasFile struct {
	Biases map[string]int `yaml:"biases"`
}

func (d *Device) LoadBiases(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f biasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("malformed bias file %s: %w", path, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, v := range f.Biases {
		if _, ok := d.biases[name]; !ok {
			return fmt.Errorf("%w: %s", device.ErrUnknownBias, name)
		}
		d.biases[name] = v
	}
	return nil
}

func (d *Device) SaveBiases(path string) error {
	d.mu.Lock()
	biases := make(map[string]int, len(d.biases))
	for k, v := range d.biases {
		biases[k] = v
	}
	d.mu.Unlock()

	data, err := yaml.Marshal(biasFile{Biases: biases})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (d *Device) SerialNumber() string { return d.cfg.Serial }

func (d *Device) Geometry() (int, int) { return d.cfg.Width, d.cfg.Height }

func (d *Device) SetSyncMode(mode device.SyncMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncMode = mode
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("device %s already running", d.cfg.Serial)
	}
	d.running = true
	d.quit = make(chan struct{})
	d.mu.Unlock()

	d.notifyStatus(device.StatusStarted)
	d.wg.Add(1)
	go d.generate()
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return device.ErrNotRunning
	}
	d.running = false
	close(d.quit)
	d.mu.Unlock()

	d.wg.Wait()
	d.notifyStatus(device.StatusStopped)
	return nil
}

func (d *Device) AddEventCallback(cb device.EventCallback) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextCBID++
	d.eventCBs[d.nextCBID] = cb
	return d.nextCBID
}

func (d *Device) RemoveEventCallback(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.eventCBs, id)
}

func (d *Device) AddStatusCallback(cb device.StatusCallback) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextCBID++
	d.statusCBs[d.nextCBID] = cb
	return d.nextCBID
}

func (d *Device) RemoveStatusCallback(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.statusCBs, id)
}

func (d *Device) AddErrorCallback(cb device.ErrorCallback) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextCBID++
	d.errorCBs[d.nextCBID] = cb
	return d.nextCBID
}

func (d *Device) RemoveErrorCallback(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.errorCBs, id)
}

func (d *Device) notifyStatus(s device.Status) {
	d.mu.Lock()
	cbs := make([]device.StatusCallback, 0, len(d.statusCBs))
	for _, cb := range d.statusCBs {
		cbs = append(cbs, cb)
	}
	d.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// generate is the simulated SDK callback thread. It delivers one batch per
// BatchSpan of camera time with uniformly spread timestamps starting at 0,
// the way a freshly started sensor stamps its events.
func (d *Device) generate() {
	defer d.wg.Done()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	span := d.cfg.BatchSpan.Microseconds()
	perBatch := int(int64(d.cfg.EventRate) * span / 1_000_000)
	ticker := time.NewTicker(d.cfg.BatchSpan)
	defer ticker.Stop()

	now := int64(0)
	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
		}

		n := perBatch
		if n <= 0 {
			n = 1
		}
		b := make(event.Batch, n)
		for i := 0; i < n; i++ {
			p := uint8(event.PolarityOff)
			if rng.Float64() < d.cfg.OnFraction {
				p = event.PolarityOn
			}
			b[i] = event.Event{
				T: now + span*int64(i)/int64(n),
				X: uint16(rng.Intn(d.cfg.Width)),
				Y: uint16(rng.Intn(d.cfg.Height)),
				P: p,
			}
		}
		now += span

		d.mu.Lock()
		cbs := make([]device.EventCallback, 0, len(d.eventCBs))
		for _, cb := range d.eventCBs {
			cbs = append(cbs, cb)
		}
		d.mu.Unlock()
		for _, cb := range cbs {
			cb(b)
		}
	}
}

// Inject delivers a runtime error through the registered error callbacks,
// for fault-injection in tests and demos.
func (d *Device) Inject(err error) {
	d.mu.Lock()
	cbs := make([]device.ErrorCallback, 0, len(d.errorCBs))
	for _, cb := range d.errorCBs {
		cbs = append(cbs, cb)
	}
	d.mu.Unlock()
	if len(cbs) == 0 {
		logger.Logger.Warn("injected error with no error callback registered", zap.Error(err))
	}
	for _, cb := range cbs {
		cb(err)
	}
}
