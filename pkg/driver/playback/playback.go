// Copyright (c) Sony Research Inc. All rights reserved.

// Package playback replays recorded event streams through the regular
// device interface, so the whole pipeline can run against a file instead
// of attached hardware.
package playback

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/SonyResearch/metavision-driver/logger"
	"github.com/SonyResearch/metavision-driver/pkg/driver/device"
	"github.com/SonyResearch/metavision-driver/pkg/driver/event"

	"go.uber.org/zap"
)

// defaultBatchSpan is the camera time covered by one replayed batch.
const defaultBatchSpan = 10 * time.Millisecond

// Recording is a fully loaded event file, already cut into batches.
type Recording struct {
	Header  Header
	Batches []event.Batch
}

// Load reads a recording, skipping blank lines and unknown comments.
// Events are grouped into batches of batchSpan camera time, preserving
// file order.
func Load(path string, batchSpan time.Duration) (*Recording, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	span := batchSpan.Microseconds()
	if span <= 0 {
		span = defaultBatchSpan.Microseconds()
	}

	rec := &Recording{Header: Header{Serial: "FILE0001", Width: 640, Height: 480}}

	scanner := bufio.NewScanner(file)
	// 1MB buffer for long lines
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	var cur event.Batch
	var batchStart int64
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			parseHeaderLine(line, &rec.Header)
			continue
		}
		ev, err := parseEventLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(cur) == 0 {
			batchStart = ev.T
		} else if ev.T-batchStart >= span {
			rec.Batches = append(rec.Batches, cur)
			cur = nil
			batchStart = ev.T
		}
		cur = append(cur, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning recording: %w", err)
	}
	if len(cur) > 0 {
		rec.Batches = append(rec.Batches, cur)
	}
	return rec, nil
}

// Device replays one recording through device.Device. Bias values are
// carried for API compatibility but have no effect on the recorded data.
type Device struct {
	rec      *Recording
	realtime bool

	mu       sync.Mutex
	biases   map[string]int
	running  bool
	nextCBID int
	eventCBs map[int]device.EventCallback
	statusCB map[int]device.StatusCallback
	errorCB  map[int]device.ErrorCallback

	quit chan struct{}
	wg   sync.WaitGroup
}

// Provider opens playback devices over one recording file.
type Provider struct {
	Path      string
	BatchSpan time.Duration
	// Realtime paces delivery at recorded speed; otherwise the file is
	// replayed as fast as the consumer accepts it.
	Realtime bool
}

func (p *Provider) Open(serial string) (device.Device, error) {
	rec, err := Load(p.Path, p.BatchSpan)
	if err != nil {
		return nil, fmt.Errorf("could not load recording %s: %w", p.Path, err)
	}
	if serial != "" && serial != rec.Header.Serial {
		return nil, fmt.Errorf("recording %s has serial %s, not %s", p.Path, rec.Header.Serial, serial)
	}
	return NewDevice(rec, p.Realtime), nil
}

func NewDevice(rec *Recording, realtime bool) *Device {
	return &Device{
		rec:      rec,
		realtime: realtime,
		biases:   map[string]int{"bias_diff": 300, "bias_diff_on": 384, "bias_diff_off": 222},
		eventCBs: make(map[int]device.EventCallback),
		statusCB: make(map[int]device.StatusCallback),
		errorCB:  make(map[int]device.ErrorCallback),
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

func (d *Device) LoadBiases(path string) error { return nil }

func (d *Device) SaveBiases(path string) error {
	return fmt.Errorf("playback device has no biases to save")
}

func (d *Device) SerialNumber() string { return d.rec.Header.Serial }

func (d *Device) Geometry() (int, int) { return d.rec.Header.Width, d.rec.Header.Height }

func (d *Device) SetSyncMode(mode device.SyncMode) error {
	if mode != device.SyncStandalone {
		return fmt.Errorf("playback device only supports standalone sync mode, got %s", mode)
	}
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("playback already running")
	}
	d.running = true
	d.quit = make(chan struct{})
	d.mu.Unlock()

	d.notifyStatus(device.StatusStarted)
	d.wg.Add(1)
	go d.replay()
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
	d.statusCB[d.nextCBID] = cb
	return d.nextCBID
}

func (d *Device) RemoveStatusCallback(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.statusCB, id)
}

func (d *Device) AddErrorCallback(cb device.ErrorCallback) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextCBID++
	d.errorCB[d.nextCBID] = cb
	return d.nextCBID
}

func (d *Device) RemoveErrorCallback(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.errorCB, id)
}

func (d *Device) notifyStatus(s device.Status) {
	d.mu.Lock()
	cbs := make([]device.StatusCallback, 0, len(d.statusCB))
	for _, cb := range d.statusCB {
		cbs = append(cbs, cb)
	}
	d.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

// replay delivers the recorded batches in file order, then idles until
// stopped, the way a from-file camera keeps its handle open at end of
// stream.
func (d *Device) replay() {
	defer d.wg.Done()

	prevEnd := int64(-1)
	for _, b := range d.rec.Batches {
		if d.realtime && prevEnd >= 0 && len(b) > 0 {
			gap := time.Duration(b[0].T-prevEnd) * time.Microsecond
			if gap > 0 {
				select {
				case <-d.quit:
					return
				case <-time.After(gap):
				}
			}
		}
		select {
		case <-d.quit:
			return
		default:
		}

		d.mu.Lock()
		cbs := make([]device.EventCallback, 0, len(d.eventCBs))
		for _, cb := range d.eventCBs {
			cbs = append(cbs, cb)
		}
		d.mu.Unlock()
		for _, cb := range cbs {
			cb(b)
		}
		if len(b) > 0 {
			prevEnd = b[len(b)-1].T
		}
	}

	logger.Logger.Info("recording replay finished",
		zap.Int("batches", len(d.rec.Batches)))
	<-d.quit
}
