// Package monitor is the control surface tying the heart-rate connection,
// the rate source and the beat scheduler together. The CLI, the hotkey and
// the HTTP server all drive the system through a Controller.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/chaz8081/notabot/internal/beat"
	"github.com/chaz8081/notabot/internal/ble"
	"github.com/chaz8081/notabot/internal/rate"
)

var (
	// ErrNotConnected is returned by Start when no heart-rate monitor is
	// connected. Scan, select and connect first.
	ErrNotConnected = errors.New("monitor: no heart rate monitor connected, scan and select a device first")
	// ErrDemoMode is returned for device operations in demo mode.
	ErrDemoMode = errors.New("monitor: not available in demo mode")
	// ErrNoSuchDevice is returned by SelectIndex for an out-of-range index.
	ErrNoSuchDevice = errors.New("monitor: no such device in the last scan")
)

// Status is a snapshot of the whole system.
type Status struct {
	Label                  string              `json:"label"`
	Peripheral             *ble.PeripheralRef  `json:"peripheral,omitempty"`
	Connection             ble.ConnectionState `json:"connection"`
	CharacteristicNotFound bool                `json:"characteristic_not_found"`
	Scheduler              beat.State          `json:"scheduler"`
	BPM                    int                 `json:"bpm"`
	Latest                 *rate.Sample        `json:"latest,omitempty"`
	Beats                  uint64              `json:"beats"`
	Demo                   bool                `json:"demo"`
}

// Options wires a Controller. Manager and Scanner are nil in demo mode.
type Options struct {
	Manager     *ble.Manager
	Scanner     *ble.Scanner
	Source      *rate.Source
	Scheduler   *beat.Scheduler
	ScanTimeout time.Duration
}

// Controller serializes user-facing commands.
type Controller struct {
	ctx         context.Context
	manager     *ble.Manager
	scanner     *ble.Scanner
	source      *rate.Source
	scheduler   *beat.Scheduler
	scanTimeout time.Duration

	mu        sync.Mutex
	devices   []ble.Device
	listeners []func(Status)
}

// New returns a Controller. The scheduler runs under ctx, so cancelling it
// stops the beat loop regardless of who started it.
func New(ctx context.Context, opts Options) *Controller {
	c := &Controller{
		ctx:         ctx,
		manager:     opts.Manager,
		scanner:     opts.Scanner,
		source:      opts.Source,
		scheduler:   opts.Scheduler,
		scanTimeout: opts.ScanTimeout,
	}
	if c.manager != nil {
		c.manager.OnTeardown(func(cause error) {
			if c.scheduler.State() == beat.Running {
				slog.Info("[CTL] connection closed, stopping beat loop", "cause", cause)
			}
			c.scheduler.Stop()
			c.notify()
		})
	}
	return c
}

// Demo reports whether the controller runs without a heart-rate monitor.
func (c *Controller) Demo() bool { return c.manager == nil }

// OnChange registers fn to receive a Status after every state-changing
// command.
func (c *Controller) OnChange(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify() {
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	st := c.Status()
	for _, fn := range listeners {
		fn(st)
	}
}

// Scan lists nearby peripherals and remembers them for SelectIndex.
func (c *Controller) Scan(ctx context.Context) ([]ble.Device, error) {
	if c.Demo() {
		return nil, ErrDemoMode
	}
	devices, err := c.scanner.Scan(ctx, c.scanTimeout)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()
	return devices, nil
}

// Devices returns the result of the last scan.
func (c *Controller) Devices() []ble.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ble.Device(nil), c.devices...)
}

// SelectPeripheral chooses the peripheral to connect to.
func (c *Controller) SelectPeripheral(ref ble.PeripheralRef) error {
	if c.Demo() {
		return ErrDemoMode
	}
	if err := c.manager.Registry().Select(ref); err != nil {
		return err
	}
	c.notify()
	return nil
}

// SelectIndex chooses the i-th device of the last scan.
func (c *Controller) SelectIndex(i int) error {
	devices := c.Devices()
	if i < 0 || i >= len(devices) {
		return fmt.Errorf("%w: %d", ErrNoSuchDevice, i)
	}
	return c.SelectPeripheral(devices[i].Ref())
}

// Connect connects to the selected peripheral, retrying until ctx is done.
func (c *Controller) Connect(ctx context.Context) error {
	if c.Demo() {
		return ErrDemoMode
	}
	err := c.manager.Connect(ctx)
	c.notify()
	return err
}

// Start begins heart-rate monitoring, if needed, and the beat loop.
func (c *Controller) Start() error {
	if !c.Demo() {
		switch c.manager.Registry().State() {
		case ble.Disconnected, ble.Connecting:
			return ErrNotConnected
		}
		if !c.manager.Monitoring() {
			if err := c.manager.Monitor(c.source.Observe); err != nil {
				c.notify()
				return err
			}
		}
	}
	if err := c.scheduler.Start(c.ctx); err != nil {
		return err
	}
	c.notify()
	return nil
}

// Stop halts the beat loop. The connection and notifications stay up.
func (c *Controller) Stop() {
	c.scheduler.Stop()
	c.notify()
}

// Toggle starts the beat loop when idle and stops it when running.
func (c *Controller) Toggle() error {
	if c.scheduler.State() == beat.Running {
		c.Stop()
		return nil
	}
	return c.Start()
}

// Disconnect drops the connection, which also stops the beat loop.
func (c *Controller) Disconnect() {
	if c.Demo() {
		return
	}
	c.manager.Disconnect()
	c.notify()
}

// History returns the retained heart-rate samples, oldest first.
func (c *Controller) History() []rate.Sample {
	return c.source.History()
}

// Status returns a snapshot of the system.
func (c *Controller) Status() Status {
	st := Status{
		Label:     "Demo",
		Scheduler: c.scheduler.State(),
		Beats:     c.scheduler.Beats(),
		Demo:      c.Demo(),
	}
	if bpm, ok := c.source.Current(); ok {
		st.BPM = bpm
	}
	if s, ok := c.source.Latest(); ok {
		st.Latest = &s
	}
	if !c.Demo() {
		reg := c.manager.Registry()
		st.Label = reg.Label()
		st.Connection = reg.State()
		st.CharacteristicNotFound = reg.CharacteristicNotFound()
		if ref, ok := reg.Peripheral(); ok {
			st.Peripheral = &ref
		}
	}
	return st
}
