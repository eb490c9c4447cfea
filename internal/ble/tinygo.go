package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth. On macOS addresses are
// CoreBluetooth UUIDs rather than MAC addresses; both are carried as the
// Address string.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	enableMu sync.Mutex
	enabled  bool

	// live connections keyed by lower-cased address, so the adapter-level
	// connect handler can mark them dead.
	connections *hashmap.Map[string, *tinyGoConnection]
}

// NewTinyGoAdapter creates a new BLE adapter on the system default adapter.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{
		adapter:     bluetooth.DefaultAdapter,
		connections: hashmap.New[string, *tinyGoConnection](),
	}
}

// Enable powers up the adapter. Calls after the first success are no-ops.
func (a *TinyGoAdapter) Enable() error {
	a.enableMu.Lock()
	defer a.enableMu.Unlock()
	if a.enabled {
		return nil
	}
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	a.enabled = true

	// tinygo/bluetooth fires this with connected=false when a peripheral
	// drops; the keep-alive loop picks that up through IsAlive.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		key := strings.ToLower(device.Address.String())
		conn, ok := a.connections.Get(key)
		if !ok {
			return
		}
		conn.alive.Store(connected)
		if !connected {
			a.connections.Del(key)
		}
	})
	return nil
}

func (a *TinyGoAdapter) Scan(ctx context.Context, found func(Device)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			a.adapter.StopScan()
		case <-done:
		}
	}()

	err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		found(Device{
			Name:    result.LocalName(),
			Address: result.Address.String(),
			RSSI:    int(result.RSSI),
		})
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("ble: scan: %w", err)
	}
	return ctx.Err()
}

func (a *TinyGoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks with its own timeout; wrap it so
	// ctx cancellation returns immediately.
	device, err := dialContext(ctx,
		func() (bluetooth.Device, error) {
			return a.adapter.Connect(addr, bluetooth.ConnectionParams{})
		},
		func(d bluetooth.Device) {
			if err := d.Disconnect(); err != nil {
				slog.Debug("[BLE] drop late connection", "address", address, "error", err)
			}
		})
	if err != nil {
		return nil, err
	}
	conn := &tinyGoConnection{
		device: device,
		chars:  make(map[string]bluetooth.DeviceCharacteristic),
	}
	conn.alive.Store(true)
	a.connections.Set(strings.ToLower(address), conn)
	return conn, nil
}

// dialContext runs dial in the background and returns when it finishes or
// ctx is done. A dial that succeeds after ctx ended is handed to drop.
func dialContext[T any](ctx context.Context, dial func() (T, error), drop func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := dial()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				drop(r.v)
			}
		}()
		var zero T
		return zero, ctx.Err()
	}
}

var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoConnection struct {
	device bluetooth.Device
	alive  atomic.Bool

	mu    sync.Mutex
	chars map[string]bluetooth.DeviceCharacteristic // by normalized UUID
}

func (c *tinyGoConnection) IsAlive() bool { return c.alive.Load() }

func (c *tinyGoConnection) Services() ([]Service, error) {
	svcs, err := c.device.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: discover services: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Service, 0, len(svcs))
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: discover characteristics of %s: %w", svc.UUID(), err)
		}
		s := Service{UUID: svc.UUID().String()}
		for _, ch := range chars {
			id := ch.UUID().String()
			c.chars[NormalizeUUID(id)] = ch
			s.Characteristics = append(s.Characteristics, id)
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *tinyGoConnection) characteristic(id string) (bluetooth.DeviceCharacteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars[NormalizeUUID(id)]
	if !ok {
		return bluetooth.DeviceCharacteristic{}, &NotFoundError{Resource: "characteristic", UUIDs: []string{id}}
	}
	return ch, nil
}

func (c *tinyGoConnection) Subscribe(charUUID string, cb func([]byte)) error {
	ch, err := c.characteristic(charUUID)
	if err != nil {
		return err
	}
	return ch.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}

func (c *tinyGoConnection) Unsubscribe(charUUID string) error {
	ch, err := c.characteristic(charUUID)
	if err != nil {
		return err
	}
	return ch.EnableNotifications(nil)
}

func (c *tinyGoConnection) Disconnect() error {
	c.alive.Store(false)
	return c.device.Disconnect()
}
