package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
)

// ManagerOptions configures the connection manager. Zero fields take the
// defaults in their tags; a zero interval or empty UUID is never valid.
type ManagerOptions struct {
	RetryInterval      time.Duration `default:"2s"` // fixed wait between connect attempts
	KeepAliveInterval  time.Duration `default:"5s"` // link poll period
	ServiceUUID        string        `default:"0000180d-0000-1000-8000-00805f9b34fb"`
	CharacteristicUUID string        `default:"00002a37-0000-1000-8000-00805f9b34fb"`
}

// DefaultManagerOptions returns the default options.
func DefaultManagerOptions() ManagerOptions {
	var opts ManagerOptions
	defaults.SetDefaults(&opts)
	return opts
}

// Manager owns the connection lifecycle of the selected peripheral: connect
// with retry, characteristic resolution, notifications, keep-alive with a
// single reconnect attempt, and teardown.
type Manager struct {
	adapter  Adapter
	registry *Registry
	opts     ManagerOptions

	mu         sync.Mutex
	enabled    bool
	active     bool // an episode is in progress; cleared by teardown only
	conn       Connection
	cancelDial context.CancelFunc
	dial       *dialResult // set while the episode has not connected yet
	stopAlive  context.CancelFunc

	charID     string
	onSample   func(int)
	monitoring bool

	listeners []func(error)
}

// NewManager creates a connection manager. Zero option fields take their
// defaults.
func NewManager(adapter Adapter, registry *Registry, opts ManagerOptions) *Manager {
	defaults.SetDefaults(&opts)
	return &Manager{
		adapter:  adapter,
		registry: registry,
		opts:     opts,
	}
}

// Registry returns the registry the manager updates.
func (m *Manager) Registry() *Registry { return m.registry }

// OnTeardown registers fn to run after every connection teardown. cause is
// nil for a requested disconnect.
func (m *Manager) OnTeardown(fn func(cause error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// dialResult is the outcome of an episode's connect phase, published by
// closing done.
type dialResult struct {
	done      chan struct{}
	err       error
	requested bool // ended by Disconnect
}

// finishDial publishes the outcome of the connect phase. m.mu must be held.
func (m *Manager) finishDial(err error, requested bool) {
	if m.dial == nil {
		return
	}
	m.dial.err, m.dial.requested = err, requested
	close(m.dial.done)
	m.dial = nil
}

// Connect connects to the selected peripheral, retrying every RetryInterval
// until it succeeds or ctx is cancelled. When already connected it returns
// nil at once. When another Connect is still dialing it waits for that
// attempt, and takes over if the other caller gave up.
func (m *Manager) Connect(ctx context.Context) error {
	ref, ok := m.registry.Peripheral()
	if !ok {
		return ErrNoPeripheral
	}

	m.mu.Lock()
	for m.active {
		dial := m.dial
		m.mu.Unlock()
		if dial == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-dial.done:
		}
		switch {
		case dial.err == nil:
			return nil
		case dial.requested:
			return context.Canceled
		case errors.Is(dial.err, context.Canceled), errors.Is(dial.err, context.DeadlineExceeded):
			// The other caller's context ended; dial on ours.
		default:
			return dial.err
		}
		m.mu.Lock()
	}
	if !m.enabled {
		if err := m.adapter.Enable(); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("ble: enable adapter: %w", err)
		}
		m.enabled = true
	}
	if err := m.registry.setState(Connecting); err != nil {
		m.mu.Unlock()
		return err
	}
	dialCtx, cancel := context.WithCancel(ctx)
	m.active = true
	m.cancelDial = cancel
	m.dial = &dialResult{done: make(chan struct{})}
	m.mu.Unlock()
	defer cancel()

	slog.Info("[BLE] connecting", "name", ref.Name, "address", ref.Address)
	for attempt := 1; ; attempt++ {
		conn, err := m.adapter.Connect(dialCtx, ref.Address)
		if err == nil {
			return m.connected(dialCtx, ref, conn)
		}
		if dialCtx.Err() != nil {
			m.teardown(dialCtx.Err())
			return dialCtx.Err()
		}

		terr := &TransientConnectionError{Address: ref.Address, Attempt: attempt, Err: err}
		slog.Warn("[BLE] connect failed, retrying", "error", terr, "retry_in", m.opts.RetryInterval)
		m.mu.Lock()
		if !m.active {
			m.mu.Unlock()
			return context.Canceled
		}
		err = m.registry.setState(Connecting)
		m.mu.Unlock()
		if err != nil {
			m.teardown(err)
			return err
		}

		timer := time.NewTimer(m.opts.RetryInterval)
		select {
		case <-dialCtx.Done():
			timer.Stop()
			m.teardown(dialCtx.Err())
			return dialCtx.Err()
		case <-timer.C:
		}
	}
}

func (m *Manager) connected(ctx context.Context, ref PeripheralRef, conn Connection) error {
	m.mu.Lock()
	if !m.active || ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Disconnect()
		err := ctx.Err()
		if err == nil {
			err = ErrNotConnected
		}
		m.teardown(err)
		return err
	}
	m.conn = conn
	m.cancelDial = nil
	if err := m.registry.setState(Connected); err != nil {
		m.mu.Unlock()
		m.teardown(err)
		return err
	}
	m.finishDial(nil, false)
	aliveCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	m.stopAlive = stop
	m.mu.Unlock()

	slog.Info("[BLE] connected", "name", ref.Name, "address", ref.Address)
	go m.keepAlive(aliveCtx, ref.Address)
	return nil
}

func (m *Manager) connection() Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// ResolveCharacteristic finds charUUID within serviceUUID on the connected
// peripheral and records it in the registry. Absence is reported as a
// NotFoundError and leaves the connection up.
func (m *Manager) ResolveCharacteristic(serviceUUID, charUUID string) (string, error) {
	conn := m.connection()
	if conn == nil {
		return "", ErrNotConnected
	}
	services, err := conn.Services()
	if err != nil {
		return "", fmt.Errorf("ble: discover services: %w", err)
	}
	for _, svc := range services {
		if !SameUUID(svc.UUID, serviceUUID) {
			continue
		}
		for _, id := range svc.Characteristics {
			if SameUUID(id, charUUID) {
				m.registry.setCharacteristic(id)
				slog.Info("[BLE] heart rate characteristic resolved", "uuid", id)
				return id, nil
			}
		}
	}

	m.registry.markNotFound()
	nf := &NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	slog.Warn("[BLE] heart rate characteristic not found", "error", nf, "services", len(services))
	return "", nf
}

// StartMonitoring subscribes to charID and passes each parsed heart rate to
// onSample. A failed subscription tears the connection down.
func (m *Manager) StartMonitoring(charID string, onSample func(int)) error {
	m.mu.Lock()
	conn := m.conn
	if conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.monitoring {
		m.onSample = onSample
		m.mu.Unlock()
		return nil
	}
	m.charID = charID
	m.onSample = onSample
	m.mu.Unlock()

	if err := conn.Subscribe(charID, m.handleNotification); err != nil {
		serr := &SubscriptionError{Characteristic: charID, Err: err}
		slog.Error("[BLE] subscribe failed", "error", serr)
		m.teardown(serr)
		return serr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != conn {
		return ErrNotConnected
	}
	if err := m.registry.setState(Monitoring); err != nil {
		return err
	}
	m.monitoring = true
	slog.Info("[BLE] monitoring heart rate", "uuid", charID)
	return nil
}

// Monitor resolves the configured heart-rate characteristic and starts
// monitoring it.
func (m *Manager) Monitor(onSample func(int)) error {
	id, err := m.ResolveCharacteristic(m.opts.ServiceUUID, m.opts.CharacteristicUUID)
	if err != nil {
		return err
	}
	return m.StartMonitoring(id, onSample)
}

// Monitoring reports whether notifications are active.
func (m *Manager) Monitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitoring
}

func (m *Manager) handleNotification(data []byte) {
	bpm, err := ParseHeartRate(data)
	if err != nil {
		slog.Debug("[BLE] ignoring measurement", "error", err, "len", len(data))
		return
	}
	m.mu.Lock()
	cb := m.onSample
	m.mu.Unlock()
	if cb != nil {
		cb(bpm)
	}
}

// Disconnect tears the connection down. It is safe to call at any time and
// more than once; a pending Connect is cancelled.
func (m *Manager) Disconnect() {
	if m.teardown(nil) {
		slog.Info("[BLE] disconnected")
	}
}

// teardown is the single cleanup path. It reports whether this call ended
// an episode; listeners run once per episode.
func (m *Manager) teardown(cause error) bool {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return false
	}
	m.active = false
	conn, charID, monitoring := m.conn, m.charID, m.monitoring
	cancelDial, stopAlive := m.cancelDial, m.stopAlive
	m.conn, m.cancelDial, m.stopAlive = nil, nil, nil
	m.charID, m.onSample, m.monitoring = "", nil, false
	listeners := slices.Clone(m.listeners)
	dialErr := cause
	if dialErr == nil {
		dialErr = ErrNotConnected
	}
	m.finishDial(dialErr, cause == nil)
	m.registry.clearCharacteristic()
	if m.registry.State() != Disconnected {
		_ = m.registry.setState(Disconnected)
	}
	m.mu.Unlock()

	if cancelDial != nil {
		cancelDial()
	}
	if stopAlive != nil {
		stopAlive()
	}
	if conn != nil {
		if monitoring {
			if err := conn.Unsubscribe(charID); err != nil {
				slog.Debug("[BLE] unsubscribe during teardown", "error", err)
			}
		}
		if err := conn.Disconnect(); err != nil {
			slog.Debug("[BLE] disconnect during teardown", "error", err)
		}
	}
	if cause != nil && !errors.Is(cause, context.Canceled) {
		slog.Warn("[BLE] connection torn down", "cause", cause)
	}
	for _, fn := range listeners {
		fn(cause)
	}
	return true
}

// keepAlive polls the link every KeepAliveInterval until ctx is done.
func (m *Manager) keepAlive(ctx context.Context, address string) {
	t := time.NewTicker(m.opts.KeepAliveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		alive, err := m.poll()
		if ctx.Err() != nil {
			return
		}
		if alive {
			continue
		}
		slog.Warn("[BLE] link lost, reconnecting", "address", address, "error", err)
		if !m.reconnect(ctx, address) {
			return
		}
	}
}

// poll checks the transport, treating a panic inside it as a dead link.
func (m *Manager) poll() (alive bool, err error) {
	conn := m.connection()
	if conn == nil {
		return false, ErrNotConnected
	}
	defer func() {
		if r := recover(); r != nil {
			alive, err = false, fmt.Errorf("ble: transport panic: %v", r)
		}
	}()
	return conn.IsAlive(), nil
}

// reconnect makes one connection attempt after the link dropped. It reports
// whether the keep-alive loop should continue.
func (m *Manager) reconnect(ctx context.Context, address string) bool {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return false
	}
	old := m.conn
	resubscribe, charID, onSample := m.monitoring, m.charID, m.onSample
	m.conn, m.monitoring = nil, false
	if err := m.registry.setState(Reconnecting); err != nil {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()

	if old != nil {
		func() {
			defer func() { _ = recover() }()
			_ = old.Disconnect()
		}()
	}

	conn, err := m.adapter.Connect(ctx, address)
	if err != nil {
		if ctx.Err() == nil {
			m.teardown(&UnexpectedDisconnect{Address: address, Err: err})
		}
		return false
	}

	m.mu.Lock()
	if !m.active || ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Disconnect()
		return false
	}
	m.conn = conn
	if err := m.registry.setState(Connected); err != nil {
		m.mu.Unlock()
		return false
	}
	m.mu.Unlock()
	slog.Info("[BLE] reconnected", "address", address)

	if resubscribe {
		if err := m.StartMonitoring(charID, onSample); err != nil {
			return false
		}
	}
	return true
}
