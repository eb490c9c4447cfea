package ble

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

// teardownRecorder captures OnTeardown notifications.
type teardownRecorder struct {
	mu     sync.Mutex
	causes []error
}

func (r *teardownRecorder) record(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
}

func (r *teardownRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.causes...)
}

func fastOpts() ManagerOptions {
	return ManagerOptions{
		RetryInterval:     time.Millisecond,
		KeepAliveInterval: time.Hour,
	}
}

func newTestManager(t *testing.T, adapter *mockAdapter, opts ManagerOptions) (*Manager, *teardownRecorder) {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Select(PeripheralRef{Name: "Polar H10", Address: testAddress}))
	m := NewManager(adapter, reg, opts)
	rec := &teardownRecorder{}
	m.OnTeardown(rec.record)
	t.Cleanup(m.Disconnect)
	return m, rec
}

func TestNewManagerAppliesDefaults(t *testing.T) {
	m := NewManager(newMockAdapter(nil), NewRegistry(), ManagerOptions{})
	assert.Equal(t, 2*time.Second, m.opts.RetryInterval)
	assert.Equal(t, 5*time.Second, m.opts.KeepAliveInterval)
	assert.Equal(t, HeartRateServiceUUID, m.opts.ServiceUUID)
	assert.Equal(t, HeartRateMeasurementUUID, m.opts.CharacteristicUUID)
}

func TestConnectWithoutSelection(t *testing.T) {
	m := NewManager(newMockAdapter(nil), NewRegistry(), fastOpts())
	err := m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNoPeripheral)
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.failures = 3
	m, _ := newTestManager(t, adapter, fastOpts())

	var (
		mu   sync.Mutex
		path []ConnectionState
	)
	note := func(s ConnectionState) {
		mu.Lock()
		defer mu.Unlock()
		if len(path) == 0 || path[len(path)-1] != s {
			path = append(path, s)
		}
	}
	note(m.Registry().State())
	adapter.onConnect = func() { note(m.Registry().State()) }

	require.NoError(t, m.Connect(context.Background()))
	note(m.Registry().State())

	assert.Equal(t, 4, adapter.attemptCount())
	assert.Equal(t, "Polar H10", m.Registry().Label())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnectionState{Disconnected, Connecting, Connected}, path)
}

func TestConnectIsNoOpWhenConnected(t *testing.T) {
	adapter := newMockAdapter(nil)
	m, _ := newTestManager(t, adapter, fastOpts())

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, adapter.connectionCount())
	assert.Equal(t, 1, adapter.enables)
}

func TestConnectCancelled(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.failAll = true
	opts := fastOpts()
	opts.RetryInterval = time.Hour
	m, rec := newTestManager(t, adapter, opts)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Connect(ctx) }()

	require.Eventually(t, func() bool { return adapter.attemptCount() >= 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Connect() did not return after cancel")
	}
	assert.Equal(t, Disconnected, m.Registry().State())
	assert.Len(t, rec.all(), 1)
}

func TestDisconnectCancelsPendingConnect(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.failAll = true
	opts := fastOpts()
	opts.RetryInterval = time.Hour
	m, rec := newTestManager(t, adapter, opts)

	errc := make(chan error, 1)
	go func() { errc <- m.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return adapter.attemptCount() >= 1 }, time.Second, time.Millisecond)

	m.Disconnect()
	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Connect() did not return after Disconnect()")
	}
	assert.Equal(t, Disconnected, m.Registry().State())
	assert.Len(t, rec.all(), 1)
}

func TestConnectWaitsForPendingAttempt(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.failAll = true
	opts := fastOpts()
	opts.RetryInterval = 5 * time.Millisecond
	m, _ := newTestManager(t, adapter, opts)

	first := make(chan error, 1)
	go func() { first <- m.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return adapter.attemptCount() >= 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- m.Connect(context.Background()) }()
	select {
	case err := <-second:
		t.Fatalf("Connect() returned %v while the first attempt was still dialing", err)
	case <-time.After(20 * time.Millisecond):
	}

	adapter.setFailAll(false)
	for _, errc := range []chan error{first, second} {
		select {
		case err := <-errc:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Connect() did not return after the link came up")
		}
	}
	assert.Equal(t, Connected, m.Registry().State())
	assert.Equal(t, 1, adapter.connectionCount())
}

func TestConnectTakesOverCancelledAttempt(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.failAll = true
	opts := fastOpts()
	opts.RetryInterval = time.Hour
	m, rec := newTestManager(t, adapter, opts)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- m.Connect(ctx) }()
	require.Eventually(t, func() bool { return adapter.attemptCount() >= 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- m.Connect(context.Background()) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Connect() did not return")
	}

	// The second caller must not report success while nothing is connected;
	// it dials on its own context instead.
	require.Eventually(t, func() bool { return adapter.attemptCount() >= 2 }, time.Second, time.Millisecond)
	select {
	case err := <-second:
		t.Fatalf("Connect() returned %v with state %s", err, m.Registry().State())
	default:
	}
	assert.Equal(t, Connecting, m.Registry().State())
	assert.Len(t, rec.all(), 1)

	m.Disconnect()
	select {
	case err := <-second:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Connect() did not return after Disconnect()")
	}
}

func TestConnectWaiterHonoursOwnContext(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.failAll = true
	opts := fastOpts()
	opts.RetryInterval = time.Hour
	m, _ := newTestManager(t, adapter, opts)

	go func() { _ = m.Connect(context.Background()) }()
	require.Eventually(t, func() bool { return adapter.attemptCount() >= 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Connect(ctx), context.DeadlineExceeded)
	assert.Equal(t, Connecting, m.Registry().State())
}

func TestMonitorDeliversSamples(t *testing.T) {
	adapter := newMockAdapter(nil)
	m, _ := newTestManager(t, adapter, fastOpts())
	require.NoError(t, m.Connect(context.Background()))

	var got atomic.Int64
	require.NoError(t, m.Monitor(func(bpm int) { got.Store(int64(bpm)) }))
	assert.Equal(t, Monitoring, m.Registry().State())
	assert.True(t, m.Monitoring())

	ref, ok := m.Registry().Peripheral()
	require.True(t, ok)
	assert.True(t, SameUUID(ref.Characteristic, HeartRateMeasurementUUID))

	conn := adapter.latestConnection()
	require.True(t, conn.SimulateNotification([]byte{0x00, 72}))
	assert.Equal(t, int64(72), got.Load())

	// Short payloads are dropped.
	conn.SimulateNotification([]byte{0x00})
	assert.Equal(t, int64(72), got.Load())

	conn.SimulateNotification([]byte{0x01, 0x2c, 0x01})
	assert.Equal(t, int64(300), got.Load())
}

func TestResolveCharacteristicShortUUIDs(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.newConn = func() *mockConnection {
		c := newHRConnection()
		c.services = []Service{{UUID: "180D", Characteristics: []string{"2A37"}}}
		return c
	}
	m, _ := newTestManager(t, adapter, fastOpts())
	require.NoError(t, m.Connect(context.Background()))

	id, err := m.ResolveCharacteristic(HeartRateServiceUUID, HeartRateMeasurementUUID)
	require.NoError(t, err)
	assert.Equal(t, "2A37", id)
	assert.False(t, m.Registry().CharacteristicNotFound())
}

func TestResolveCharacteristicNotFound(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.newConn = func() *mockConnection {
		c := newHRConnection()
		c.services = c.services[:1]
		return c
	}
	m, rec := newTestManager(t, adapter, fastOpts())
	require.NoError(t, m.Connect(context.Background()))

	err := m.Monitor(func(int) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCharacteristicNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "characteristic", nf.Resource)

	assert.Equal(t, Connected, m.Registry().State())
	assert.True(t, m.Registry().CharacteristicNotFound())
	assert.Empty(t, rec.all())
}

func TestResolveWithoutConnection(t *testing.T) {
	m, _ := newTestManager(t, newMockAdapter(nil), fastOpts())
	_, err := m.ResolveCharacteristic(HeartRateServiceUUID, HeartRateMeasurementUUID)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSubscriptionFailureTearsDown(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.newConn = func() *mockConnection {
		c := newHRConnection()
		c.subscribeErr = errors.New("mock: notify refused")
		return c
	}
	m, rec := newTestManager(t, adapter, fastOpts())
	require.NoError(t, m.Connect(context.Background()))

	err := m.Monitor(func(int) {})
	var serr *SubscriptionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "mock: notify refused", errors.Unwrap(serr).Error())

	assert.Equal(t, Disconnected, m.Registry().State())
	assert.Equal(t, 1, adapter.latestConnection().disconnectCount())

	causes := rec.all()
	require.Len(t, causes, 1)
	assert.ErrorAs(t, causes[0], &serr)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	adapter := newMockAdapter(nil)
	m, rec := newTestManager(t, adapter, fastOpts())
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Monitor(func(int) {}))

	m.Disconnect()
	m.Disconnect()

	conn := adapter.latestConnection()
	assert.Equal(t, 1, conn.disconnectCount())
	assert.Len(t, conn.unsubscribed, 1)
	assert.False(t, conn.subscribed())

	require.Len(t, rec.all(), 1)
	assert.NoError(t, rec.all()[0])

	assert.Equal(t, Disconnected, m.Registry().State())
	assert.Equal(t, NotConnectedLabel, m.Registry().Label())
	ref, ok := m.Registry().Peripheral()
	require.True(t, ok, "selection survives disconnect")
	assert.Equal(t, testAddress, ref.Address)
	assert.Empty(t, ref.Characteristic)
}

func TestReconnectAfterDisconnect(t *testing.T) {
	adapter := newMockAdapter(nil)
	m, rec := newTestManager(t, adapter, fastOpts())

	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Monitor(func(int) {}))

	assert.Equal(t, Monitoring, m.Registry().State())
	assert.Equal(t, 2, adapter.connectionCount())
	assert.Len(t, rec.all(), 1)
}

func TestKeepAliveReconnectsAndResubscribes(t *testing.T) {
	adapter := newMockAdapter(nil)
	opts := fastOpts()
	opts.KeepAliveInterval = 5 * time.Millisecond
	m, rec := newTestManager(t, adapter, opts)
	require.NoError(t, m.Connect(context.Background()))

	var got atomic.Int64
	require.NoError(t, m.Monitor(func(bpm int) { got.Store(int64(bpm)) }))

	first := adapter.latestConnection()
	first.SimulateLinkLoss()

	require.Eventually(t, func() bool {
		return adapter.connectionCount() == 2 && m.Registry().State() == Monitoring
	}, time.Second, 2*time.Millisecond)

	second := adapter.latestConnection()
	require.True(t, second.SimulateNotification([]byte{0x16, 88}))
	assert.Equal(t, int64(88), got.Load())
	assert.Empty(t, rec.all())
}

func TestKeepAliveReconnectFailureTearsDown(t *testing.T) {
	adapter := newMockAdapter(nil)
	opts := fastOpts()
	opts.KeepAliveInterval = 5 * time.Millisecond
	m, rec := newTestManager(t, adapter, opts)
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Monitor(func(int) {}))

	adapter.setFailAll(true)
	adapter.latestConnection().SimulateLinkLoss()

	require.Eventually(t, func() bool {
		return m.Registry().State() == Disconnected
	}, time.Second, 2*time.Millisecond)

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 2*time.Millisecond)
	var ud *UnexpectedDisconnect
	require.ErrorAs(t, rec.all()[0], &ud)
	assert.ErrorIs(t, ud, errMockConnect)
	assert.False(t, m.Monitoring())
}

func TestKeepAliveRecoversTransportPanic(t *testing.T) {
	adapter := newMockAdapter(nil)
	opts := fastOpts()
	opts.KeepAliveInterval = 5 * time.Millisecond
	m, _ := newTestManager(t, adapter, opts)
	require.NoError(t, m.Connect(context.Background()))

	first := adapter.latestConnection()
	first.mu.Lock()
	first.panicOnAlive = true
	first.mu.Unlock()

	require.Eventually(t, func() bool {
		return adapter.connectionCount() == 2 && m.Registry().State() == Connected
	}, time.Second, 2*time.Millisecond)
}
