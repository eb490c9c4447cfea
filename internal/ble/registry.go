package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PeripheralRef identifies the selected peripheral. Characteristic is empty
// until the heart-rate characteristic has been resolved on a live connection.
type PeripheralRef struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Characteristic string `json:"characteristic,omitempty"`
}

// Registry holds the selected peripheral and its connection state. It is
// shared between the control surface, the keep-alive loop and the
// notification path. Only Manager changes the state.
type Registry struct {
	mu  sync.RWMutex
	ref *PeripheralRef

	state    atomic.Int32
	notFound atomic.Bool
}

// NewRegistry returns an empty registry in the Disconnected state.
func NewRegistry() *Registry {
	return &Registry{}
}

// Select records the peripheral to connect to. The address cannot change
// once a connection attempt has started.
func (r *Registry) Select(ref PeripheralRef) error {
	if ref.Address == "" {
		return fmt.Errorf("ble: select: empty address")
	}
	if st := r.State(); st != Disconnected {
		return fmt.Errorf("ble: select %s: peripheral busy (%s)", ref.Address, st)
	}
	if ref.Name == "" {
		ref.Name = UnknownName
	}
	ref.Characteristic = ""

	r.mu.Lock()
	r.ref = &ref
	r.mu.Unlock()
	r.notFound.Store(false)
	slog.Info("[BLE] peripheral selected", "name", ref.Name, "address", ref.Address)
	return nil
}

// Peripheral returns a copy of the selected peripheral, if any.
func (r *Registry) Peripheral() (PeripheralRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ref == nil {
		return PeripheralRef{}, false
	}
	return *r.ref, true
}

// State returns the current connection state.
func (r *Registry) State() ConnectionState {
	return ConnectionState(r.state.Load())
}

// setState moves to the given state if the edge is legal.
func (r *Registry) setState(to ConnectionState) error {
	for {
		from := r.State()
		if !CanTransition(from, to) {
			err := fmt.Errorf("ble: illegal state transition %s -> %s", from, to)
			slog.Error("[BLE] rejected state change", "from", from, "to", to)
			return err
		}
		if r.state.CompareAndSwap(int32(from), int32(to)) {
			if from != to {
				slog.Debug("[BLE] state", "from", from, "to", to)
			}
			return nil
		}
	}
}

func (r *Registry) setCharacteristic(id string) {
	r.mu.Lock()
	if r.ref != nil {
		r.ref.Characteristic = id
	}
	r.mu.Unlock()
	r.notFound.Store(false)
}

func (r *Registry) clearCharacteristic() {
	r.mu.Lock()
	if r.ref != nil {
		r.ref.Characteristic = ""
	}
	r.mu.Unlock()
}

func (r *Registry) markNotFound() { r.notFound.Store(true) }

// CharacteristicNotFound reports whether the last resolution found no
// heart-rate characteristic on the connected peripheral.
func (r *Registry) CharacteristicNotFound() bool { return r.notFound.Load() }

// Label is the human-readable connection label for display surfaces.
func (r *Registry) Label() string {
	ref, ok := r.Peripheral()
	if !ok || r.State() == Disconnected {
		return NotConnectedLabel
	}
	return ref.Name
}
