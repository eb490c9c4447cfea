// Package hotkey provides a global start/stop hotkey using gohook.
// Every press of the key combination emits one toggle event.
package hotkey

import (
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// DefaultKeys is the default toggle combination.
var DefaultKeys = []string{"ctrl", "shift", "h"}

// debounce swallows key auto-repeat while the combination is held.
const debounce = 300 * time.Millisecond

// EventType indicates what the hotkey asked for.
type EventType int

const (
	// EventToggle asks to start the beat loop if idle, stop it if running.
	EventToggle EventType = iota
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener manages a global hotkey and emits toggle events.
type Listener struct {
	keys []string
	ch   chan Event
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewListener creates a Listener for the given key combo.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "h"]).
func NewListener(keys []string) *Listener {
	if len(keys) == 0 {
		keys = DefaultKeys
	}
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
		now:  time.Now,
	}
}

// Keys returns the key combination.
func (l *Listener) Keys() []string { return l.keys }

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) {
		l.press()
	})

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// press emits a toggle without blocking the hook goroutine. Presses
// closer together than debounce count once.
func (l *Listener) press() {
	l.mu.Lock()
	now := l.now()
	if !l.last.IsZero() && now.Sub(l.last) < debounce {
		l.mu.Unlock()
		return
	}
	l.last = now
	l.mu.Unlock()

	select {
	case l.ch <- Event{Type: EventToggle}:
	default: // don't block if channel is full
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
