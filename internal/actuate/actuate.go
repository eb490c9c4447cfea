// Package actuate performs the OS-level input event fired at every R peak,
// using robotgo for mouse clicks or key taps.
package actuate

import (
	"fmt"
	"log/slog"

	"github.com/go-vgo/robotgo"

	"github.com/chaz8081/notabot/internal/beat"
)

// Clicker fires a mouse click or a key tap.
type Clicker struct {
	method string // "click", "key" or "none"
	button string
	key    string

	click  func(button string)
	keyTap func(key string) error
}

// NewClicker creates a Clicker with the given method. button is used for
// "click" ("left", "right" or "center"), key for "key".
func NewClicker(method, button, key string) *Clicker {
	if button == "" {
		button = "left"
	}
	return &Clicker{
		method: method,
		button: button,
		key:    key,
		click:  func(b string) { robotgo.Click(b, false) },
		keyTap: func(k string) error { return robotgo.KeyTap(k) },
	}
}

// Method returns the configured method.
func (c *Clicker) Method() string { return c.method }

// Actuate fires one input event.
func (c *Clicker) Actuate() error {
	switch c.method {
	case "none":
		return nil
	case "key":
		if err := c.keyTap(c.key); err != nil {
			return fmt.Errorf("actuate: key tap %q: %w", c.key, err)
		}
		return nil
	default: // "click"
		c.click(c.button)
		return nil
	}
}

// Sink returns a PhaseSink that actuates on every peak. Failures are logged
// rather than stopping the beat loop.
func (c *Clicker) Sink() beat.PhaseSink {
	return beat.Funcs{
		OnPeak: func() {
			if err := c.Actuate(); err != nil {
				slog.Warn("[ACT] actuation failed", "method", c.method, "error", err)
			}
		},
	}
}
