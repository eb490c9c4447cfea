package actuate

import (
	"errors"
	"testing"
)

// fake swaps robotgo out for recorders.
func fake(c *Clicker) (clicks *[]string, taps *[]string) {
	clicks, taps = &[]string{}, &[]string{}
	c.click = func(b string) { *clicks = append(*clicks, b) }
	c.keyTap = func(k string) error {
		*taps = append(*taps, k)
		return nil
	}
	return clicks, taps
}

func TestActuateClick(t *testing.T) {
	c := NewClicker("click", "right", "")
	clicks, taps := fake(c)

	if err := c.Actuate(); err != nil {
		t.Fatalf("Actuate() error = %v", err)
	}
	if len(*clicks) != 1 || (*clicks)[0] != "right" {
		t.Errorf("clicks = %v, want [right]", *clicks)
	}
	if len(*taps) != 0 {
		t.Errorf("taps = %v, want none", *taps)
	}
}

func TestActuateDefaultButton(t *testing.T) {
	c := NewClicker("click", "", "")
	clicks, _ := fake(c)
	_ = c.Actuate()
	if len(*clicks) != 1 || (*clicks)[0] != "left" {
		t.Errorf("clicks = %v, want [left]", *clicks)
	}
}

func TestActuateKey(t *testing.T) {
	c := NewClicker("key", "", "f13")
	clicks, taps := fake(c)

	if err := c.Actuate(); err != nil {
		t.Fatalf("Actuate() error = %v", err)
	}
	if len(*taps) != 1 || (*taps)[0] != "f13" {
		t.Errorf("taps = %v, want [f13]", *taps)
	}
	if len(*clicks) != 0 {
		t.Errorf("clicks = %v, want none", *clicks)
	}
}

func TestActuateKeyError(t *testing.T) {
	c := NewClicker("key", "", "nope")
	fake(c)
	sentinel := errors.New("unknown key")
	c.keyTap = func(string) error { return sentinel }

	err := c.Actuate()
	if !errors.Is(err, sentinel) {
		t.Errorf("Actuate() error = %v, want wrapped %v", err, sentinel)
	}
}

func TestActuateNone(t *testing.T) {
	c := NewClicker("none", "left", "space")
	clicks, taps := fake(c)
	if err := c.Actuate(); err != nil {
		t.Fatalf("Actuate() error = %v", err)
	}
	if len(*clicks)+len(*taps) != 0 {
		t.Errorf("method none fired %v %v", *clicks, *taps)
	}
}

func TestSinkActuatesOnPeakOnly(t *testing.T) {
	c := NewClicker("click", "left", "")
	clicks, _ := fake(c)
	s := c.Sink()

	s.RenderPoint(0, 0)
	s.Edge(true)
	s.Edge(false)
	s.Flatline()
	if len(*clicks) != 0 {
		t.Fatalf("clicks before peak = %d, want 0", len(*clicks))
	}
	s.Peak()
	s.Peak()
	if len(*clicks) != 2 {
		t.Errorf("clicks = %d, want 2", len(*clicks))
	}
}
