package main

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/chaz8081/notabot/internal/beat"
	"github.com/chaz8081/notabot/internal/ble"
)

// console prints a pulse marker per beat and the bpm it was paced at.
type console struct {
	w io.Writer

	mu    sync.Mutex
	heart *color.Color
	dim   *color.Color
}

func newConsole(w io.Writer) *console {
	return &console{
		w:     w,
		heart: color.New(color.FgRed, color.Bold),
		dim:   color.New(color.Faint),
	}
}

func (c *console) sink() beat.PhaseSink {
	return beat.Funcs{
		OnPeak: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.heart.Fprint(c.w, "♥ ")
		},
		OnFlatline: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.dim.Fprintln(c.w, "\n── flatline ──")
		},
	}
}

func (c *console) beat(stats beat.BeatStats) {
	if stats.Beat%10 != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim.Fprintf(c.w, "[%d bpm]\n", stats.BPM)
}

// printDevices writes the scan results as an indexed table, names padded to
// the widest one.
func printDevices(w io.Writer, devices []ble.Device) {
	if len(devices) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No devices found.")
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	header.Fprintf(w, "Found %d device(s):\n", len(devices))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tADDRESS\tRSSI")
	fmt.Fprintln(tw, "-\t----\t-------\t----")
	for i, d := range devices {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", i, d.Name, d.Address, d.RSSI)
	}
	tw.Flush()
}
