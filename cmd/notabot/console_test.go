package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/notabot/internal/beat"
	"github.com/chaz8081/notabot/internal/ble"
	"github.com/chaz8081/notabot/internal/config"
)

func init() {
	color.NoColor = true
}

func TestPrintDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, []ble.Device{
		{Name: "Polar H10 1234ABCD", Address: "AA:BB:CC:DD:EE:FF", RSSI: -58},
		{Name: ble.UnknownName, Address: "11:22:33:44:55:66", RSSI: -90},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Found 2 device(s):", lines[0])
	assert.Contains(t, lines[3], "Polar H10 1234ABCD")
	assert.Contains(t, lines[4], ble.UnknownName)

	// Columns line up: both addresses start at the same offset.
	assert.Equal(t, strings.Index(lines[3], "AA:BB"), strings.Index(lines[4], "11:22"))
}

func TestPrintNoDevices(t *testing.T) {
	var buf bytes.Buffer
	printDevices(&buf, nil)
	assert.Equal(t, "No devices found.\n", buf.String())
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	c := newConsole(&buf)
	sink := c.sink()

	sink.Peak()
	sink.Peak()
	c.beat(beat.BeatStats{Beat: 3, BPM: 70})
	c.beat(beat.BeatStats{Beat: 10, BPM: 72})
	sink.Flatline()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "♥"))
	assert.NotContains(t, out, "70 bpm")
	assert.Contains(t, out, "[72 bpm]")
	assert.Contains(t, out, "flatline")
}

func TestDescribeActuation(t *testing.T) {
	tests := []struct {
		in   config.ActuationConfig
		want string
	}{
		{config.ActuationConfig{Method: "click", Button: "left"}, "left click"},
		{config.ActuationConfig{Method: "key", Key: "space"}, "key space"},
		{config.ActuationConfig{Method: "none"}, "none"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeActuation(tt.in))
	}
}
