// Package beat drives a rate-synchronized heartbeat loop. Each beat walks a
// fixed waveform template whose period follows the current heart rate, and
// reports the phases of the waveform to a PhaseSink.
package beat

import (
	"errors"
	"math"
)

// ecg is one heartbeat: baseline, P wave, QRS complex, T wave, baseline.
var ecg = []float64{
	0, 0, 0, 0.1, 0.2, 0.1, 0, 0, -0.1, 0.5, 1.0,
	0.2, -0.3, 0, 0, 0.1, 0.25, 0.35, 0.25, 0.1, 0, 0,
}

// Template is a beat waveform with its phase indices.
type Template struct {
	Points      []float64
	RisingEdge  int // steepest upward step, start of the R wave
	PeakIndex   int // R peak
	FallingEdge int // S trough after the peak
}

// DefaultTemplate returns the 22-point ECG template.
func DefaultTemplate() Template {
	t, _ := NewTemplate(ecg)
	return t
}

// NewTemplate derives the phase indices from the waveform shape.
func NewTemplate(points []float64) (Template, error) {
	if len(points) < 3 {
		return Template{}, errors.New("beat: template needs at least 3 points")
	}
	t := Template{Points: append([]float64(nil), points...)}

	for i, v := range points {
		if v > points[t.PeakIndex] {
			t.PeakIndex = i
		}
	}
	best := math.Inf(-1)
	for i := 1; i <= t.PeakIndex; i++ {
		if d := points[i] - points[i-1]; d > best {
			best, t.RisingEdge = d, i
		}
	}
	t.FallingEdge = min(t.PeakIndex+1, len(points)-1)
	for i := t.FallingEdge; i < len(points); i++ {
		if points[i] < points[t.FallingEdge] {
			t.FallingEdge = i
		}
	}
	return t, nil
}

// Len returns the number of control points.
func (t Template) Len() int { return len(t.Points) }

// Resample returns the template linearly interpolated to n points with the
// phase indices scaled proportionally.
func (t Template) Resample(n int) Template {
	if n < 3 || n == len(t.Points) {
		return t
	}
	last := float64(len(t.Points) - 1)
	scale := last / float64(n-1)

	out := Template{Points: make([]float64, n)}
	for i := range out.Points {
		pos := float64(i) * scale
		lo := int(pos)
		hi := min(lo+1, len(t.Points)-1)
		frac := pos - float64(lo)
		out.Points[i] = t.Points[lo] + (t.Points[hi]-t.Points[lo])*frac
	}

	index := func(i int) int {
		return int(math.Round(float64(i) / scale))
	}
	out.RisingEdge = index(t.RisingEdge)
	out.PeakIndex = max(index(t.PeakIndex), out.RisingEdge)
	out.FallingEdge = min(max(index(t.FallingEdge), out.PeakIndex+1), n-1)
	return out
}
