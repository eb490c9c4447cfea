package rate

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/mcuadros/go-defaults"
)

// Walk configures the synthetic rate generator used when no sensor is
// available: a bounded random walk around a resting heart rate.
type Walk struct {
	Probability float64       `default:"0.4"` // chance of taking a step
	Step        int           `default:"3"`   // bpm per step
	Min         int           `default:"60"`
	Max         int           `default:"100"`
	Interval    time.Duration `default:"1s"`
}

// DefaultWalk returns the demonstration walk settings.
func DefaultWalk() Walk {
	var w Walk
	defaults.SetDefaults(&w)
	return w
}

// Next derives the next value from prev.
func (w Walk) Next(prev int, rnd *rand.Rand) int {
	next := prev
	if rnd.Float64() < w.Probability {
		if rnd.IntN(2) == 0 {
			next -= w.Step
		} else {
			next += w.Step
		}
	}
	return max(w.Min, min(w.Max, next))
}

// RunSynthetic feeds s from the walk every w.Interval until ctx is done.
// The walk starts from the source's current value (or the middle of the
// walk range) so demonstration output is continuous with live data.
// Fields are used as given, so a zero Probability holds the rate steady;
// start from DefaultWalk for the stock settings. Only a non-positive
// Interval is replaced by the default.
func (s *Source) RunSynthetic(ctx context.Context, w Walk, rnd *rand.Rand) {
	if w.Interval <= 0 {
		w.Interval = DefaultWalk().Interval
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6e6f74))
	}

	prev, ok := s.Current()
	if !ok {
		prev = (w.Min + w.Max) / 2
	}
	prev = max(w.Min, min(w.Max, prev))

	slog.Info("[RATE] synthetic source started", "start_bpm", prev, "interval", w.Interval)
	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		s.Observe(prev)
		select {
		case <-ctx.Done():
			slog.Info("[RATE] synthetic source stopped")
			return
		case <-t.C:
		}
		prev = w.Next(prev, rnd)
	}
}
