// Package rate holds the heart-rate samples that drive the beat scheduler.
// Samples arrive from the live notification path or from a synthetic
// random walk; readers always see the latest value and a short history.
package rate

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timing bounds and defaults shared by every consumer of a rate.
const (
	MinBPM          = 40
	MaxBPM          = 180
	DefaultBPM      = 100
	HistoryCapacity = 60

	queueSize = 16
)

// Sample is a single heart-rate observation.
type Sample struct {
	BPM        int       `json:"bpm"`
	ObservedAt time.Time `json:"observed_at"`
}

// Clamp bounds bpm to [MinBPM, MaxBPM]. It reports whether the value changed.
func Clamp(bpm int) (int, bool) {
	switch {
	case bpm < MinBPM:
		return MinBPM, true
	case bpm > MaxBPM:
		return MaxBPM, true
	}
	return bpm, false
}

// Source is the single place rate samples are written to and read from.
// Observe is called by one producer (notifications or the synthetic walk);
// any number of readers may call Latest, Current and History.
type Source struct {
	fallback int
	now      func() time.Time

	queue  chan Sample
	drain  sync.Mutex
	latest atomic.Pointer[Sample]
	hist   *History
}

// NewSource returns a Source that reports fallback from Current until the
// first sample arrives. A fallback <= 0 means "no data" until then.
func NewSource(fallback int) *Source {
	return &Source{
		fallback: fallback,
		now:      time.Now,
		queue:    make(chan Sample, queueSize),
		hist:     NewHistory(HistoryCapacity),
	}
}

// Observe records a new rate value. Every sample enters the history
// immediately. The hand-off to readers never blocks: when they fall behind,
// the oldest queued sample is dropped.
func (s *Source) Observe(bpm int) {
	sample := Sample{BPM: bpm, ObservedAt: s.now()}
	s.hist.Push(sample)
	for {
		select {
		case s.queue <- sample:
			return
		default:
		}
		select {
		case <-s.queue:
		default:
		}
	}
}

// pump moves queued samples into the latest slot.
func (s *Source) pump() {
	s.drain.Lock()
	defer s.drain.Unlock()
	for {
		select {
		case sample := <-s.queue:
			s.latest.Store(&sample)
		default:
			return
		}
	}
}

// Latest returns the most recent sample, if any.
func (s *Source) Latest() (Sample, bool) {
	s.pump()
	p := s.latest.Load()
	if p == nil {
		return Sample{}, false
	}
	return *p, true
}

// Current returns the bpm the scheduler should use now: the latest sample,
// or the fallback when nothing has been observed yet.
func (s *Source) Current() (int, bool) {
	if sample, ok := s.Latest(); ok {
		return sample.BPM, true
	}
	if s.fallback > 0 {
		return s.fallback, true
	}
	return 0, false
}

// History returns the retained samples, oldest first.
func (s *Source) History() []Sample {
	return s.hist.Snapshot()
}
