package beat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcuadros/go-defaults"
	xrate "golang.org/x/time/rate"

	"github.com/chaz8081/notabot/internal/rate"
)

var (
	// ErrNoRateData is returned by Start when no heart rate is available.
	ErrNoRateData = errors.New("beat: no heart rate data")
	// ErrAlreadyRunning is returned by Start while the loop is running.
	ErrAlreadyRunning = errors.New("beat: scheduler already running")
)

// State is the scheduler state.
type State int32

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// RateReader supplies the bpm for each beat. *rate.Source implements it.
type RateReader interface {
	Current() (bpm int, ok bool)
}

// BeatStats describes a completed beat.
type BeatStats struct {
	Beat     uint64        `json:"beat"`
	BPM      int           `json:"bpm"`
	Clamped  bool          `json:"clamped"`
	Expected time.Duration `json:"expected"`
	Actual   time.Duration `json:"actual"`
	Drift    time.Duration `json:"drift"`
}

// Options configures a Scheduler. Zero fields take the defaults in their
// tags; none of them has a meaningful zero.
type Options struct {
	Template   Template      // zero value uses DefaultTemplate
	MinSleep   time.Duration `default:"1ms"` // floor for every wait
	DriftEvery int           `default:"10"`  // log drift once per this many beats

	// Dispatch runs the peak callback without blocking the loop.
	// The default starts a goroutine.
	Dispatch func(func())
	// OnBeat, if set, is called on the loop goroutine after every beat.
	OnBeat func(BeatStats)
}

// Scheduler runs the beat loop on its own goroutine.
type Scheduler struct {
	rate RateReader
	sink PhaseSink
	opts Options
	now  func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	beats atomic.Uint64
	bpm   atomic.Int64
}

// New returns an idle scheduler reading from r and reporting to sink.
func New(r RateReader, sink PhaseSink, opts Options) *Scheduler {
	defaults.SetDefaults(&opts)
	if opts.Template.Len() == 0 {
		opts.Template = DefaultTemplate()
	}
	if opts.Dispatch == nil {
		opts.Dispatch = func(f func()) { go f() }
	}
	if sink == nil {
		sink = Funcs{}
	}
	return &Scheduler{rate: r, sink: sink, opts: opts, now: time.Now}
}

// Start launches the beat loop. It runs until Stop is called or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	bpm, ok := s.rate.Current()
	if !ok || bpm <= 0 {
		return ErrNoRateData
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running, s.cancel, s.done = true, cancel, done
	s.bpm.Store(int64(bpm))

	slog.Info("[BEAT] scheduler started", "bpm", bpm)
	go s.run(ctx, done)
	return nil
}

// Stop halts the loop and waits for it to flatline. It must not be called
// from a PhaseSink callback on the loop goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

// State reports whether the loop is running.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return Running
	}
	return Idle
}

// Beats returns the number of completed beats since the scheduler was created.
func (s *Scheduler) Beats() uint64 { return s.beats.Load() }

// BPM returns the rate used for the most recent beat.
func (s *Scheduler) BPM() int { return int(s.bpm.Load()) }

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	tmpl := s.opts.Template
	edge := false
	drift := xrate.Sometimes{Every: s.opts.DriftEvery}

	defer func() {
		if edge {
			s.sink.Edge(false)
		}
		s.sink.Flatline()

		s.mu.Lock()
		s.running, s.cancel, s.done = false, nil, nil
		s.mu.Unlock()
		close(done)
		slog.Info("[BEAT] scheduler stopped", "beats", s.beats.Load())
	}()

	for {
		bpm, ok := s.rate.Current()
		if !ok || bpm <= 0 {
			bpm = int(s.bpm.Load())
		}
		use, clamped := rate.Clamp(bpm)
		if clamped {
			slog.Warn("[BEAT] heart rate out of range, clamped", "bpm", bpm, "using", use)
		}
		s.bpm.Store(int64(use))

		plan := NewPlan(use, s.now(), tmpl.Len())
		for i, amp := range tmpl.Points {
			if !s.sleepUntil(ctx, plan.Deadlines[i]) {
				return
			}
			s.sink.RenderPoint(i, amp)
			if i == tmpl.RisingEdge && !edge {
				s.sink.Edge(true)
				edge = true
			}
			if i == tmpl.PeakIndex {
				s.opts.Dispatch(s.sink.Peak)
			}
			if i == tmpl.FallingEdge && edge {
				s.sink.Edge(false)
				edge = false
			}
		}
		if !s.sleepUntil(ctx, plan.End()) {
			return
		}

		actual := s.now().Sub(plan.Start)
		stats := BeatStats{
			Beat:     s.beats.Add(1),
			BPM:      use,
			Clamped:  clamped,
			Expected: plan.PerBeat,
			Actual:   actual,
			Drift:    actual - plan.PerBeat,
		}
		drift.Do(func() {
			slog.Debug("[BEAT] drift", "beat", stats.Beat, "bpm", use, "expected", stats.Expected, "actual", actual, "drift", stats.Drift)
		})
		if s.opts.OnBeat != nil {
			s.opts.OnBeat(stats)
		}
	}
}

// sleepUntil waits for deadline, never less than MinSleep. It reports false
// when ctx ended the wait.
func (s *Scheduler) sleepUntil(ctx context.Context, deadline time.Time) bool {
	d := deadline.Sub(s.now())
	if d < s.opts.MinSleep {
		d = s.opts.MinSleep
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
