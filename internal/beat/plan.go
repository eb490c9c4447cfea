package beat

import "time"

// Plan is the timing of a single beat.
type Plan struct {
	BPM       int
	Start     time.Time
	PerBeat   time.Duration
	PerPoint  time.Duration
	Deadlines []time.Time // point i fires at Start + i*PerPoint
}

// NewPlan lays out one beat of points at bpm starting at start. bpm must be
// positive; callers clamp it first.
func NewPlan(bpm int, start time.Time, points int) Plan {
	perBeat := time.Minute / time.Duration(bpm)
	perPoint := perBeat / time.Duration(points)
	deadlines := make([]time.Time, points)
	for i := range deadlines {
		deadlines[i] = start.Add(time.Duration(i) * perPoint)
	}
	return Plan{
		BPM:       bpm,
		Start:     start,
		PerBeat:   perBeat,
		PerPoint:  perPoint,
		Deadlines: deadlines,
	}
}

// End is when the next beat is due.
func (p Plan) End() time.Time { return p.Start.Add(p.PerBeat) }
