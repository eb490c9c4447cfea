package beat

// PhaseSink receives the phases of each beat. RenderPoint, Edge and
// Flatline run on the scheduler goroutine and must return quickly; Peak is
// dispatched separately and may block.
type PhaseSink interface {
	RenderPoint(i int, amplitude float64)
	Edge(on bool)
	Peak()
	Flatline()
}

// Funcs adapts plain functions to a PhaseSink. Nil fields are skipped.
type Funcs struct {
	OnPoint    func(i int, amplitude float64)
	OnEdge     func(on bool)
	OnPeak     func()
	OnFlatline func()
}

func (f Funcs) RenderPoint(i int, amplitude float64) {
	if f.OnPoint != nil {
		f.OnPoint(i, amplitude)
	}
}

func (f Funcs) Edge(on bool) {
	if f.OnEdge != nil {
		f.OnEdge(on)
	}
}

func (f Funcs) Peak() {
	if f.OnPeak != nil {
		f.OnPeak()
	}
}

func (f Funcs) Flatline() {
	if f.OnFlatline != nil {
		f.OnFlatline()
	}
}

// Multi fans every phase out to each sink in order.
type Multi []PhaseSink

func (m Multi) RenderPoint(i int, amplitude float64) {
	for _, s := range m {
		s.RenderPoint(i, amplitude)
	}
}

func (m Multi) Edge(on bool) {
	for _, s := range m {
		s.Edge(on)
	}
}

func (m Multi) Peak() {
	for _, s := range m {
		s.Peak()
	}
}

func (m Multi) Flatline() {
	for _, s := range m {
		s.Flatline()
	}
}
