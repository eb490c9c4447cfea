package rate

import "sync"

// History is a fixed-capacity FIFO of samples. Pushing onto a full
// history evicts the oldest sample.
type History struct {
	mu   sync.Mutex
	data []Sample
	head int
	n    int
}

// NewHistory returns an empty History holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{data: make([]Sample, capacity)}
}

// Push appends s, evicting the oldest sample when full.
func (h *History) Push(s Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.n < len(h.data) {
		h.data[(h.head+h.n)%len(h.data)] = s
		h.n++
		return
	}
	h.data[h.head] = s
	h.head = (h.head + 1) % len(h.data)
}

// Len returns the number of retained samples.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

// Cap returns the capacity.
func (h *History) Cap() int { return len(h.data) }

// Snapshot returns a copy of the retained samples, oldest first.
func (h *History) Snapshot() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sample, h.n)
	n := copy(out, h.data[h.head:min(h.head+h.n, len(h.data))])
	copy(out[n:], h.data[:h.n-n])
	return out
}
