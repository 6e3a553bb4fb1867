// Package growth tracks a rolling history of one sensor's temperature and
// turns it into an hourly growth-rate estimate.
package growth

const DefaultCapacity = 60

// Window is a fixed-capacity FIFO of samples in insertion order. It is not
// safe for concurrent use; the Sampler goroutine owns it.
type Window struct {
	capacity int
	values   []float64
}

// NewWindow returns an empty window. A non-positive capacity selects
// DefaultCapacity.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		capacity: capacity,
		values:   make([]float64, 0, capacity+1),
	}
}

// Push appends v, evicting the oldest sample once the window is full.
func (w *Window) Push(v float64) {
	w.values = append(w.values, v)
	if len(w.values) > w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:w.capacity]
	}
}

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *Window) Len() int { return len(w.values) }

func (w *Window) Cap() int { return w.capacity }
