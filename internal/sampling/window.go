package sampling

import "time"

// Sample is one observed value at a point in time.
type Sample struct {
	At    time.Time
	Value float64
}

// Window is a bounded sliding window of samples. Appending to a full
// window evicts the oldest entry, so it never exceeds its capacity.
type Window struct {
	capacity int
	samples  []Sample
}

// NewWindow creates a window holding at most capacity samples.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Append adds a sample, evicting the oldest when the window is full.
func (w *Window) Append(s Sample) {
	if len(w.samples) == w.capacity {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:len(w.samples)-1]
	}
	w.samples = append(w.samples, s)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return len(w.samples)
}

// Samples returns the window contents in arrival order.
func (w *Window) Samples() []Sample {
	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Last returns the newest sample.
func (w *Window) Last() (Sample, bool) {
	if len(w.samples) == 0 {
		return Sample{}, false
	}
	return w.samples[len(w.samples)-1], true
}

// Rate computes the per-second rate between the two newest samples,
// treating the values as monotonically growing counters. A decrease
// (stats reset on the server) clamps to zero rather than going negative.
func (w *Window) Rate() float64 {
	if len(w.samples) < 2 {
		return 0
	}
	return RatePerSecond(w.samples[len(w.samples)-2], w.samples[len(w.samples)-1])
}

// RatePerSecond is (b-a)/elapsed with the elapsed time floored at one
// second, clamped to zero on counter decrease.
func RatePerSecond(a, b Sample) float64 {
	delta := b.Value - a.Value
	if delta < 0 {
		return 0
	}
	secs := b.At.Sub(a.At).Seconds()
	if secs < 1 {
		secs = 1
	}
	return delta / secs
}
