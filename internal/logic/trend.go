package logic

import (
	"math"
	"strconv"
	"strings"
)

// Window is a fixed-capacity FIFO of samples. It is always full: the
// constructor fills it with a seed so the mean is defined from the first tick.
// Not safe for concurrent use.
type Window struct {
	buf  []float64
	head int // oldest sample, next write position
}

// NewWindow creates a window of the given capacity filled with seed.
// A capacity below 1 is treated as 1.
func NewWindow(seed float64, capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	buf := make([]float64, capacity)
	for i := range buf {
		buf[i] = seed
	}
	return &Window{buf: buf}
}

// Push appends v, evicting the oldest sample.
func (w *Window) Push(v float64) {
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

// Mean returns the arithmetic mean of the window.
func (w *Window) Mean() float64 {
	var sum float64
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(len(w.buf))
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return len(w.buf)
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return cap(w.buf)
}

// Values returns a copy of the samples, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, len(w.buf))
	out = append(out, w.buf[w.head:]...)
	return append(out, w.buf[:w.head]...)
}

// TrendDetector flags a rapid humidity rise: a sample more than RiseThreshold
// above the rolling average of the samples before it.
type TrendDetector struct {
	window  *Window
	last    float64
	average float64
}

// NewTrendDetector creates a detector primed with the first observed reading.
func NewTrendDetector(seed float64, capacity int) *TrendDetector {
	w := NewWindow(seed, capacity)
	return &TrendDetector{
		window:  w,
		last:    seed,
		average: round2(w.Mean()),
	}
}

// Ingest compares sample against the current average, then appends it.
// It returns true on every tick where the rise exceeds the threshold; callers
// must ignore repeated fires themselves.
func (t *TrendDetector) Ingest(sample float64) bool {
	t.average = round2(t.window.Mean())
	change := round2(sample - t.average)
	t.window.Push(sample)
	t.last = sample
	return change > RiseThreshold
}

// Average returns the average computed on the most recent tick.
func (t *TrendDetector) Average() float64 {
	return t.average
}

// Last returns the most recent sample.
func (t *TrendDetector) Last() float64 {
	return t.last
}

// Window exposes the underlying sample window.
func (t *TrendDetector) Window() *Window {
	return t.window
}

// ParseReading converts a raw sensor state into a sample. Unavailable or
// non-numeric readings become 0, which is stored like any other sample.
func ParseReading(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
