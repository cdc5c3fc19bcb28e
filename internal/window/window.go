package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyWindow is returned when reading from a window with no samples.
	ErrEmptyWindow = errors.New("window: empty")
	// ErrInsufficientHistory is returned when fewer than two samples are held.
	ErrInsufficientHistory = errors.New("window: insufficient history")
	// ErrIndexOutOfRange is returned for reads outside [0, Len()).
	ErrIndexOutOfRange = errors.New("window: index out of range")
)

// DefaultCapacity is the number of samples kept when no size is configured.
const DefaultCapacity = 5

// Sample is a single price observation.
type Sample struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// Window is a fixed-capacity FIFO of the most recent samples.
// Index 0 is the oldest sample, Len()-1 the newest.
type Window struct {
	buf   []Sample
	start int
	size  int
}

// New allocates an empty window holding at most capacity samples.
func New(capacity int) *Window {
	if capacity <= 0 {
		panic("window capacity must be positive")
	}
	return &Window{buf: make([]Sample, capacity)}
}

// Append stores s as the newest sample, evicting the oldest when full.
func (w *Window) Append(s Sample) {
	if w.size == len(w.buf) {
		w.buf[w.start] = s
		w.start = (w.start + 1) % len(w.buf)
		return
	}
	w.buf[(w.start+w.size)%len(w.buf)] = s
	w.size++
}

// Len reports the number of samples currently held.
func (w *Window) Len() int { return w.size }

// Cap reports the window capacity.
func (w *Window) Cap() int { return len(w.buf) }

// IsFull reports whether Len() == Cap().
func (w *Window) IsFull() bool { return w.size == len(w.buf) }

// At returns the sample i positions after the oldest.
func (w *Window) At(i int) (Sample, error) {
	if i < 0 || i >= w.size {
		return Sample{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, w.size)
	}
	return w.buf[(w.start+i)%len(w.buf)], nil
}

// Newest returns the most recently appended sample.
func (w *Window) Newest() (Sample, error) {
	if w.size == 0 {
		return Sample{}, ErrEmptyWindow
	}
	return w.At(w.size - 1)
}

// SecondNewest returns the sample appended just before Newest.
func (w *Window) SecondNewest() (Sample, error) {
	if w.size < 2 {
		return Sample{}, ErrInsufficientHistory
	}
	return w.At(w.size - 2)
}

// Oldest returns the sample at index 0. It is only a meaningful
// medium-horizon reference once IsFull reports true.
func (w *Window) Oldest() (Sample, error) {
	if w.size == 0 {
		return Sample{}, ErrEmptyWindow
	}
	return w.At(0)
}

// Samples copies the window contents, oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, w.size)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}
