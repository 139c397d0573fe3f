package buffer

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded signals an append of more rows than the window can hold.
// The window is left unchanged in that case.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// Window is a fixed-capacity FIFO store of raw sample rows and their timestamps.
// New rows are written at the tail, evicting the oldest ones by an in-place shift.
// The length of the window is constant after construction.
type Window struct {
	capacity int
	width    int
	times    []int64
	rows     [][]float64
	received int
}

// NewWindow creates a new window for the given number of rows of the given width.
func NewWindow(capacity, width int) *Window {
	rows := make([][]float64, capacity)
	for i := range rows {
		rows[i] = make([]float64, width)
	}
	return &Window{
		capacity: capacity,
		width:    width,
		times:    make([]int64, capacity),
		rows:     rows,
	}
}

// Push appends a single row to the window.
func (w *Window) Push(t int64, row []float64) error {
	return w.Append([]int64{t}, [][]float64{row})
}

// Append shifts the stored rows left by len(rows) and writes the new rows at the tail,
// preserving the timestamp to row correspondence.
func (w *Window) Append(times []int64, rows [][]float64) error {
	n := len(rows)
	if n != len(times) {
		return fmt.Errorf("timestamps %d do not match rows %d", len(times), n)
	}
	if n > w.capacity {
		return fmt.Errorf("%d rows for %d slots: %w", n, w.capacity, ErrCapacityExceeded)
	}
	for _, row := range rows {
		if len(row) != w.width {
			return fmt.Errorf("row width %d does not match window width %d", len(row), w.width)
		}
	}
	keep := w.capacity - n
	for i := 0; i < keep; i++ {
		w.times[i] = w.times[i+n]
		copy(w.rows[i], w.rows[i+n])
	}
	for i := 0; i < n; i++ {
		w.times[keep+i] = times[i]
		copy(w.rows[keep+i], rows[i])
	}
	w.received += n
	return nil
}

// Len returns the fixed window length.
func (w *Window) Len() int {
	return w.capacity
}

// Width returns the raw row width.
func (w *Window) Width() int {
	return w.width
}

// Received returns the total number of rows pushed since construction.
func (w *Window) Received() int {
	return w.received
}

// Full reports whether the window has seen at least capacity rows.
func (w *Window) Full() bool {
	return w.received >= w.capacity
}

// Times returns a copy of the stored timestamps in order.
func (w *Window) Times() []int64 {
	tt := make([]int64, w.capacity)
	copy(tt, w.times)
	return tt
}

// Rows returns a copy of the stored rows in order.
func (w *Window) Rows() [][]float64 {
	vv := make([][]float64, w.capacity)
	for i, row := range w.rows {
		vv[i] = make([]float64, w.width)
		copy(vv[i], row)
	}
	return vv
}

// Column returns a copy of the given raw column over the whole window.
func (w *Window) Column(i int) []float64 {
	cc := make([]float64, w.capacity)
	for j, row := range w.rows {
		cc[j] = row[i]
	}
	return cc
}
