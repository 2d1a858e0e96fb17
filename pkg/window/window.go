package window

// Window is a fixed-capacity FIFO of float64 values backed by a ring buffer.
// Pushing into a full window evicts the oldest values.
//
// It is unsafe to call Window methods from concurrent goroutines.
type Window struct {
	buf  []float64
	head int
	size int
}

// New returns a window with the given capacity filled with init. When init is
// longer than the capacity only its newest values are kept.
func New(capacity int, init ...float64) *Window {
	if capacity < 0 {
		capacity = 0
	}
	w := &Window{buf: make([]float64, capacity)}
	w.Push(init...)
	return w
}

func (w *Window) Cap() int {
	return len(w.buf)
}

func (w *Window) Len() int {
	return w.size
}

// Push appends values, dropping as many of the oldest values as needed to
// stay within capacity.
func (w *Window) Push(values ...float64) {
	capacity := len(w.buf)
	if capacity == 0 {
		return
	}
	if len(values) >= capacity {
		copy(w.buf, values[len(values)-capacity:])
		w.head = 0
		w.size = capacity
		return
	}
	for _, v := range values {
		tail := (w.head + w.size) % capacity
		w.buf[tail] = v
		if w.size < capacity {
			w.size++
		} else {
			w.head = (w.head + 1) % capacity
		}
	}
}

// Slide drops the n oldest values and appends values. With n equal to
// len(values) on a full window it is the same as Push.
func (w *Window) Slide(n int, values ...float64) {
	w.Drop(n)
	w.Push(values...)
}

// Drop removes up to n of the oldest values.
func (w *Window) Drop(n int) {
	if n <= 0 {
		return
	}
	if n >= w.size {
		w.head, w.size = 0, 0
		return
	}
	w.head = (w.head + n) % len(w.buf)
	w.size -= n
}

// Values returns a copy of the content, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.size)
	capacity := len(w.buf)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%capacity]
	}
	return out
}
