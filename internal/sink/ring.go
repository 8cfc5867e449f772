package sink

import "FlowGuard/internal/model"

// ring keeps the last cap events in arrival order.
type ring struct {
	buf  []model.Event
	next int
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 1
	}
	return &ring{buf: make([]model.Event, size)}
}

func (r *ring) add(e model.Event) {
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// last returns up to n newest events, oldest first.
func (r *ring) last(n int) []model.Event {
	size := r.len()
	if n <= 0 || n > size {
		n = size
	}
	out := make([]model.Event, n)
	start := (r.next - n + len(r.buf)) % len(r.buf)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
