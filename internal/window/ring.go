// Package window provides the fixed-capacity sliding-window primitives the
// indicator calculators are built from. Every structure here is sized from
// a period at construction and never grows afterwards.
package window

// Ring is a preallocated circular buffer of float64 with a running sum.
type Ring struct {
	buf   []float64
	idx   int // next write position
	count int // values currently held, <= len(buf)
	sum   float64
}

// NewRing creates a ring holding up to capacity values. capacity must be >= 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v. When the ring is already full the oldest value is
// evicted and returned with evicted=true.
func (r *Ring) Push(v float64) (old float64, evicted bool) {
	if r.count == len(r.buf) {
		old = r.buf[r.idx]
		evicted = true
		r.sum -= old
	} else {
		r.count++
	}
	r.buf[r.idx] = v
	r.sum += v
	r.idx++
	if r.idx == len(r.buf) {
		r.idx = 0
	}
	return old, evicted
}

// Full reports whether the ring holds capacity values.
func (r *Ring) Full() bool { return r.count == len(r.buf) }

// Len returns the number of values held.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Sum returns the running sum of the held values.
func (r *Ring) Sum() float64 { return r.sum }

// Mean returns Sum/Len, or 0 when empty.
func (r *Ring) Mean() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}

// At returns the i-th held value, 0 being the oldest.
func (r *Ring) At(i int) float64 {
	start := r.idx - r.count
	if start < 0 {
		start += len(r.buf)
	}
	j := start + i
	if j >= len(r.buf) {
		j -= len(r.buf)
	}
	return r.buf[j]
}

// Oldest returns the value that the next Push on a full ring will evict.
func (r *Ring) Oldest() float64 { return r.At(0) }

// Newest returns the most recently pushed value.
func (r *Ring) Newest() float64 { return r.At(r.count - 1) }

// Reset empties the ring, keeping its capacity.
func (r *Ring) Reset() {
	r.idx = 0
	r.count = 0
	r.sum = 0
	for i := range r.buf {
		r.buf[i] = 0
	}
}
