package window

// Weighted maintains the plain sum S and the linearly weighted sum W of the
// last period values, weights 1..period with the newest value heaviest.
type Weighted struct {
	ring     *Ring
	period   int
	weighted float64
	divisor  float64
}

// NewWeighted creates a weighted window of the given period.
func NewWeighted(period int) *Weighted {
	if period < 1 {
		period = 1
	}
	return &Weighted{
		ring:    NewRing(period),
		period:  period,
		divisor: float64(period*(period+1)) / 2.0,
	}
}

// Push adds v. While filling, W is built directly (the k-th value pushed
// carries weight k); once full, W' = W + period*v - S with S taken before
// the eviction.
func (w *Weighted) Push(v float64) {
	if !w.ring.Full() {
		w.ring.Push(v)
		w.weighted += float64(w.ring.Len()) * v
		return
	}
	prevSum := w.ring.Sum()
	w.ring.Push(v)
	w.weighted += float64(w.period)*v - prevSum
}

// Full reports whether period values have been pushed.
func (w *Weighted) Full() bool { return w.ring.Full() }

// Value returns W / (period*(period+1)/2). Only meaningful when Full.
func (w *Weighted) Value() float64 { return w.weighted / w.divisor }

// Sum returns the plain sum S.
func (w *Weighted) Sum() float64 { return w.ring.Sum() }

// Reset clears the window.
func (w *Weighted) Reset() {
	w.ring.Reset()
	w.weighted = 0
}
