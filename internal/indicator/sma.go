package indicator

import "ta-core/internal/window"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated ring with a running sum for an O(1) hot path.
type SMA struct {
	period int
	ring   *window.Ring
	cur    scalar
}

// NewSMA creates a new SMA calculator with the given period.
func NewSMA(period int) (*SMA, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	return &SMA{period: period, ring: window.NewRing(period)}, nil
}

// Period returns the configured window length.
func (s *SMA) Period() int { return s.period }

// Warmup returns the number of samples before the first output.
func (s *SMA) Warmup() int { return s.period }

func (s *SMA) Next(price float64) (float64, bool) {
	s.ring.Push(price)
	if !s.ring.Full() {
		return nan, false
	}
	return s.cur.set(s.ring.Sum() / float64(s.period))
}

func (s *SMA) Init(history []float64) []float64 { return feed[float64, float64](s, history, nan) }

// Current returns the last defined average.
func (s *SMA) Current() (float64, bool) { return s.cur.get() }

// Ready reports whether the window is full.
func (s *SMA) Ready() bool { return s.ring.Full() }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.ring.Reset()
	s.cur.clear()
}
