package indicator

import "ta-core/internal/core"

// EMA calculates Exponential Moving Average.
// O(1) per update; the first period samples only accumulate the SMA seed.
type EMA struct {
	period     int
	multiplier float64
	count      int
	sum        float64
	cur        scalar
}

// NewEMA creates a new EMA with multiplier 2/(period+1).
func NewEMA(period int) (*EMA, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}, nil
}

// NewEMAWithMultiplier creates an EMA with a caller-chosen multiplier in (0, 1].
func NewEMAWithMultiplier(period int, multiplier float64) (*EMA, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	if !(multiplier > 0 && multiplier <= 1) {
		return nil, core.Invalidf("multiplier must be in (0, 1], got %v", multiplier)
	}
	return &EMA{period: period, multiplier: multiplier}, nil
}

func (e *EMA) Period() int              { return e.period }
func (e *EMA) Multiplier() float64      { return e.multiplier }
func (e *EMA) Warmup() int              { return e.period }
func (e *EMA) Ready() bool              { return e.count >= e.period }
func (e *EMA) Current() (float64, bool) { return e.cur.get() }

func (e *EMA) Next(price float64) (float64, bool) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			return e.cur.set(e.sum / float64(e.period))
		}
		return nan, false
	}

	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	return e.cur.set(price*e.multiplier + e.cur.value*(1-e.multiplier))
}

func (e *EMA) Init(history []float64) []float64 { return feed[float64, float64](e, history, nan) }

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.count = 0
	e.sum = 0
	e.cur.clear()
}
