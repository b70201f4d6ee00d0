package indicator

import "math"

// HMA is the Hull Moving Average: WMA(2*WMA(n/2) - WMA(n), round(sqrt(n))).
// The three WMA stages keep independent warm-up counters; the outer stage
// only sees values once both inner stages are defined.
type HMA struct {
	period int
	half   *WMA
	full   *WMA
	smooth *WMA
	cur    scalar
}

// NewHMA creates a Hull moving average. period must be >= 2.
func NewHMA(period int) (*HMA, error) {
	if err := checkPeriod("period", period, 2); err != nil {
		return nil, err
	}
	halfP := max(period/2, 1)
	sqrtP := max(int(math.Round(math.Sqrt(float64(period)))), 1)

	half, _ := NewWMA(halfP)
	full, _ := NewWMA(period)
	smooth, _ := NewWMA(sqrtP)
	return &HMA{period: period, half: half, full: full, smooth: smooth}, nil
}

func (h *HMA) Period() int              { return h.period }
func (h *HMA) Warmup() int              { return h.period + h.smooth.Period() - 1 }
func (h *HMA) Ready() bool              { return h.smooth.Ready() }
func (h *HMA) Current() (float64, bool) { return h.cur.get() }

func (h *HMA) Next(price float64) (float64, bool) {
	hv, hok := h.half.Next(price)
	fv, fok := h.full.Next(price)
	if !hok || !fok {
		return nan, false
	}
	v, ok := h.smooth.Next(2*hv - fv)
	if !ok {
		return nan, false
	}
	return h.cur.set(v)
}

func (h *HMA) Init(history []float64) []float64 { return feed[float64, float64](h, history, nan) }

// Reset clears all three stages.
func (h *HMA) Reset() {
	h.half.Reset()
	h.full.Reset()
	h.smooth.Reset()
	h.cur.clear()
}
