package indicator

import "ta-core/internal/window"

// WMA calculates the linearly Weighted Moving Average, newest sample
// weighted period, oldest weighted 1.
type WMA struct {
	period int
	win    *window.Weighted
	cur    scalar
}

// NewWMA creates a WMA with the given period.
func NewWMA(period int) (*WMA, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	return &WMA{period: period, win: window.NewWeighted(period)}, nil
}

func (w *WMA) Period() int              { return w.period }
func (w *WMA) Warmup() int              { return w.period }
func (w *WMA) Ready() bool              { return w.win.Full() }
func (w *WMA) Current() (float64, bool) { return w.cur.get() }

func (w *WMA) Next(price float64) (float64, bool) {
	w.win.Push(price)
	if !w.win.Full() {
		return nan, false
	}
	return w.cur.set(w.win.Value())
}

func (w *WMA) Init(history []float64) []float64 { return feed[float64, float64](w, history, nan) }

// Reset clears the WMA state for reuse.
func (w *WMA) Reset() {
	w.win.Reset()
	w.cur.clear()
}
