package indicator

// Wilder is the smoothed moving average (SMMA/RMA) used inside RSI, ATR,
// ADX and MFI. The first value is SMA(period), then
// avg = (prev*(period-1) + x) / period.
type Wilder struct {
	period int
	count  int
	sum    float64
	cur    scalar
}

// NewWilder creates a Wilder smoother with the given period.
func NewWilder(period int) (*Wilder, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	return &Wilder{period: period}, nil
}

func (w *Wilder) Period() int              { return w.period }
func (w *Wilder) Warmup() int              { return w.period }
func (w *Wilder) Ready() bool              { return w.count >= w.period }
func (w *Wilder) Current() (float64, bool) { return w.cur.get() }

func (w *Wilder) Next(x float64) (float64, bool) {
	w.count++

	if w.count <= w.period {
		w.sum += x
		if w.count == w.period {
			return w.cur.set(w.sum / float64(w.period))
		}
		return nan, false
	}

	p := float64(w.period)
	return w.cur.set((w.cur.value*(p-1) + x) / p)
}

func (w *Wilder) Init(history []float64) []float64 { return feed[float64, float64](w, history, nan) }

// Reset clears the smoother state for reuse.
func (w *Wilder) Reset() {
	w.count = 0
	w.sum = 0
	w.cur.clear()
}
