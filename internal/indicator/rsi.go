package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per sample; no history scans.
type RSI struct {
	period  int
	count   int
	prev    float64
	avgGain *Wilder
	avgLoss *Wilder
	cur     scalar
}

// NewRSI creates a new RSI with the given period (typically 14).
func NewRSI(period int) (*RSI, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	gain, _ := NewWilder(period)
	loss, _ := NewWilder(period)
	return &RSI{period: period, avgGain: gain, avgLoss: loss}, nil
}

func (r *RSI) Period() int              { return r.period }
func (r *RSI) Warmup() int              { return r.period + 1 }
func (r *RSI) Ready() bool              { return r.count > r.period }
func (r *RSI) Current() (float64, bool) { return r.cur.get() }

func (r *RSI) Next(price float64) (float64, bool) {
	r.count++
	if r.count == 1 {
		// First sample: just record price, no delta yet
		r.prev = price
		return nan, false
	}

	delta := price - r.prev
	r.prev = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	ag, ok := r.avgGain.Next(gain)
	al, _ := r.avgLoss.Next(loss)
	if !ok {
		return nan, false
	}
	return r.cur.set(rsiFromAverages(ag, al))
}

// rsiFromAverages maps Wilder averages to [0, 100]. A flat window (both
// averages zero) is 50; no losses is 100.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

func (r *RSI) Init(history []float64) []float64 { return feed[float64, float64](r, history, nan) }

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prev = 0
	r.avgGain.Reset()
	r.avgLoss.Reset()
	r.cur.clear()
}
