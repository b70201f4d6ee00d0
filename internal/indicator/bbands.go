package indicator

import (
	"math"

	"ta-core/internal/core"
	"ta-core/internal/window"
)

// BBandsOutput is one Bollinger Bands record.
type BBandsOutput struct {
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
	PercentB  float64 `json:"percent_b"`
	Bandwidth float64 `json:"bandwidth"`
}

func nanBBands() BBandsOutput {
	return BBandsOutput{Upper: nan, Middle: nan, Lower: nan, PercentB: nan, Bandwidth: nan}
}

// flatTolerance is the relative standard deviation under which a window is
// treated as flat, absorbing the residue left by incremental updates.
const flatTolerance = 1e-12

// BBands computes Bollinger Bands: SMA(period) +/- k population standard
// deviations, with %B and bandwidth derived from the current price.
type BBands struct {
	period int
	k      float64
	vr     *window.Variance
	out    BBandsOutput
	ok     bool
}

// NewBBands creates Bollinger Bands. k must be finite and > 0.
func NewBBands(period int, k float64) (*BBands, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	if !(k > 0) || math.IsInf(k, 0) {
		return nil, core.Invalidf("k must be a positive finite number, got %v", k)
	}
	return &BBands{period: period, k: k, vr: window.NewVariance(period), out: nanBBands()}, nil
}

func (b *BBands) Period() int { return b.period }
func (b *BBands) K() float64  { return b.k }
func (b *BBands) Warmup() int { return b.period }
func (b *BBands) Ready() bool { return b.vr.Full() }

func (b *BBands) Current() (BBandsOutput, bool) {
	if !b.ok {
		return nanBBands(), false
	}
	return b.out, true
}

func (b *BBands) Next(price float64) (BBandsOutput, bool) {
	b.vr.Push(price)
	if !b.vr.Full() {
		return nanBBands(), false
	}

	mean := b.vr.Mean()
	sd := b.vr.StdDev()
	if sd <= flatTolerance*math.Max(math.Abs(mean), 1) {
		sd = 0
	}
	upper := mean + b.k*sd
	lower := mean - b.k*sd

	pctB := nan
	if width := upper - lower; width > 0 {
		pctB = (price - lower) / width
	}
	bandwidth := 0.0
	if mean > 0 {
		bandwidth = (upper - lower) / mean
	}

	b.out = BBandsOutput{Upper: upper, Middle: mean, Lower: lower, PercentB: pctB, Bandwidth: bandwidth}
	b.ok = true
	return b.out, true
}

func (b *BBands) Init(history []float64) []BBandsOutput {
	return feed[float64, BBandsOutput](b, history, nanBBands())
}

// Reset clears the band state for reuse.
func (b *BBands) Reset() {
	b.vr.Reset()
	b.out = nanBBands()
	b.ok = false
}
