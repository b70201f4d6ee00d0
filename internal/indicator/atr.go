package indicator

import (
	"math"

	"ta-core/internal/model"
)

// trueRange returns max(h-l, |h-prevClose|, |l-prevClose|), or h-l when
// there is no previous close.
func trueRange(b model.Bar, prevClose float64, hasPrev bool) float64 {
	hl := b.High - b.Low
	if !hasPrev {
		return hl
	}
	return math.Max(hl, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// ATR is the Average True Range: a Wilder average of the true range. The
// first bar has no previous close and contributes h-l.
type ATR struct {
	period    int
	prevClose float64
	hasPrev   bool
	avg       *Wilder
}

// NewATR creates an ATR with the given period.
func NewATR(period int) (*ATR, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	avg, _ := NewWilder(period)
	return &ATR{period: period, avg: avg}, nil
}

func (a *ATR) Period() int              { return a.period }
func (a *ATR) Warmup() int              { return a.period }
func (a *ATR) Ready() bool              { return a.avg.Ready() }
func (a *ATR) Current() (float64, bool) { return a.avg.Current() }

func (a *ATR) Next(b model.Bar) (float64, bool) {
	tr := trueRange(b, a.prevClose, a.hasPrev)
	a.prevClose = b.Close
	a.hasPrev = true
	return a.avg.Next(tr)
}

func (a *ATR) Init(history []model.Bar) []float64 {
	return feed[model.Bar, float64](a, history, nan)
}

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.prevClose = 0
	a.hasPrev = false
	a.avg.Reset()
}
