package indicator

import (
	"math"

	"ta-core/internal/model"
)

// CVD is the cumulative sum of caller-supplied volume deltas. A NaN delta
// leaves the total unchanged; the output repeats the last total, or stays
// undefined if nothing has been summed yet.
type CVD struct {
	total float64
	cur   scalar
}

func NewCVD() *CVD { return &CVD{} }

func (c *CVD) Warmup() int              { return 1 }
func (c *CVD) Ready() bool              { return c.cur.defined }
func (c *CVD) Current() (float64, bool) { return c.cur.get() }

func (c *CVD) Next(delta float64) (float64, bool) {
	if math.IsNaN(delta) {
		return c.cur.get()
	}
	c.total += delta
	return c.cur.set(c.total)
}

func (c *CVD) Init(deltas []float64) []float64 { return feed[float64, float64](c, deltas, nan) }

func (c *CVD) Reset() {
	c.total = 0
	c.cur.clear()
}

// EstimateDelta approximates a bar's signed volume from where it closed in
// its range: vol·(2·buyRatio−1) with buyRatio = (close−low)/(high−low).
// A flat bar (buyRatio 0.5) or non-positive volume gives 0.
func EstimateDelta(b model.Bar) float64 {
	rng := b.High - b.Low
	if rng <= 0 || b.Volume <= 0 {
		return 0
	}
	buy := (b.Close - b.Low) / rng
	return b.Volume * (2*buy - 1)
}

// CVDOHLCV accumulates EstimateDelta over bars.
type CVDOHLCV struct {
	inner CVD
}

func NewCVDOHLCV() *CVDOHLCV { return &CVDOHLCV{} }

func (c *CVDOHLCV) Warmup() int              { return 1 }
func (c *CVDOHLCV) Ready() bool              { return c.inner.Ready() }
func (c *CVDOHLCV) Current() (float64, bool) { return c.inner.Current() }

func (c *CVDOHLCV) Next(b model.Bar) (float64, bool) { return c.inner.Next(EstimateDelta(b)) }

func (c *CVDOHLCV) Init(history []model.Bar) []float64 {
	return feed[model.Bar, float64](c, history, nan)
}

func (c *CVDOHLCV) Reset() { c.inner.Reset() }
