package indicator

import (
	"math"

	"ta-core/internal/model"
)

// ADXOutput carries ADX and the two directional indicators, all in [0, 100].
// DI values are defined one period before ADX; until then ADX is NaN.
type ADXOutput struct {
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`
}

func nanADX() ADXOutput { return ADXOutput{ADX: nan, PlusDI: nan, MinusDI: nan} }

// ADX is Wilder's Average Directional Index.
//
// TR, +DM and -DM are summed over the first period changes, then smoothed
// as s = s - s/period + x. DX from the smoothed values feeds a Wilder
// average whose seed is the mean of the first period DX values.
type ADX struct {
	period int
	count  int

	prevHigh, prevLow, prevClose float64

	sumTR, sumPlus, sumMinus float64 // seed sums, then smoothed sums
	dx                       *Wilder

	out     ADXOutput
	defined bool
}

// NewADX creates an ADX with the given period.
func NewADX(period int) (*ADX, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	dx, _ := NewWilder(period)
	return &ADX{period: period, dx: dx, out: nanADX()}, nil
}

func (a *ADX) Period() int { return a.period }

// Warmup returns the samples needed for a defined ADX; DI is defined
// after period+1 samples.
func (a *ADX) Warmup() int { return 2 * a.period }

// Ready reports whether ADX itself is defined.
func (a *ADX) Ready() bool { return a.dx.Ready() }

func (a *ADX) Current() (ADXOutput, bool) {
	if !a.defined {
		return nanADX(), false
	}
	return a.out, true
}

// directionalMovement follows Wilder: only the larger positive move counts.
func directionalMovement(high, low, prevHigh, prevLow float64) (plus, minus float64) {
	up := high - prevHigh
	down := prevLow - low
	if up > down && up > 0 {
		plus = up
	}
	if down > up && down > 0 {
		minus = down
	}
	return plus, minus
}

// diAndDX converts smoothed sums to +DI, -DI and DX. A zero TR sum gives
// all zeros; a zero DI sum gives DX = 0.
func diAndDX(plusDM, minusDM, tr float64) (plusDI, minusDI, dx float64) {
	if tr == 0 {
		return 0, 0, 0
	}
	plusDI = 100 * plusDM / tr
	minusDI = 100 * minusDM / tr
	sum := plusDI + minusDI
	if sum == 0 {
		return plusDI, minusDI, 0
	}
	return plusDI, minusDI, 100 * math.Abs(plusDI-minusDI) / sum
}

func (a *ADX) Next(b model.Bar) (ADXOutput, bool) {
	a.count++
	if a.count == 1 {
		a.prevHigh, a.prevLow, a.prevClose = b.High, b.Low, b.Close
		return nanADX(), false
	}

	tr := trueRange(b, a.prevClose, true)
	plusDM, minusDM := directionalMovement(b.High, b.Low, a.prevHigh, a.prevLow)
	a.prevHigh, a.prevLow, a.prevClose = b.High, b.Low, b.Close

	if a.count <= a.period+1 {
		a.sumTR += tr
		a.sumPlus += plusDM
		a.sumMinus += minusDM
		if a.count < a.period+1 {
			return nanADX(), false
		}
	} else {
		n := float64(a.period)
		a.sumTR = a.sumTR - a.sumTR/n + tr
		a.sumPlus = a.sumPlus - a.sumPlus/n + plusDM
		a.sumMinus = a.sumMinus - a.sumMinus/n + minusDM
	}

	plusDI, minusDI, dx := diAndDX(a.sumPlus, a.sumMinus, a.sumTR)
	adx, ok := a.dx.Next(dx)
	if !ok {
		adx = nan
	}
	a.out = ADXOutput{ADX: adx, PlusDI: plusDI, MinusDI: minusDI}
	a.defined = true
	return a.out, true
}

func (a *ADX) Init(history []model.Bar) []ADXOutput {
	return feed[model.Bar, ADXOutput](a, history, nanADX())
}

// Reset clears the ADX state for reuse.
func (a *ADX) Reset() {
	a.count = 0
	a.prevHigh, a.prevLow, a.prevClose = 0, 0, 0
	a.sumTR, a.sumPlus, a.sumMinus = 0, 0, 0
	a.dx.Reset()
	a.out = nanADX()
	a.defined = false
}
