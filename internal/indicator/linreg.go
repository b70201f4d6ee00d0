package indicator

import (
	"math"

	"ta-core/internal/window"
)

// LinRegOutput is the least-squares fit of the current window, evaluated at
// the newest bar, with a residual standard-deviation channel around it.
type LinRegOutput struct {
	Value     float64 `json:"value"`
	Upper     float64 `json:"upper"`
	Lower     float64 `json:"lower"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	RSquared  float64 `json:"r_squared"`
	StdDev    float64 `json:"std_dev"`
}

func nanLinReg() LinRegOutput {
	return LinRegOutput{Value: nan, Upper: nan, Lower: nan, Slope: nan, Intercept: nan, R: nan, RSquared: nan, StdDev: nan}
}

// LinReg is a rolling linear regression channel with x = 0..period-1.
//
// Σy and the centered Σ(y-ȳ)² come from a windowed Welford accumulator.
// Σxy slides in O(1): dropping the oldest value shifts every x down by one,
// which subtracts the remaining Σy. Σxy is rebuilt from the window once per
// period to keep rounding drift bounded.
type LinReg struct {
	period    int
	numStdDev float64

	win     *window.Variance
	sumXY   float64
	slides  int
	xMean   float64
	sxx     float64
	current LinRegOutput
	defined bool
}

// NewLinReg creates a regression channel. numStdDev scales the band width.
func NewLinReg(period int, numStdDev float64) (*LinReg, error) {
	if err := checkPeriod("period", period, 2); err != nil {
		return nil, err
	}
	if err := checkFinite("std dev multiplier", numStdDev); err != nil {
		return nil, err
	}
	if numStdDev < 0 {
		return nil, invalidNegative("std dev multiplier", numStdDev)
	}
	n := float64(period)
	return &LinReg{
		period:    period,
		numStdDev: numStdDev,
		win:       window.NewVariance(period),
		xMean:     (n - 1) / 2,
		sxx:       n * (n*n - 1) / 12,
		current:   nanLinReg(),
	}, nil
}

func (l *LinReg) Period() int        { return l.period }
func (l *LinReg) NumStdDev() float64 { return l.numStdDev }
func (l *LinReg) Warmup() int        { return l.period }
func (l *LinReg) Ready() bool        { return l.win.Full() }

func (l *LinReg) Current() (LinRegOutput, bool) {
	if !l.defined {
		return nanLinReg(), false
	}
	return l.current, true
}

func (l *LinReg) Next(price float64) (LinRegOutput, bool) {
	if !l.win.Full() {
		l.sumXY += float64(l.win.Len()) * price
		l.win.Push(price)
		if !l.win.Full() {
			return nanLinReg(), false
		}
	} else {
		oldest := l.win.At(0)
		sumY := l.win.Sum()
		l.win.Push(price)
		l.slides++
		if l.slides >= l.period {
			l.rebuild()
		} else {
			l.sumXY += float64(l.period-1)*price - (sumY - oldest)
		}
	}

	l.current = l.fit()
	l.defined = true
	return l.current, true
}

func (l *LinReg) rebuild() {
	l.slides = 0
	l.sumXY = 0
	for i := 0; i < l.win.Len(); i++ {
		l.sumXY += float64(i) * l.win.At(i)
	}
}

func (l *LinReg) fit() LinRegOutput {
	n := float64(l.period)
	yMean := l.win.Mean()
	syy := l.win.M2()
	sxy := l.sumXY - l.xMean*l.win.Sum()

	slope := sxy / l.sxx
	intercept := yMean - slope*l.xMean
	value := slope*(n-1) + intercept

	r := 0.0
	if syy > 0 {
		r = sxy / math.Sqrt(l.sxx*syy)
		r = math.Max(-1, math.Min(1, r))
	}
	ssRes := syy - slope*sxy
	if ssRes < 0 {
		ssRes = 0
	}
	sd := math.Sqrt(ssRes / n)

	return LinRegOutput{
		Value:     value,
		Upper:     value + l.numStdDev*sd,
		Lower:     value - l.numStdDev*sd,
		Slope:     slope,
		Intercept: intercept,
		R:         r,
		RSquared:  r * r,
		StdDev:    sd,
	}
}

func (l *LinReg) Init(history []float64) []LinRegOutput {
	return feed[float64, LinRegOutput](l, history, nanLinReg())
}

func (l *LinReg) Reset() {
	l.win.Reset()
	l.sumXY = 0
	l.slides = 0
	l.current = nanLinReg()
	l.defined = false
}
