package indicator

import (
	"ta-core/internal/model"
	"ta-core/internal/window"
)

// StochOutput is one %K/%D pair. D is NaN until its smoothing stage warms.
type StochOutput struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

func nanStoch() StochOutput { return StochOutput{K: nan, D: nan} }

// StochKind selects the Stochastic variant.
type StochKind int

const (
	// StochFast uses raw %K and %D = SMA(%K, d).
	StochFast StochKind = iota
	// StochSlow smooths raw %K with SMA(slowing) before %D.
	StochSlow
)

func (k StochKind) String() string {
	if k == StochSlow {
		return "slow"
	}
	return "fast"
}

// DefaultSlowing is the usual Slow Stochastic %K smoothing length.
const DefaultSlowing = 3

// rawPercent maps v within [lo, hi] to [0, 100]. A zero-width range is 50.
func rawPercent(v, lo, hi float64) float64 {
	rng := hi - lo
	if rng <= 0 {
		return 50.0
	}
	return 100.0 * (v - lo) / rng
}

// Stochastic is the Stochastic Oscillator over bar highs, lows and closes.
// Rolling extremes come from a pair of monotonic deques.
type Stochastic struct {
	kind    StochKind
	kPeriod int
	dPeriod int
	slowing int

	extremes *window.MinMax
	slowK    *SMA // nil for StochFast
	d        *SMA

	out     StochOutput
	defined bool
}

// NewStochasticFast creates a Fast Stochastic.
func NewStochasticFast(kPeriod, dPeriod int) (*Stochastic, error) {
	return newStochastic(StochFast, kPeriod, dPeriod, 1)
}

// NewStochasticSlow creates a Slow Stochastic.
func NewStochasticSlow(kPeriod, dPeriod, slowing int) (*Stochastic, error) {
	return newStochastic(StochSlow, kPeriod, dPeriod, slowing)
}

func newStochastic(kind StochKind, kPeriod, dPeriod, slowing int) (*Stochastic, error) {
	if err := checkPeriod("k period", kPeriod, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("d period", dPeriod, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("slowing", slowing, 1); err != nil {
		return nil, err
	}
	s := &Stochastic{
		kind:     kind,
		kPeriod:  kPeriod,
		dPeriod:  dPeriod,
		slowing:  slowing,
		extremes: window.NewMinMax(kPeriod),
		out:      nanStoch(),
	}
	if kind == StochSlow {
		s.slowK, _ = NewSMA(slowing)
	}
	s.d, _ = NewSMA(dPeriod)
	return s, nil
}

func (s *Stochastic) Kind() StochKind { return s.kind }

// Warmup returns the samples needed for a defined %D.
func (s *Stochastic) Warmup() int {
	w := s.kPeriod + s.dPeriod - 1
	if s.kind == StochSlow {
		w += s.slowing - 1
	}
	return w
}

// Ready reports whether %D is defined.
func (s *Stochastic) Ready() bool { return s.d.Ready() }

func (s *Stochastic) Current() (StochOutput, bool) {
	if !s.defined {
		return nanStoch(), false
	}
	return s.out, true
}

func (s *Stochastic) Next(b model.Bar) (StochOutput, bool) {
	s.extremes.Push(b.High, b.Low)
	if !s.extremes.Full() {
		return nanStoch(), false
	}

	k := rawPercent(b.Close, s.extremes.Min(), s.extremes.Max())
	if s.slowK != nil {
		var ok bool
		if k, ok = s.slowK.Next(k); !ok {
			return nanStoch(), false
		}
	}
	d, ok := s.d.Next(k)
	if !ok {
		d = nan
	}

	s.out = StochOutput{K: k, D: d}
	s.defined = true
	return s.out, true
}

func (s *Stochastic) Init(history []model.Bar) []StochOutput {
	return feed[model.Bar, StochOutput](s, history, nanStoch())
}

// Reset clears the oscillator state for reuse.
func (s *Stochastic) Reset() {
	s.extremes.Reset()
	if s.slowK != nil {
		s.slowK.Reset()
	}
	s.d.Reset()
	s.out = nanStoch()
	s.defined = false
}
