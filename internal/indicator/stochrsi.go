package indicator

import "ta-core/internal/window"

// StochRSIOutput is the smoothed Stochastic RSI %K and its %D signal.
type StochRSIOutput struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

func nanStochRSI() StochRSIOutput { return StochRSIOutput{K: nan, D: nan} }

// StochRSI applies the Stochastic formula to an RSI series, then smooths
// the raw value with SMA(kSmooth) and SMA(d).
type StochRSI struct {
	rsiPeriod   int
	stochPeriod int
	kSmooth     int
	dPeriod     int

	rsi      *RSI
	extremes *window.MinMax
	k        *SMA
	d        *SMA

	out     StochRSIOutput
	defined bool
}

// NewStochRSI creates a StochRSI. Typical parameters are 14, 14, 3, 3.
func NewStochRSI(rsiPeriod, stochPeriod, kSmooth, dPeriod int) (*StochRSI, error) {
	if err := checkPeriod("rsi period", rsiPeriod, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("stoch period", stochPeriod, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("k smoothing", kSmooth, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("d period", dPeriod, 1); err != nil {
		return nil, err
	}
	s := &StochRSI{
		rsiPeriod:   rsiPeriod,
		stochPeriod: stochPeriod,
		kSmooth:     kSmooth,
		dPeriod:     dPeriod,
		extremes:    window.NewMinMax(stochPeriod),
		out:         nanStochRSI(),
	}
	s.rsi, _ = NewRSI(rsiPeriod)
	s.k, _ = NewSMA(kSmooth)
	s.d, _ = NewSMA(dPeriod)
	return s, nil
}

// Warmup counts every stage: RSI, the stochastic window, then both SMAs.
func (s *StochRSI) Warmup() int {
	return s.rsiPeriod + s.stochPeriod + s.kSmooth + s.dPeriod - 2
}

func (s *StochRSI) Ready() bool { return s.d.Ready() }

func (s *StochRSI) Current() (StochRSIOutput, bool) {
	if !s.defined {
		return nanStochRSI(), false
	}
	return s.out, true
}

func (s *StochRSI) Next(price float64) (StochRSIOutput, bool) {
	r, ok := s.rsi.Next(price)
	if !ok {
		return nanStochRSI(), false
	}
	s.extremes.Push(r, r)
	if !s.extremes.Full() {
		return nanStochRSI(), false
	}
	k, ok := s.k.Next(rawPercent(r, s.extremes.Min(), s.extremes.Max()))
	if !ok {
		return nanStochRSI(), false
	}
	d, ok := s.d.Next(k)
	if !ok {
		d = nan
	}
	s.out = StochRSIOutput{K: k, D: d}
	s.defined = true
	return s.out, true
}

func (s *StochRSI) Init(history []float64) []StochRSIOutput {
	return feed[float64, StochRSIOutput](s, history, nanStochRSI())
}

func (s *StochRSI) Reset() {
	s.rsi.Reset()
	s.extremes.Reset()
	s.k.Reset()
	s.d.Reset()
	s.out = nanStochRSI()
	s.defined = false
}
