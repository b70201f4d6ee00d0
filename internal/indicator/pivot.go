package indicator

import (
	"math"
	"strings"

	"ta-core/internal/core"
	"ta-core/internal/model"
	"ta-core/internal/session"
)

// PivotVariant selects the pivot formula.
type PivotVariant int

const (
	PivotStandard PivotVariant = iota
	PivotFibonacci
	PivotWoodie
)

func (v PivotVariant) String() string {
	switch v {
	case PivotFibonacci:
		return "fibonacci"
	case PivotWoodie:
		return "woodie"
	default:
		return "standard"
	}
}

// ParsePivotVariant parses "standard", "fibonacci" or "woodie"
// (case-insensitive).
func ParsePivotVariant(s string) (PivotVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard", "classic":
		return PivotStandard, nil
	case "fibonacci", "fib":
		return PivotFibonacci, nil
	case "woodie":
		return PivotWoodie, nil
	}
	return 0, core.Invalidf("unknown pivot variant %q", s)
}

// PivotLevels is a pivot with three resistance and three support levels.
type PivotLevels struct {
	P  float64 `json:"pivot"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	R3 float64 `json:"r3"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
	S3 float64 `json:"s3"`
}

func nanPivot() PivotLevels {
	return PivotLevels{P: nan, R1: nan, R2: nan, R3: nan, S1: nan, S2: nan, S3: nan}
}

// PivotPoints computes levels from one period's high, low and close. Any
// NaN input gives all-NaN levels.
func PivotPoints(v PivotVariant, high, low, close float64) PivotLevels {
	if math.IsNaN(high) || math.IsNaN(low) || math.IsNaN(close) {
		return nanPivot()
	}
	rng := high - low
	switch v {
	case PivotFibonacci:
		p := (high + low + close) / 3
		return PivotLevels{
			P:  p,
			R1: p + 0.382*rng, R2: p + 0.618*rng, R3: p + rng,
			S1: p - 0.382*rng, S2: p - 0.618*rng, S3: p - rng,
		}
	case PivotWoodie:
		return floorLevels((high+low+2*close)/4, high, low)
	default:
		return floorLevels((high+low+close)/3, high, low)
	}
}

// floorLevels are the classic floor-trader levels around pivot p.
func floorLevels(p, high, low float64) PivotLevels {
	rng := high - low
	return PivotLevels{
		P:  p,
		R1: 2*p - low, R2: p + rng, R3: high + 2*(p-low),
		S1: 2*p - high, S2: p - rng, S3: low - 2*(high-p),
	}
}

// PivotStream maps each bar's own H/L/C to pivot levels. Callers supply
// bars that already span one period (a day, a week); see SessionPivots
// for grouping raw bars automatically.
type PivotStream struct {
	variant PivotVariant
	out     PivotLevels
	defined bool
}

func NewPivotStream(v PivotVariant) *PivotStream {
	return &PivotStream{variant: v, out: nanPivot()}
}

func (p *PivotStream) Variant() PivotVariant { return p.variant }
func (p *PivotStream) Warmup() int           { return 1 }
func (p *PivotStream) Ready() bool           { return p.defined }

func (p *PivotStream) Current() (PivotLevels, bool) {
	if !p.defined {
		return nanPivot(), false
	}
	return p.out, true
}

func (p *PivotStream) Next(b model.Bar) (PivotLevels, bool) {
	lv := PivotPoints(p.variant, b.High, b.Low, b.Close)
	if math.IsNaN(lv.P) {
		return lv, false
	}
	p.out = lv
	p.defined = true
	return lv, true
}

func (p *PivotStream) Init(history []model.Bar) []PivotLevels {
	return feed[model.Bar, PivotLevels](p, history, nanPivot())
}

func (p *PivotStream) Reset() {
	p.out = nanPivot()
	p.defined = false
}

// SessionPivots groups raw bars into sessions and, for every bar of a
// session, emits the levels of the previous completed session. Output is
// undefined until the first session closes.
type SessionPivots struct {
	variant PivotVariant
	grouper *session.Grouper
	out     PivotLevels
	defined bool
}

// NewSessionPivots creates session pivots over period (session.Day,
// session.Week, session.Month or a fixed duration).
func NewSessionPivots(v PivotVariant, period session.Period) (*SessionPivots, error) {
	g, err := session.NewGrouper(period)
	if err != nil {
		return nil, err
	}
	return &SessionPivots{variant: v, grouper: g, out: nanPivot()}, nil
}

func (s *SessionPivots) Variant() PivotVariant  { return s.variant }
func (s *SessionPivots) Period() session.Period { return s.grouper.Period() }

// Warmup is data dependent; a full session must pass first.
func (s *SessionPivots) Warmup() int { return 1 }
func (s *SessionPivots) Ready() bool { return s.defined }

func (s *SessionPivots) Current() (PivotLevels, bool) {
	if !s.defined {
		return nanPivot(), false
	}
	return s.out, true
}

func (s *SessionPivots) Next(b model.Bar) (PivotLevels, bool) {
	if prev, closed := s.grouper.Add(b); closed {
		lv := PivotPoints(s.variant, prev.High, prev.Low, prev.Close)
		if !math.IsNaN(lv.P) {
			s.out = lv
			s.defined = true
		}
	}
	return s.Current()
}

func (s *SessionPivots) Init(history []model.Bar) []PivotLevels {
	return feed[model.Bar, PivotLevels](s, history, nanPivot())
}

func (s *SessionPivots) Reset() {
	s.grouper.Reset()
	s.out = nanPivot()
	s.defined = false
}
