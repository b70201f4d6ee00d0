package indicator

import (
	"ta-core/internal/model"
	"ta-core/internal/window"
)

// msPerDay is the length of a UTC session in bar timestamp units.
const msPerDay = 86_400_000

func utcDay(tsMillis int64) int64 {
	d := tsMillis / msPerDay
	if tsMillis < 0 && tsMillis%msPerDay != 0 {
		d--
	}
	return d
}

// vwapSums is a cumulative Σ(tp·vol) and Σvol pair.
type vwapSums struct {
	pv  float64
	vol float64
}

func (s *vwapSums) add(b model.Bar) {
	s.pv += b.TypicalPrice() * b.Volume
	s.vol += b.Volume
}

func (s *vwapSums) value() (float64, bool) {
	if s.vol > 0 {
		return s.pv / s.vol, true
	}
	return nan, false
}

// SessionVWAP accumulates typical price times volume and restarts whenever
// the UTC calendar day of the bar timestamp changes.
type SessionVWAP struct {
	sums    vwapSums
	day     int64
	started bool
	cur     scalar
}

func NewSessionVWAP() *SessionVWAP { return &SessionVWAP{} }

// Warmup is one bar; the output stays undefined while the session has no
// volume.
func (v *SessionVWAP) Warmup() int              { return 1 }
func (v *SessionVWAP) Ready() bool              { return v.started }
func (v *SessionVWAP) Current() (float64, bool) { return v.cur.get() }

// Session returns the UTC day number of the current session.
func (v *SessionVWAP) Session() int64 { return v.day }

func (v *SessionVWAP) Next(b model.Bar) (float64, bool) {
	day := utcDay(b.TS)
	if !v.started || day != v.day {
		v.sums = vwapSums{}
		v.day = day
		v.started = true
		v.cur.clear()
	}
	v.sums.add(b)
	if x, ok := v.sums.value(); ok {
		return v.cur.set(x)
	}
	return nan, false
}

func (v *SessionVWAP) Init(history []model.Bar) []float64 {
	return feed[model.Bar, float64](v, history, nan)
}

func (v *SessionVWAP) Reset() {
	v.sums = vwapSums{}
	v.day = 0
	v.started = false
	v.cur.clear()
}

// RollingVWAP is VWAP over the last period bars.
type RollingVWAP struct {
	period int
	pv     *window.Ring
	vol    *window.Ring
	cur    scalar
}

func NewRollingVWAP(period int) (*RollingVWAP, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	return &RollingVWAP{
		period: period,
		pv:     window.NewRing(period),
		vol:    window.NewRing(period),
	}, nil
}

func (v *RollingVWAP) Period() int              { return v.period }
func (v *RollingVWAP) Warmup() int              { return v.period }
func (v *RollingVWAP) Ready() bool              { return v.vol.Full() }
func (v *RollingVWAP) Current() (float64, bool) { return v.cur.get() }

func (v *RollingVWAP) Next(b model.Bar) (float64, bool) {
	v.pv.Push(b.TypicalPrice() * b.Volume)
	v.vol.Push(b.Volume)
	if !v.vol.Full() {
		return nan, false
	}
	if v.vol.Sum() > 0 {
		return v.cur.set(v.pv.Sum() / v.vol.Sum())
	}
	v.cur.clear()
	return nan, false
}

func (v *RollingVWAP) Init(history []model.Bar) []float64 {
	return feed[model.Bar, float64](v, history, nan)
}

func (v *RollingVWAP) Reset() {
	v.pv.Reset()
	v.vol.Reset()
	v.cur.clear()
}

// AnchorMode says when an AnchoredVWAP starts accumulating.
type AnchorMode int

const (
	// AnchorUnset never accumulates; every output is undefined.
	AnchorUnset AnchorMode = iota
	// AnchorAtTime starts at the first bar with TS >= the anchor.
	AnchorAtTime
	// AnchorNextBar starts at the next bar received.
	AnchorNextBar
)

func (m AnchorMode) String() string {
	switch m {
	case AnchorAtTime:
		return "timestamp"
	case AnchorNextBar:
		return "next"
	default:
		return "unset"
	}
}

// AnchoredVWAP is VWAP accumulated from an anchor point onwards. Reset
// keeps the anchor and clears the sums, so Init replays from the anchor.
type AnchoredVWAP struct {
	mode     AnchorMode
	anchorTS int64
	anchored bool
	sums     vwapSums
	cur      scalar
}

// NewAnchoredVWAP creates an unanchored VWAP. Call SetAnchor or AnchorNow
// before it produces output.
func NewAnchoredVWAP() *AnchoredVWAP { return &AnchoredVWAP{} }

// NewAnchoredVWAPAt creates a VWAP anchored at tsMillis.
func NewAnchoredVWAPAt(tsMillis int64) *AnchoredVWAP {
	return &AnchoredVWAP{mode: AnchorAtTime, anchorTS: tsMillis}
}

// SetAnchor restarts accumulation at the first bar with TS >= tsMillis.
func (v *AnchoredVWAP) SetAnchor(tsMillis int64) {
	v.mode = AnchorAtTime
	v.anchorTS = tsMillis
	v.restart()
}

// AnchorNow restarts accumulation at the next bar.
func (v *AnchoredVWAP) AnchorNow() {
	v.mode = AnchorNextBar
	v.restart()
}

// Anchor returns the anchor mode and, once anchored or for AnchorAtTime,
// the anchor timestamp.
func (v *AnchoredVWAP) Anchor() (AnchorMode, int64) { return v.mode, v.anchorTS }

func (v *AnchoredVWAP) Warmup() int              { return 1 }
func (v *AnchoredVWAP) Ready() bool              { return v.anchored }
func (v *AnchoredVWAP) Current() (float64, bool) { return v.cur.get() }

func (v *AnchoredVWAP) Next(b model.Bar) (float64, bool) {
	if !v.anchored {
		switch v.mode {
		case AnchorAtTime:
			if b.TS < v.anchorTS {
				return nan, false
			}
		case AnchorNextBar:
			v.anchorTS = b.TS
		default:
			return nan, false
		}
		v.anchored = true
	}
	v.sums.add(b)
	if x, ok := v.sums.value(); ok {
		return v.cur.set(x)
	}
	return nan, false
}

func (v *AnchoredVWAP) Init(history []model.Bar) []float64 {
	return feed[model.Bar, float64](v, history, nan)
}

func (v *AnchoredVWAP) Reset() { v.restart() }

func (v *AnchoredVWAP) restart() {
	v.anchored = false
	v.sums = vwapSums{}
	v.cur.clear()
}
