package indicator

import (
	"ta-core/internal/model"
	"ta-core/internal/window"
)

// MFI is the Money Flow Index over a rolling window of signed money flow.
//
// Each bar's raw flow (typical price * volume) counts as positive when the
// typical price rose, negative when it fell, and neither when unchanged.
// The first bar only seeds the previous typical price.
type MFI struct {
	period int
	count  int
	prevTP float64
	pos    *window.Ring
	neg    *window.Ring
	cur    scalar
}

// NewMFI creates an MFI with the given period.
func NewMFI(period int) (*MFI, error) {
	if err := checkPeriod("period", period, 1); err != nil {
		return nil, err
	}
	return &MFI{
		period: period,
		pos:    window.NewRing(period),
		neg:    window.NewRing(period),
	}, nil
}

func (m *MFI) Period() int              { return m.period }
func (m *MFI) Warmup() int              { return m.period + 1 }
func (m *MFI) Ready() bool              { return m.count > m.period }
func (m *MFI) Current() (float64, bool) { return m.cur.get() }

func (m *MFI) Next(b model.Bar) (float64, bool) {
	tp := b.TypicalPrice()
	m.count++
	if m.count == 1 {
		m.prevTP = tp
		return nan, false
	}

	flow := tp * b.Volume
	posFlow, negFlow := 0.0, 0.0
	switch {
	case tp > m.prevTP:
		posFlow = flow
	case tp < m.prevTP:
		negFlow = flow
	}
	m.prevTP = tp

	m.pos.Push(posFlow)
	m.neg.Push(negFlow)
	if !m.pos.Full() {
		return nan, false
	}
	return m.cur.set(mfiFromFlows(m.pos.Sum(), m.neg.Sum()))
}

// mfiFromFlows applies the window ratio. No negative flow is 100; no
// positive flow is 0.
func mfiFromFlows(positive, negative float64) float64 {
	if negative <= 0 {
		return 100.0
	}
	if positive <= 0 {
		return 0.0
	}
	return 100.0 - 100.0/(1.0+positive/negative)
}

func (m *MFI) Init(history []model.Bar) []float64 {
	return feed[model.Bar, float64](m, history, nan)
}

// Reset clears the MFI state for reuse.
func (m *MFI) Reset() {
	m.count = 0
	m.prevTP = 0
	m.pos.Reset()
	m.neg.Reset()
	m.cur.clear()
}
