package indicator

import "ta-core/internal/core"

// MACDOutput holds the MACD line, its signal line and the histogram.
// Signal and Histogram are NaN until the signal stage warms.
type MACDOutput struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

func nanMACD() MACDOutput { return MACDOutput{MACD: nan, Signal: nan, Histogram: nan} }

// SignalKind selects the smoother applied to the MACD line.
type SignalKind int

const (
	SignalEMA SignalKind = iota
	SignalSMA
)

func (k SignalKind) String() string {
	if k == SignalSMA {
		return "sma"
	}
	return "ema"
}

// smoother is the part of a scalar calculator a composite needs.
type smoother interface {
	Next(float64) (float64, bool)
	Ready() bool
	Reset()
}

// MACD composes fast and slow EMAs of price; the signal smoother only sees
// the MACD line once both EMAs are seeded.
type MACD struct {
	fast, slow, signalPeriod int
	kind                     SignalKind

	fastEMA *EMA
	slowEMA *EMA
	signal  smoother

	out     MACDOutput
	defined bool
}

// NewMACD creates a MACD with an EMA signal line (typically 12, 26, 9).
func NewMACD(fast, slow, signal int) (*MACD, error) {
	return NewMACDWithSignal(fast, slow, signal, SignalEMA)
}

// NewMACDWithSignal creates a MACD with the given signal smoother.
func NewMACDWithSignal(fast, slow, signal int, kind SignalKind) (*MACD, error) {
	if err := checkPeriod("fast period", fast, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("slow period", slow, 1); err != nil {
		return nil, err
	}
	if err := checkPeriod("signal period", signal, 1); err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, core.Invalidf("fast period (%d) must be < slow period (%d)", fast, slow)
	}
	m := &MACD{fast: fast, slow: slow, signalPeriod: signal, kind: kind, out: nanMACD()}
	m.fastEMA, _ = NewEMA(fast)
	m.slowEMA, _ = NewEMA(slow)
	if kind == SignalSMA {
		m.signal, _ = NewSMA(signal)
	} else {
		m.signal, _ = NewEMA(signal)
	}
	return m, nil
}

func (m *MACD) Periods() (fast, slow, signal int) { return m.fast, m.slow, m.signalPeriod }
func (m *MACD) SignalKind() SignalKind            { return m.kind }

// Warmup returns the samples needed for a defined signal line.
func (m *MACD) Warmup() int { return m.slow + m.signalPeriod - 1 }
func (m *MACD) Ready() bool { return m.signal.Ready() }

func (m *MACD) Current() (MACDOutput, bool) {
	if !m.defined {
		return nanMACD(), false
	}
	return m.out, true
}

func (m *MACD) Next(price float64) (MACDOutput, bool) {
	f, _ := m.fastEMA.Next(price)
	s, ok := m.slowEMA.Next(price)
	if !ok {
		return nanMACD(), false
	}
	line := f - s
	out := MACDOutput{MACD: line, Signal: nan, Histogram: nan}
	if sig, ok := m.signal.Next(line); ok {
		out.Signal = sig
		out.Histogram = line - sig
	}
	m.out = out
	m.defined = true
	return out, true
}

func (m *MACD) Init(history []float64) []MACDOutput {
	return feed[float64, MACDOutput](m, history, nanMACD())
}

func (m *MACD) Reset() {
	m.fastEMA.Reset()
	m.slowEMA.Reset()
	m.signal.Reset()
	m.out = nanMACD()
	m.defined = false
}
