package window

import "github.com/gammazero/deque"

type entry struct {
	idx int
	v   float64
}

// MonoDeque tracks the rolling maximum (or minimum) of the last period
// values in O(1) amortised time. Entries are kept monotonic: values that
// can never become the extreme again are popped from the back, and entries
// older than the window are popped from the front.
type MonoDeque struct {
	q      *deque.Deque[entry]
	period int
	max    bool
	clock  int // index assigned to the next pushed value
}

// NewMaxDeque creates a deque reporting the rolling maximum.
func NewMaxDeque(period int) *MonoDeque {
	return newMonoDeque(period, true)
}

// NewMinDeque creates a deque reporting the rolling minimum.
func NewMinDeque(period int) *MonoDeque {
	return newMonoDeque(period, false)
}

func newMonoDeque(period int, max bool) *MonoDeque {
	if period < 1 {
		period = 1
	}
	return &MonoDeque{
		q:      deque.New[entry](period + 1),
		period: period,
		max:    max,
	}
}

// Push adds v as the newest value of the window.
func (m *MonoDeque) Push(v float64) {
	idx := m.clock
	m.clock++

	for m.q.Len() > 0 {
		back := m.q.Back().v
		if (m.max && back <= v) || (!m.max && back >= v) {
			m.q.PopBack()
			continue
		}
		break
	}
	m.q.PushBack(entry{idx: idx, v: v})

	for m.q.Front().idx <= idx-m.period {
		m.q.PopFront()
	}
}

// Value returns the current extreme. Only meaningful after at least one Push.
func (m *MonoDeque) Value() float64 {
	if m.q.Len() == 0 {
		return 0
	}
	return m.q.Front().v
}

// Full reports whether period values have been pushed since the last Reset.
func (m *MonoDeque) Full() bool { return m.clock >= m.period }

// Len returns the number of entries currently held (at most period).
func (m *MonoDeque) Len() int { return m.q.Len() }

// Reset clears the deque.
func (m *MonoDeque) Reset() {
	m.q.Clear()
	m.clock = 0
}

// MinMax pairs a max deque and a min deque fed in lockstep, typically with
// bar highs and lows.
type MinMax struct {
	hi *MonoDeque
	lo *MonoDeque
}

// NewMinMax creates a rolling highest-high / lowest-low tracker.
func NewMinMax(period int) *MinMax {
	return &MinMax{hi: NewMaxDeque(period), lo: NewMinDeque(period)}
}

// Push feeds one high/low pair.
func (mm *MinMax) Push(high, low float64) {
	mm.hi.Push(high)
	mm.lo.Push(low)
}

// Max returns the highest high in the window.
func (mm *MinMax) Max() float64 { return mm.hi.Value() }

// Min returns the lowest low in the window.
func (mm *MinMax) Min() float64 { return mm.lo.Value() }

// Mid returns (Max + Min) / 2.
func (mm *MinMax) Mid() float64 { return (mm.hi.Value() + mm.lo.Value()) / 2.0 }

// Full reports whether period pairs have been pushed.
func (mm *MinMax) Full() bool { return mm.hi.Full() }

// Reset clears both deques.
func (mm *MinMax) Reset() {
	mm.hi.Reset()
	mm.lo.Reset()
}
