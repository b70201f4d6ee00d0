package session

import "ta-core/internal/model"

// Grouper merges one instrument's bars into period buckets. Bars must be
// fed in time order; a bar from an earlier bucket is merged into the
// forming one.
type Grouper struct {
	period  Period
	bucket  int64
	bar     model.Bar
	started bool
}

// NewGrouper creates a grouper for p.
func NewGrouper(p Period) (*Grouper, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Grouper{period: p}, nil
}

func (g *Grouper) Period() Period { return g.period }

// Add merges b. When b opens a new bucket, the finished previous bucket is
// returned with closed=true.
func (g *Grouper) Add(b model.Bar) (done model.Bar, closed bool) {
	bucket := g.period.Start(b.TS)
	if g.started && bucket > g.bucket {
		done, closed = g.bar, true
		g.started = false
	}
	if !g.started {
		g.bucket = bucket
		g.bar = b
		g.bar.TS = bucket
		g.started = true
		return done, closed
	}
	merge(&g.bar, b)
	return done, closed
}

// Forming returns the bucket in progress.
func (g *Grouper) Forming() (model.Bar, bool) { return g.bar, g.started }

// Flush returns the forming bucket and clears it.
func (g *Grouper) Flush() (model.Bar, bool) {
	b, ok := g.bar, g.started
	g.Reset()
	return b, ok
}

func (g *Grouper) Reset() {
	g.bucket = 0
	g.bar = model.Bar{}
	g.started = false
}

// merge folds b into agg using OHLCV rules.
func merge(agg *model.Bar, b model.Bar) {
	if b.High > agg.High {
		agg.High = b.High
	}
	if b.Low < agg.Low {
		agg.Low = b.Low
	}
	agg.Close = b.Close
	agg.Volume += b.Volume
}

// Group buckets bars by p, including the final partial bucket.
func Group(bars []model.Bar, p Period) ([]model.Bar, error) {
	g, err := NewGrouper(p)
	if err != nil {
		return nil, err
	}
	var out []model.Bar
	for _, b := range bars {
		if done, ok := g.Add(b); ok {
			out = append(out, done)
		}
	}
	if last, ok := g.Flush(); ok {
		out = append(out, last)
	}
	return out, nil
}
