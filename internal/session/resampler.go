package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ta-core/internal/model"
)

// bucketState holds the forming bar for one (instrument, TF) pair.
type bucketState struct {
	bucket int64 // bucket start, unix ms
	bar    model.TFBar
}

// Resampler turns base-timeframe bars into larger fixed timeframes for many
// instruments. It is driven by a single goroutine.
type Resampler struct {
	tfs []int // target TF durations in seconds

	// states[tfIdx][instrumentKey]
	states []map[string]*bucketState

	// Bars older than the forming bucket by more than StaleTolerance are
	// dropped. Zero disables the check.
	StaleTolerance time.Duration

	// EmitForming sends a forming snapshot after every merge.
	EmitForming bool

	OnBar   func(b model.TFBar) // called on every finalized bar (optional)
	OnStale func()              // called when a stale bar is rejected (optional)

	log *zap.Logger
}

// NewResampler creates a resampler for the given timeframes (seconds).
func NewResampler(tfs []int, log *zap.Logger) *Resampler {
	if log == nil {
		log = zap.NewNop()
	}
	states := make([]map[string]*bucketState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*bucketState, 64)
	}
	return &Resampler{tfs: tfs, states: states, log: log}
}

// TFs returns the target timeframes.
func (r *Resampler) TFs() []int { return r.tfs }

// Run resamples bars from in and sends finalized bars to out until ctx is
// cancelled or in is closed; forming buckets are flushed on exit.
func (r *Resampler) Run(ctx context.Context, in <-chan model.TFBar, out chan<- model.TFBar) {
	for {
		select {
		case <-ctx.Done():
			r.flushAll(out)
			return
		case b, ok := <-in:
			if !ok {
				r.flushAll(out)
				return
			}
			r.Process(b, func(tb model.TFBar) { r.emit(out, tb) })
		}
	}
}

// Process merges one bar into every target timeframe, calling sink for each
// bar produced.
func (r *Resampler) Process(b model.TFBar, sink func(model.TFBar)) {
	key := b.Key()

	for i, tf := range r.tfs {
		p := Period{Kind: Fixed, Seconds: int64(tf)}
		bucket := p.Start(b.TS)

		st, exists := r.states[i][key]

		if r.StaleTolerance > 0 && exists && bucket < st.bucket {
			lag := time.Duration(st.bucket-bucket) * time.Millisecond
			if lag > r.StaleTolerance {
				if r.OnStale != nil {
					r.OnStale()
				}
				continue
			}
		}

		if exists && bucket > st.bucket {
			st.bar.Forming = false
			sink(st.bar)
			if r.OnBar != nil {
				r.OnBar(st.bar)
			}
			exists = false
		}

		if !exists {
			nb := model.TFBar{Symbol: b.Symbol, Exchange: b.Exchange, TF: tf, Bar: b.Bar, Forming: true}
			nb.TS = bucket
			r.states[i][key] = &bucketState{bucket: bucket, bar: nb}
			if r.EmitForming {
				sink(nb)
			}
			continue
		}

		merge(&st.bar.Bar, b.Bar)
		if r.EmitForming {
			sink(st.bar)
		}
	}
}

// Flush finalizes every forming bucket through sink.
func (r *Resampler) Flush(sink func(model.TFBar)) {
	for i := range r.tfs {
		for key, st := range r.states[i] {
			st.bar.Forming = false
			sink(st.bar)
			delete(r.states[i], key)
		}
	}
}

func (r *Resampler) flushAll(out chan<- model.TFBar) {
	r.Flush(func(b model.TFBar) { r.emit(out, b) })
}

// emit sends without blocking; a full channel drops the bar.
func (r *Resampler) emit(out chan<- model.TFBar, b model.TFBar) {
	select {
	case out <- b:
	default:
		r.log.Warn("resampler output full, dropping bar",
			zap.String("key", b.Key()), zap.Int("tf", b.TF), zap.Int64("ts", b.TS))
	}
}
