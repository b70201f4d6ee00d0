package indicator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ta-core/internal/model"
)

// Backfill warms engine from stored bars. For every configured TF it reads
// bars after afterTS, keeps the last MaxWarmup(tf)*depth bars per
// instrument, and feeds them through Process. sink, if non-nil, receives
// the results of each bar. It returns the number of bars fed.
//
// depth < 1 is treated as 1.
func Backfill(ctx context.Context, engine *Engine, reader model.BarReader, afterTS int64, depth int, sink func([]model.IndicatorResult), log *zap.Logger) (int, error) {
	if reader == nil {
		return 0, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	depth = max(depth, 1)

	total := 0
	for _, tf := range engine.TFs() {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		keep := engine.MaxWarmup(tf) * depth
		if keep == 0 {
			continue
		}

		bars, err := reader.ReadAllBars(ctx, tf, afterTS)
		if err != nil {
			return total, fmt.Errorf("backfill tf=%d: %w", tf, err)
		}

		fed := 0
		for _, b := range tailPerInstrument(bars, keep) {
			b.Forming = false
			results := engine.Process(b)
			if sink != nil && len(results) > 0 {
				sink(results)
			}
			fed++
		}
		total += fed
		if fed > 0 {
			log.Info("backfilled bars", zap.Int("tf", tf), zap.Int("bars", fed))
		}
	}
	return total, nil
}

// tailPerInstrument keeps the last n bars of each instrument, preserving the
// input order.
func tailPerInstrument(bars []model.TFBar, n int) []model.TFBar {
	counts := make(map[string]int)
	for i := range bars {
		counts[bars[i].Key()]++
	}
	out := make([]model.TFBar, 0, len(bars))
	seen := make(map[string]int, len(counts))
	for _, b := range bars {
		k := b.Key()
		seen[k]++
		if counts[k]-seen[k] < n {
			out = append(out, b)
		}
	}
	return out
}
