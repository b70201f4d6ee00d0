package indicator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-core/internal/model"
)

type memReader struct {
	bars map[int][]model.TFBar
	err  error
}

func (m *memReader) ReadBars(_ context.Context, exchange, symbol string, tf int, afterTS int64) ([]model.TFBar, error) {
	var out []model.TFBar
	for _, b := range m.bars[tf] {
		if b.Exchange == exchange && b.Symbol == symbol && b.TS > afterTS {
			out = append(out, b)
		}
	}
	return out, m.err
}

func (m *memReader) ReadAllBars(_ context.Context, tf int, afterTS int64) ([]model.TFBar, error) {
	var out []model.TFBar
	for _, b := range m.bars[tf] {
		if b.TS > afterTS {
			out = append(out, b)
		}
	}
	return out, m.err
}

func (m *memReader) Close() error { return nil }

func TestBackfill_WarmsEngine(t *testing.T) {
	var stored []model.TFBar
	for i, b := range randomBars(50, 41) {
		sym := "A"
		if i%2 == 1 {
			sym = "B"
		}
		stored = append(stored, tfBar(60, sym, b))
	}
	reader := &memReader{bars: map[int][]model.TFBar{60: stored}}
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:5")}}, nil)

	var batches int
	n, err := Backfill(context.Background(), e, reader, 0, 2, func([]model.IndicatorResult) { batches++ }, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, n) // 5*2 per instrument
	assert.Equal(t, n, batches)
	assert.Equal(t, 2, e.Symbols(60))

	rs := e.Process(tfBar(60, "A", model.PriceBar(1)))
	assert.True(t, rs[0].Ready)
}

func TestTailPerInstrument(t *testing.T) {
	bars := []model.TFBar{
		tfBar(60, "A", model.PriceBar(1)),
		tfBar(60, "B", model.PriceBar(2)),
		tfBar(60, "A", model.PriceBar(3)),
		tfBar(60, "A", model.PriceBar(4)),
		tfBar(60, "B", model.PriceBar(5)),
	}
	got := tailPerInstrument(bars, 2)
	var closes []float64
	for _, b := range got {
		closes = append(closes, b.Close)
	}
	assert.Equal(t, []float64{2, 3, 4, 5}, closes)
}

func TestBackfill_ReaderError(t *testing.T) {
	boom := errors.New("disk gone")
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:5")}}, nil)
	_, err := Backfill(context.Background(), e, &memReader{err: boom}, 0, 1, nil, nil)
	assert.ErrorIs(t, err, boom)

	n, err := Backfill(context.Background(), e, nil, 0, 1, nil, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
