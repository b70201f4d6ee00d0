package batch

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-core/internal/core"
	"ta-core/internal/indicator"
	"ta-core/internal/model"
)

func closes(vs ...float64) []model.Bar {
	bars := make([]model.Bar, len(vs))
	for i, v := range vs {
		bars[i] = model.PriceBar(v)
		bars[i].TS = int64(i+1) * 60_000
	}
	return bars
}

func TestComputeSpec_SMA(t *testing.T) {
	s, err := ComputeSpec("SMA:3", closes(1, 2, 3, 4, 5))
	require.NoError(t, err)
	assert.Equal(t, "SMA_3", s.Name)
	require.Len(t, s.Points, 5)
	assert.Nil(t, s.Points[0].Value)
	assert.Nil(t, s.Points[1].Value)
	for i, want := range []float64{2, 3, 4} {
		require.NotNil(t, s.Points[i+2].Value)
		assert.InDelta(t, want, *s.Points[i+2].Value, 1e-12)
	}
	assert.Equal(t, int64(300_000), s.Points[4].TS)
	assert.Equal(t, 3, s.Defined())

	raw, err := json.Marshal(s)
	require.NoError(t, err, "undefined slots must encode")
	assert.Contains(t, string(raw), `"value":null`)
}

func TestComputeSpec_Fields(t *testing.T) {
	s, err := ComputeSpec("BBANDS:3:2", closes(1, 2, 3, 4))
	require.NoError(t, err)
	assert.Nil(t, s.Points[1].Fields)
	f := s.Points[3].Fields
	require.NotNil(t, f)
	assert.InDelta(t, 3.0, f["middle"], 1e-12)
	assert.Greater(t, f["upper"], f["middle"])
}

func TestComputeSpec_Errors(t *testing.T) {
	_, err := ComputeSpec("NOPE:3", closes(1, 2))
	assert.True(t, errors.Is(err, core.ErrUnknownIndicator))

	_, err = ComputeSpec("SMA:0", closes(1, 2))
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
}

func TestVerify_AllTypes(t *testing.T) {
	s := randomSeries(300, 7)
	bars := make([]model.Bar, len(s.close))
	for i := range bars {
		bars[i] = barAt(s, i)
	}

	specs := []string{
		"SMA:20", "EMA:21", "WMA:10", "HMA:16", "SMMA:14", "RSI:14", "ATR:14", "ADX:14", "MFI:14",
		"BBANDS:20:2", "STOCH:14:3", "STOCH:14:3:3", "STOCHRSI:14:14:3:3", "MACD:12:26:9",
		"LINREG:20:2", "ICHIMOKU", "VWAP", "VWAP:rolling:20", "CVD", "PIVOT:woodie", "FRVP:24:0.7:50",
	}
	for _, spec := range specs {
		cfg, err := indicator.ParseSpec(spec)
		require.NoError(t, err, spec)
		assert.NoError(t, Verify(cfg, bars, 1e-9), spec)
	}
}

func TestMismatch_Error(t *testing.T) {
	m := &Mismatch{Index: 4, Field: "signal", Batch: 1, Stream: 2}
	assert.Equal(t, "index 4 signal: batch 1, stream 2", m.Error())
	m.Field = ""
	assert.Contains(t, m.Error(), "value")
}
