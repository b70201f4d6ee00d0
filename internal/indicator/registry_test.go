package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-core/internal/core"
	"ta-core/internal/model"
)

func TestParseSpec(t *testing.T) {
	cfg, err := ParseSpec("macd:12:26:9:sma")
	require.NoError(t, err)
	assert.Equal(t, "MACD", cfg.Type)
	assert.Equal(t, []float64{12, 26, 9}, cfg.Params)
	assert.Equal(t, []string{"sma"}, cfg.Options)
	assert.Equal(t, "MACD_12_26_9_sma", cfg.Key())
	assert.Equal(t, "MACD:12:26:9:sma", cfg.String())

	cfg, err = ParseSpec(" BBANDS:20:2.5 ")
	require.NoError(t, err)
	assert.Equal(t, "BBANDS_20_2.5", cfg.Key())

	for _, bad := range []string{"", ":20", "SMA::3"} {
		_, err := ParseSpec(bad)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter), "%q", bad)
	}
}

func TestParseSpecs(t *testing.T) {
	cfgs, err := ParseSpecs("SMA:20, EMA:9,,PIVOT:woodie:weekly")
	require.NoError(t, err)
	require.Len(t, cfgs, 3)
	assert.Equal(t, "PIVOT_woodie_weekly", cfgs[2].Key())
}

// typeSpecs holds one spec per registered type.
var typeSpecs = map[string]string{
	"SMA": "SMA:5", "EMA": "EMA:5", "WMA": "WMA:5", "HMA": "HMA:9", "SMMA": "SMMA:5",
	"RSI": "RSI:14", "ATR": "ATR:14", "ADX": "ADX:14", "MFI": "MFI:14",
	"BBANDS": "BBANDS:20:2", "STOCH": "STOCH:14:3:3", "STOCHRSI": "STOCHRSI",
	"MACD": "MACD:12:26:9", "LINREG": "LINREG:20", "ICHIMOKU": "ICHIMOKU:displaced",
	"VWAP": "VWAP", "CVD": "CVD", "PIVOT": "PIVOT:fib:daily", "FRVP": "FRVP:50:0.7:200",
}

func TestNew_EveryType(t *testing.T) {
	specs := typeSpecs
	require.ElementsMatch(t, Types(), keysOf(specs))

	bars := randomBars(400, 31)
	for typ, spec := range specs {
		c, err := NewFromSpec(spec)
		require.NoError(t, err, typ)
		ready := false
		for i, b := range bars {
			v, fields, ok := c.Update(b)
			if ok && c.Ready() {
				ready = true
				assert.False(t, math.IsNaN(v) && len(fields) == 0, "%s at %d", typ, i)
			}
		}
		assert.True(t, ready, "%s never became ready", typ)
		c.Reset()
		assert.False(t, c.Ready(), "%s ready after reset", typ)
	}
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestNew_Errors(t *testing.T) {
	_, err := New(IndicatorConfig{Type: "NOPE"})
	assert.True(t, errors.Is(err, core.ErrUnknownIndicator))

	for _, spec := range []string{"SMA:0", "SMA:2.5", "MACD:26:12:9", "VWAP:bogus", "VWAP:anchored", "PIVOT:camarilla", "FRVP:0"} {
		_, err := NewFromSpec(spec)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter), "%s: %v", spec, err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := NewFromSpec("RSI")
	require.NoError(t, err)
	assert.Equal(t, 15, c.Warmup())
	assert.Equal(t, "RSI", c.Name())

	c, err = NewFromSpec("STOCH:14:3:slow")
	require.NoError(t, err)
	assert.Equal(t, 14+3-1+DefaultSlowing-1, c.Warmup())

	c, err = NewFromSpec("VWAP:30")
	require.NoError(t, err)
	assert.Equal(t, 30, c.Warmup())
}

func TestCalculator_Fields(t *testing.T) {
	c, err := NewFromSpec("MACD:3:6:4")
	require.NoError(t, err)
	var fields map[string]float64
	for _, x := range randomCloses(20, 2) {
		_, fields, _ = c.Update(bar(0, x, x, x, x, 1))
	}
	require.Contains(t, fields, "macd")
	require.Contains(t, fields, "signal")
	assertClose(t, "histogram", fields["histogram"], fields["macd"]-fields["signal"], 1e-12)
}

func TestNew_PriceSource(t *testing.T) {
	bars := []model.Bar{
		bar(0, 9, 12, 8, 11, 1),
		bar(1, 9, 14, 10, 13, 1),
	}
	tests := []struct {
		spec string
		want float64
	}{
		{"SMA:2", 12},
		{"SMA:2:close", 12},
		{"SMA:2:hl2", 11},
		{"SMA:2:hlc3", 34.0 / 3.0},
	}
	for _, tt := range tests {
		c, err := NewFromSpec(tt.spec)
		require.NoError(t, err, tt.spec)
		var v float64
		for _, b := range bars {
			v, _, _ = c.Update(b)
		}
		assertClose(t, tt.spec, v, tt.want, 1e-12)
	}

	_, err := NewFromSpec("EMA:5:ohlc4")
	assert.True(t, errors.Is(err, core.ErrInvalidParameter))
}
