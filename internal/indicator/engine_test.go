package indicator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ta-core/internal/core"
	"ta-core/internal/model"
)

func mustSpecs(t *testing.T, list string) []IndicatorConfig {
	t.Helper()
	cfgs, err := ParseSpecs(list)
	require.NoError(t, err)
	return cfgs
}

func tfBar(tf int, symbol string, b model.Bar) model.TFBar {
	return model.TFBar{Symbol: symbol, Exchange: "NSE", TF: tf, Bar: b}
}

func TestEngine_ProcessAndWarmup(t *testing.T) {
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:3,MACD:3:6:4")}}, nil)
	assert.Equal(t, []int{60}, e.TFs())
	assert.Equal(t, 9, e.MaxWarmup(60))

	closes := randomCloses(12, 3)
	sma, _ := NewSMA(3)
	want := sma.Init(closes)

	for i, c := range closes {
		rs := e.Process(tfBar(60, "INFY", model.PriceBar(c)))
		require.Len(t, rs, 2)
		assert.Equal(t, "SMA_3", rs[0].Name)
		assert.Equal(t, "MACD_3_6_4", rs[1].Name)
		assert.Equal(t, i >= 2, rs[0].Ready, "SMA ready at %d", i)
		if rs[0].Ready {
			assertClose(t, "SMA", rs[0].Value, want[i], 1e-12)
		} else {
			assert.Equal(t, 0.0, rs[0].Value)
		}
		if i >= 5 && i < 8 {
			assert.True(t, rs[1].Ready)
			assert.Contains(t, rs[1].Fields, "macd")
			assert.NotContains(t, rs[1].Fields, "signal")
		}
	}
	assert.Equal(t, 1, e.Symbols(60))
}

func TestEngine_InstrumentsIsolated(t *testing.T) {
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:2")}}, nil)
	e.Process(tfBar(60, "A", model.PriceBar(10)))
	e.Process(tfBar(60, "B", model.PriceBar(100)))
	ra := e.Process(tfBar(60, "A", model.PriceBar(20)))
	rb := e.Process(tfBar(60, "B", model.PriceBar(200)))

	assert.Equal(t, 15.0, ra[0].Value)
	assert.Equal(t, 150.0, rb[0].Value)
	assert.Equal(t, "A", ra[0].Symbol)
	assert.Equal(t, 2, e.Symbols(60))
}

func TestEngine_UnknownTFAndBadIndicator(t *testing.T) {
	cfgs := []TFIndicatorConfig{{TF: 60, Indicators: []IndicatorConfig{{Type: "SMA", Params: []float64{2}}, {Type: "BOGUS"}}}}
	e := NewEngine(cfgs, nil)
	assert.Nil(t, e.Process(tfBar(300, "A", model.PriceBar(1))))
	rs := e.Process(tfBar(60, "A", model.PriceBar(1)))
	require.Len(t, rs, 1)
	assert.Equal(t, "SMA_2", rs[0].Name)
}

func TestEngine_ResultTimestamp(t *testing.T) {
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "CVD")}}, nil)
	b := bar(testEpoch, 1, 2, 0, 2, 10)
	rs := e.Process(tfBar(60, "A", b))
	assert.True(t, rs[0].TS.Equal(time.UnixMilli(testEpoch)))
	assert.Equal(t, 10.0, rs[0].Value)
}

func TestEngine_Run(t *testing.T) {
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:2")}}, nil)
	in := make(chan model.TFBar, 4)
	out := make(chan model.IndicatorResult, 4)

	in <- tfBar(60, "A", model.PriceBar(1))
	forming := tfBar(60, "A", model.PriceBar(1000))
	forming.Forming = true
	in <- forming
	in <- tfBar(60, "A", model.PriceBar(3))
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e.Run(ctx, in, out)
	close(out)

	var got []model.IndicatorResult
	for r := range out {
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.False(t, got[0].Ready)
	assert.Equal(t, 2.0, got[1].Value)
}

func TestEngine_ReloadPreservesState(t *testing.T) {
	e := NewEngine([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:3")}}, nil)
	for _, p := range []float64{1, 2, 3} {
		e.Process(tfBar(60, "A", model.PriceBar(p)))
	}

	preserved, created := e.ReloadConfigs([]TFIndicatorConfig{
		{TF: 60, Indicators: mustSpecs(t, "SMA:3,EMA:2")},
		{TF: 300, Indicators: mustSpecs(t, "RSI:14")},
	})
	assert.Equal(t, 1, preserved)
	assert.Equal(t, 2, created)

	rs := e.Process(tfBar(60, "A", model.PriceBar(4)))
	require.Len(t, rs, 2)
	assert.True(t, rs[0].Ready, "SMA kept its window")
	assert.Equal(t, 3.0, rs[0].Value)
	assert.False(t, rs[1].Ready, "EMA starts cold")
	assert.Equal(t, []int{60, 300}, e.TFs())
}

func TestEngine_ReloadUnchanged(t *testing.T) {
	cfgs := []TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:2,EMA:2")}}
	e := NewEngine(cfgs, nil)
	e.Process(tfBar(60, "A", model.PriceBar(1)))
	e.Process(tfBar(60, "B", model.PriceBar(1)))

	preserved, created := e.ReloadConfigs([]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "EMA:2,SMA:2")}})
	assert.Equal(t, 2, preserved)
	assert.Equal(t, 0, created)
	assert.Equal(t, 2, e.Symbols(60))
}

func TestValidateConfigs(t *testing.T) {
	ok := []TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:20,EMA:20")}}
	require.NoError(t, ValidateConfigs(ok))

	cases := map[string]struct {
		cfgs []TFIndicatorConfig
		code error
	}{
		"zero tf":       {[]TFIndicatorConfig{{TF: 0}}, core.ErrConfigInvalid},
		"duplicate tf":  {[]TFIndicatorConfig{{TF: 60}, {TF: 60}}, core.ErrConfigInvalid},
		"duplicate key": {[]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:2,sma:2")}}, core.ErrConfigInvalid},
		"unknown type":  {[]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "XYZ")}}, core.ErrUnknownIndicator},
		"bad param":     {[]TFIndicatorConfig{{TF: 60, Indicators: mustSpecs(t, "SMA:0")}}, core.ErrInvalidParameter},
	}
	for name, tc := range cases {
		err := ValidateConfigs(tc.cfgs)
		assert.True(t, errors.Is(err, tc.code), "%s: %v", name, err)
	}
}
