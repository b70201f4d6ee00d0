package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ta-core/internal/batch"
	"ta-core/internal/config"
	"ta-core/internal/model"
)

func sampleSeries(t *testing.T) ([]model.Bar, []batch.Series) {
	t.Helper()
	bars := make([]model.Bar, 4)
	for i := range bars {
		bars[i] = model.PriceBar(float64(i + 1))
		bars[i].TS = int64(i+1) * 1000
	}
	sma, err := batch.ComputeSpec("SMA:2", bars)
	require.NoError(t, err)
	bb, err := batch.ComputeSpec("BBANDS:3:2", bars)
	require.NoError(t, err)
	return bars, []batch.Series{sma, bb}
}

func TestWriteSeries_CSV(t *testing.T) {
	bars, series := sampleSeries(t)
	var buf bytes.Buffer
	require.NoError(t, writeSeries(&buf, "csv", bars, series))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "ts,SMA_2,BBANDS_3_2,BBANDS_3_2.bandwidth,BBANDS_3_2.lower,BBANDS_3_2.middle,BBANDS_3_2.percent_b,BBANDS_3_2.upper", lines[0])
	assert.Equal(t, "1000,,,,,,,", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "2000,1.5,,"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "3000,2.5,2,"), lines[3])
}

func TestWriteSeries_CSVPrecision(t *testing.T) {
	bars, series := sampleSeries(t)
	computePrecision = 2
	defer func() { computePrecision = -1 }()

	var buf bytes.Buffer
	require.NoError(t, writeSeries(&buf, "csv", bars, series[:1]))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "ts,SMA_2", lines[0])
	assert.Equal(t, "1000,", lines[1])
	assert.Equal(t, "2000,1.50", lines[2])
	assert.Equal(t, "4000,3.50", lines[4])
}

func TestWriteSeries_JSONAndYAML(t *testing.T) {
	bars, series := sampleSeries(t)

	var buf bytes.Buffer
	require.NoError(t, writeSeries(&buf, "json", bars, series))
	var got []batch.Series
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "SMA_2", got[0].Name)
	assert.Nil(t, got[0].Points[0].Value)

	buf.Reset()
	require.NoError(t, writeSeries(&buf, "yaml", bars, series))
	var fromYAML []batch.Series
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Len(t, fromYAML, 2)
	require.NotNil(t, fromYAML[0].Points[3].Value)
	assert.InDelta(t, 3.5, *fromYAML[0].Points[3].Value, 1e-12)

	assert.Error(t, writeSeries(&buf, "xml", bars, series))
}

func TestIndicatorSpecs(t *testing.T) {
	cfg := config.Defaults()

	specs, err := indicatorSpecs("SMA:5, RSI:14", cfg)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "RSI", specs[1].Type)

	specs, err = indicatorSpecs("", cfg)
	require.NoError(t, err)
	assert.Len(t, specs, len(cfg.Engine.Indicators))

	cfg.Engine.Indicators = nil
	_, err = indicatorSpecs("", cfg)
	assert.Error(t, err)
}
