package model

import (
	"encoding/json"
	"fmt"
	"time"

	"ta-core/internal/core"
)

// Bar is one OHLCV observation. TS is the bar start in unix milliseconds;
// price-only series may leave TS and Volume at zero.
type Bar struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Time returns the bar timestamp as a UTC time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.TS).UTC()
}

// TypicalPrice returns (high + low + close) / 3.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// MedianPrice returns (high + low) / 2.
func (b Bar) MedianPrice() float64 {
	return (b.High + b.Low) / 2.0
}

// PriceBar builds a flat bar from a single price.
func PriceBar(price float64) Bar {
	return Bar{Open: price, High: price, Low: price, Close: price}
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// Closes extracts the close series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high series.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low series.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume series.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Timestamps extracts the timestamp series.
func Timestamps(bars []Bar) []int64 {
	out := make([]int64, len(bars))
	for i, b := range bars {
		out[i] = b.TS
	}
	return out
}

// CheckLengths returns ErrLengthMismatch unless every named array has the
// same length as the first one.
func CheckLengths(names []string, lengths ...int) error {
	for i := 1; i < len(lengths); i++ {
		if lengths[i] != lengths[0] {
			return core.WrapError(core.ErrLengthMismatch,
				fmt.Errorf("%s has %d values, %s has %d", names[0], lengths[0], names[i], lengths[i]))
		}
	}
	return nil
}

// BarsFromHLC assembles bars from parallel high/low/close arrays; open is
// set to close.
func BarsFromHLC(high, low, close []float64) ([]Bar, error) {
	if err := CheckLengths([]string{"high", "low", "close"}, len(high), len(low), len(close)); err != nil {
		return nil, err
	}
	bars := make([]Bar, len(close))
	for i := range close {
		bars[i] = Bar{Open: close[i], High: high[i], Low: low[i], Close: close[i]}
	}
	return bars, nil
}

// BarsFromHLCV is BarsFromHLC with a volume array.
func BarsFromHLCV(high, low, close, volume []float64) ([]Bar, error) {
	if err := CheckLengths([]string{"high", "low", "close", "volume"},
		len(high), len(low), len(close), len(volume)); err != nil {
		return nil, err
	}
	bars := make([]Bar, len(close))
	for i := range close {
		bars[i] = Bar{Open: close[i], High: high[i], Low: low[i], Close: close[i], Volume: volume[i]}
	}
	return bars, nil
}

// BarsFromArrays assembles full OHLCV bars. A nil ts or open array is
// allowed and leaves the field zero (open falls back to close).
func BarsFromArrays(ts []int64, open, high, low, close, volume []float64) ([]Bar, error) {
	names := []string{"close", "high", "low", "volume"}
	lengths := []int{len(close), len(high), len(low), len(volume)}
	if ts != nil {
		names = append(names, "ts")
		lengths = append(lengths, len(ts))
	}
	if open != nil {
		names = append(names, "open")
		lengths = append(lengths, len(open))
	}
	if err := CheckLengths(names, lengths...); err != nil {
		return nil, err
	}
	bars := make([]Bar, len(close))
	for i := range close {
		b := Bar{Open: close[i], High: high[i], Low: low[i], Close: close[i], Volume: volume[i]}
		if ts != nil {
			b.TS = ts[i]
		}
		if open != nil {
			b.Open = open[i]
		}
		bars[i] = b
	}
	return bars, nil
}
