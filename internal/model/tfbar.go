package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// TFBar is a bar for one instrument at a given timeframe.
// TF is the timeframe duration in seconds (e.g., 60 = 1 minute).
type TFBar struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	TF       int    `json:"tf"`
	Bar
	Forming bool `json:"forming"` // true if bucket is still open
}

// Key returns "exchange:symbol".
func (c *TFBar) Key() string {
	return c.Exchange + ":" + c.Symbol
}

// StreamKey returns the Redis stream key: "bar:{TF}s:{exchange}:{symbol}".
func (c *TFBar) StreamKey() string {
	return BarStreamKey(c.TF, c.Exchange, c.Symbol)
}

// BarStreamKey builds the stream key for a timeframe and instrument.
func BarStreamKey(tf int, exchange, symbol string) string {
	return "bar:" + strconv.Itoa(tf) + "s:" + exchange + ":" + symbol
}

// JSON returns the JSON-encoded TF bar.
func (c *TFBar) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// IndicatorResult holds a computed indicator value for a specific instrument + TF.
// Fields carries every defined output of a record indicator (e.g. "macd",
// "signal", "histogram"); undefined fields are left out so the result
// always encodes as JSON.
type IndicatorResult struct {
	Name     string             `json:"name"` // e.g. "SMA_20", "MACD_12_26_9"
	Symbol   string             `json:"symbol"`
	Exchange string             `json:"exchange"`
	TF       int                `json:"tf"` // timeframe in seconds
	Value    float64            `json:"value"`
	Fields   map[string]float64 `json:"fields,omitempty"`
	TS       time.Time          `json:"ts"`    // bar timestamp that produced this value
	Ready    bool               `json:"ready"` // true when the primary value is defined
}

// StreamKey returns the Redis stream key: "ind:{name}:{TF}s:{exchange}:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + strconv.Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Symbol
}

// Channel returns the PubSub channel the result is published on.
func (r *IndicatorResult) Channel() string {
	return "pub:" + r.StreamKey()
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// SetFields copies the finite entries of fields into the result.
func (r *IndicatorResult) SetFields(fields map[string]float64) {
	for k, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if r.Fields == nil {
			r.Fields = make(map[string]float64, len(fields))
		}
		r.Fields[k] = v
	}
}
