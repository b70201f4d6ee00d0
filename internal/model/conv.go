package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ta-core/internal/core"
)

// ParsePrice parses a decimal price string into the nearest float64.
func ParsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, core.WrapError(core.ErrParse, fmt.Errorf("empty price"))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, core.WrapError(core.ErrParse, fmt.Errorf("price %q: %w", s, err))
	}
	f, _ := d.Float64()
	return f, nil
}

// FormatPrice renders v with a fixed number of decimals, rounding half
// away from zero. Non-finite values render as strconv does.
func FormatPrice(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}
