package indicator

import (
	"math"

	"ta-core/internal/core"
)

func checkPeriod(name string, period, min int) error {
	if period < min {
		return core.Invalidf("%s must be >= %d, got %d", name, min, period)
	}
	return nil
}

func checkFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return core.Invalidf("%s must be finite, got %v", name, v)
	}
	return nil
}

func invalidNegative(name string, v float64) error {
	return core.Invalidf("%s must be >= 0, got %v", name, v)
}
