package indicator

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"ta-core/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol || math.IsNaN(got) != math.IsNaN(want) {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// nanEqual compares outputs field by field, treating NaN as equal to NaN.
func nanEqual(a, b any) bool { return valuesEqual(reflect.ValueOf(a), reflect.ValueOf(b)) }

func valuesEqual(a, b reflect.Value) bool {
	switch a.Kind() {
	case reflect.Float64:
		x, y := a.Float(), b.Float()
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !valuesEqual(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Slice:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !valuesEqual(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	default:
		return a.Interface() == b.Interface()
	}
}

// isSentinel reports whether every float in v is NaN and every slice empty.
func isSentinel(v any) bool { return sentinelValue(reflect.ValueOf(v)) }

func sentinelValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Float64:
		return math.IsNaN(v.Float())
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !sentinelValue(v.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Slice:
		return v.Len() == 0
	default:
		return false
	}
}

var testEpoch = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).UnixMilli()

// randomBars is a seeded random walk of hourly bars, so session-based
// calculators see several UTC days.
func randomBars(n int, seed int64) []model.Bar {
	rng := rand.New(rand.NewSource(seed))
	bars := make([]model.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		price += rng.NormFloat64()
		if price < 1 {
			price = 1
		}
		hi := math.Max(open, price) + rng.Float64()
		lo := math.Min(open, price) - rng.Float64()
		bars[i] = model.Bar{
			TS:     testEpoch + int64(i)*3_600_000,
			Open:   open,
			High:   hi,
			Low:    lo,
			Close:  price,
			Volume: 100 + rng.Float64()*900,
		}
	}
	return bars
}

func randomCloses(n int, seed int64) []float64 {
	return model.Closes(randomBars(n, seed))
}

func flatBars(n int, price float64) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		bars[i] = model.Bar{TS: testEpoch + int64(i)*60_000, Open: price, High: price, Low: price, Close: price, Volume: 10}
	}
	return bars
}
