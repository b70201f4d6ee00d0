package gateway

import (
	"math"
	"testing"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	if s := lt.Stats(); s != (LatencyStats{}) {
		t.Errorf("empty tracker: expected zero stats, got %+v", s)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Record(42.5)

	s := lt.Stats()
	if s.Count != 1 || s.P50 != 42.5 || s.P95 != 42.5 || s.P99 != 42.5 || s.Max != 42.5 {
		t.Errorf("single sample: got %+v", s)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(10000)
	for i := 1; i <= 100; i++ {
		lt.Record(float64(i))
	}

	s := lt.Stats()
	if math.Abs(s.P50-50.5) > 1e-9 {
		t.Errorf("p50: got %f, want 50.5", s.P50)
	}
	if math.Abs(s.P95-95.05) > 1e-9 {
		t.Errorf("p95: got %f, want 95.05", s.P95)
	}
	if math.Abs(s.P99-99.01) > 1e-9 {
		t.Errorf("p99: got %f, want 99.01", s.P99)
	}
	if s.Max != 100 {
		t.Errorf("max: got %f, want 100", s.Max)
	}
}

func TestLatencyTracker_Overwrite(t *testing.T) {
	lt := NewLatencyTracker(10)

	// 10 large samples, then 10 small ones that evict them.
	for i := 0; i < 10; i++ {
		lt.Record(1000)
	}
	for i := 1; i <= 10; i++ {
		lt.Record(float64(i))
	}

	s := lt.Stats()
	if s.Count != 10 {
		t.Fatalf("count: got %d, want 10", s.Count)
	}
	if s.Max != 10 {
		t.Errorf("max after overwrite: got %f, want 10", s.Max)
	}
}
