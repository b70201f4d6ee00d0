package batch

import (
	"fmt"
	"math"

	"ta-core/internal/core"
	"ta-core/internal/indicator"
	"ta-core/internal/model"
)

// Point is one output slot. Value is nil where the indicator is undefined;
// undefined fields are omitted.
type Point struct {
	TS     int64              `json:"ts" yaml:"ts"`
	Value  *float64           `json:"value" yaml:"value"`
	Fields map[string]float64 `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Series is a named output run over a bar history.
type Series struct {
	Name   string  `json:"name" yaml:"name"`
	Points []Point `json:"points" yaml:"points"`
}

// Defined counts the points with a value.
func (s Series) Defined() int {
	n := 0
	for _, p := range s.Points {
		if p.Value != nil {
			n++
		}
	}
	return n
}

func batcher(cfg indicator.IndicatorConfig) (indicator.Calculator, indicator.Batcher, error) {
	calc, err := indicator.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	b, ok := calc.(indicator.Batcher)
	if !ok {
		return nil, nil, core.WrapError(core.ErrUnknownIndicator, fmt.Errorf("%s has no batch form", cfg.Key()))
	}
	return calc, b, nil
}

// Compute runs the indicator described by cfg over bars in one pass.
func Compute(cfg indicator.IndicatorConfig, bars []model.Bar) (Series, error) {
	calc, b, err := batcher(cfg)
	if err != nil {
		return Series{}, err
	}
	values, fields := b.Run(bars)
	s := Series{Name: calc.Name(), Points: make([]Point, len(bars))}
	for i, bar := range bars {
		s.Points[i] = point(bar.TS, values[i], fields[i])
	}
	return s, nil
}

// ComputeSpec is Compute for a TYPE[:ARG...] spec string.
func ComputeSpec(spec string, bars []model.Bar) (Series, error) {
	cfg, err := indicator.ParseSpec(spec)
	if err != nil {
		return Series{}, err
	}
	return Compute(cfg, bars)
}

func point(ts int64, v float64, fields map[string]float64) Point {
	p := Point{TS: ts}
	if defined(v) {
		val := v
		p.Value = &val
	}
	for k, f := range fields {
		if !defined(f) {
			continue
		}
		if p.Fields == nil {
			p.Fields = make(map[string]float64, len(fields))
		}
		p.Fields[k] = f
	}
	return p
}

func defined(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Mismatch describes the first slot where batch and streaming disagree.
type Mismatch struct {
	Index  int
	Field  string // empty for the primary value
	Batch  float64
	Stream float64
}

func (m *Mismatch) Error() string {
	name := m.Field
	if name == "" {
		name = "value"
	}
	return fmt.Sprintf("index %d %s: batch %v, stream %v", m.Index, name, m.Batch, m.Stream)
}

// Verify runs cfg over bars twice, once through the batch form and once
// bar by bar through Update on a fresh calculator, and returns a *Mismatch
// for the first slot whose outputs differ by more than tol. Undefined
// slots must match exactly.
func Verify(cfg indicator.IndicatorConfig, bars []model.Bar, tol float64) error {
	_, b, err := batcher(cfg)
	if err != nil {
		return err
	}
	stream, err := indicator.New(cfg)
	if err != nil {
		return err
	}

	values, fields := b.Run(bars)
	for i, bar := range bars {
		sv, sf, ok := stream.Update(bar)
		if !ok {
			sv, sf = math.NaN(), nil
		}
		if !within(values[i], sv, tol) {
			return &Mismatch{Index: i, Batch: values[i], Stream: sv}
		}
		for k, bv := range fields[i] {
			fv, has := sf[k]
			if !has {
				fv = math.NaN()
			}
			if !within(bv, fv, tol) {
				return &Mismatch{Index: i, Field: k, Batch: bv, Stream: fv}
			}
		}
		for k, fv := range sf {
			if _, has := fields[i][k]; !has && defined(fv) {
				return &Mismatch{Index: i, Field: k, Batch: math.NaN(), Stream: fv}
			}
		}
	}
	return nil
}

func within(a, b, tol float64) bool {
	if !defined(a) || !defined(b) {
		return !defined(a) && !defined(b)
	}
	return math.Abs(a-b) <= tol
}
