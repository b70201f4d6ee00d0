// Package indicator provides streaming technical-indicator calculators and
// their batch counterparts.
//
// Every calculator is a small state machine that satisfies Stream: Init
// resets it and feeds a history through Next one sample at a time, so a
// batch function is nothing more than a fresh calculator run to the end of
// its input. Outputs before warm-up are the sentinel: NaN in Init results
// and false from Next/Current.
package indicator

import "math"

// Stream is the shape shared by every calculator.
type Stream[In, Out any] interface {
	// Init resets the calculator and feeds history, returning one output
	// per input (sentinel-padded).
	Init(history []In) []Out

	// Next feeds one sample. ok is false until the output is defined.
	Next(in In) (out Out, ok bool)

	// Reset returns the calculator to its just-constructed state.
	Reset()

	// Ready reports whether every output field has warmed up.
	Ready() bool

	// Current returns the last output without advancing.
	Current() (out Out, ok bool)
}

// nan is the sentinel for undefined scalar outputs.
var nan = math.NaN()

// feed is the shared Init body: reset, then Next over history, filling
// undefined slots with sentinel.
func feed[In, Out any](s Stream[In, Out], history []In, sentinel Out) []Out {
	s.Reset()
	out := make([]Out, len(history))
	for i, v := range history {
		r, ok := s.Next(v)
		if !ok {
			r = sentinel
		}
		out[i] = r
	}
	return out
}

// scalar holds the last defined output of a single-valued calculator.
type scalar struct {
	value   float64
	defined bool
}

func (s *scalar) set(v float64) (float64, bool) {
	s.value = v
	s.defined = true
	return v, true
}

func (s *scalar) get() (float64, bool) {
	if !s.defined {
		return nan, false
	}
	return s.value, true
}

func (s *scalar) clear() {
	s.value = 0
	s.defined = false
}
