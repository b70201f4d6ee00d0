package window

import "math"

// Variance keeps a windowed mean and sum of squared deviations (M2) using
// Welford's add and replace updates.
type Variance struct {
	ring *Ring
	mean float64
	m2   float64
}

// NewVariance creates a windowed accumulator of the given period.
func NewVariance(period int) *Variance {
	return &Variance{ring: NewRing(period)}
}

// Push adds x, evicting the oldest value once the window is full.
func (v *Variance) Push(x float64) {
	if !v.ring.Full() {
		v.ring.Push(x)
		n := float64(v.ring.Len())
		d := x - v.mean
		v.mean += d / n
		v.m2 += d * (x - v.mean)
		return
	}
	y, _ := v.ring.Push(x)
	n := float64(v.ring.Len())
	oldMean := v.mean
	v.mean += (x - y) / n
	v.m2 += (x - y) * (x - v.mean + y - oldMean)
	if v.m2 < 0 {
		v.m2 = 0
	}
}

// Full reports whether the window holds period values.
func (v *Variance) Full() bool { return v.ring.Full() }

// Len returns the number of values held.
func (v *Variance) Len() int { return v.ring.Len() }

// Mean returns the window mean.
func (v *Variance) Mean() float64 { return v.mean }

// M2 returns the sum of squared deviations from the mean.
func (v *Variance) M2() float64 { return v.m2 }

// Sum returns the plain window sum.
func (v *Variance) Sum() float64 { return v.ring.Sum() }

// Population returns M2/n.
func (v *Variance) Population() float64 {
	n := v.ring.Len()
	if n == 0 {
		return 0
	}
	return v.m2 / float64(n)
}

// Sample returns M2/(n-1), or 0 with fewer than two values.
func (v *Variance) Sample() float64 {
	n := v.ring.Len()
	if n < 2 {
		return 0
	}
	return v.m2 / float64(n-1)
}

// StdDev returns the population standard deviation.
func (v *Variance) StdDev() float64 { return math.Sqrt(v.Population()) }

// At returns the i-th held value, 0 being the oldest.
func (v *Variance) At(i int) float64 { return v.ring.At(i) }

// Reset clears the accumulator.
func (v *Variance) Reset() {
	v.ring.Reset()
	v.mean = 0
	v.m2 = 0
}
