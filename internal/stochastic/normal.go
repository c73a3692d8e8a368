// Package stochastic provides the random draws used by the lab integrator.
package stochastic

import (
	"math"
	"math/rand"
)

// Uniform yields uniform variates in [0,1). *rand.Rand satisfies it.
type Uniform interface {
	Float64() float64
}

// Normal yields standard normal variates.
type Normal interface {
	Next() float64
}

// NormalSource turns pairs of uniform draws into standard normal variates with
// the Box-Muller transform. Each transform yields two values; the second is
// cached and returned by the following call.
type NormalSource struct {
	uniform  Uniform
	spare    float64
	hasSpare bool
}

func NewNormalSource(uniform Uniform) *NormalSource {
	return &NormalSource{uniform: uniform}
}

// NewSeeded returns a normal source and its uniform stream, both backed by one
// seeded generator.
func NewSeeded(seed int64) (*NormalSource, *rand.Rand) {
	rng := rand.New(rand.NewSource(seed))
	return NewNormalSource(rng), rng
}

func (s *NormalSource) Next() float64 {
	if s.hasSpare {
		s.hasSpare = false
		return s.spare
	}

	u := s.nonZero()
	v := s.nonZero()

	magnitude := math.Sqrt(-2 * math.Log(u))
	angle := 2 * math.Pi * v
	s.spare = magnitude * math.Sin(angle)
	s.hasSpare = true
	return magnitude * math.Cos(angle)
}

func (s *NormalSource) nonZero() float64 {
	for {
		if u := s.uniform.Float64(); u != 0 {
			return u
		}
	}
}

// Zero is a deterministic substitute that always returns 0.
type Zero struct{}

func (Zero) Next() float64 { return 0 }

// Fixed replays a uniform sequence, cycling when exhausted. Useful for
// reproducing a direction or magnitude draw exactly.
type Fixed struct {
	Values []float64
	next   int
}

func (f *Fixed) Float64() float64 {
	if len(f.Values) == 0 {
		return 0.5
	}
	v := f.Values[f.next%len(f.Values)]
	f.next++
	return v
}
