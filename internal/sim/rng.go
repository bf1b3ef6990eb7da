// Package sim implements the stochastic building blocks of the engine:
// seedable normal variate streams, Wiener/GBM/short-rate processes,
// Cholesky-correlated multi-factor draws and estimator accumulators.
package sim

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// NormalSource produces standard normal variates from a deterministic,
// seedable PCG stream. Sources created from the same base seed with distinct
// stream indices are independent, so a run partitioned across workers is
// reproducible regardless of worker count.
type NormalSource struct {
	dist       distuv.Normal
	antithetic bool
	pending    float64
	hasPending bool
}

// NewNormalSource creates a stream of independent standard normals.
func NewNormalSource(seed, stream uint64) *NormalSource {
	return &NormalSource{
		dist: distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, stream)},
	}
}

// NewAntitheticSource creates a stream that yields antithetic pairs: every
// draw z is followed by -z.
func NewAntitheticSource(seed, stream uint64) *NormalSource {
	s := NewNormalSource(seed, stream)
	s.antithetic = true
	return s
}

// Norm returns the next variate in the stream.
func (s *NormalSource) Norm() float64 {
	if s.antithetic {
		if s.hasPending {
			s.hasPending = false
			return -s.pending
		}
		z := s.dist.Rand()
		s.pending = z
		s.hasPending = true
		return z
	}
	return s.dist.Rand()
}

// Fill fills buf with variates from the stream.
func (s *NormalSource) Fill(buf []float64) {
	for i := range buf {
		buf[i] = s.Norm()
	}
}

// Antithetic reports whether the source yields antithetic pairs.
func (s *NormalSource) Antithetic() bool {
	return s.antithetic
}
