package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalSourceDeterminism(t *testing.T) {
	a := NewNormalSource(42, 1)
	b := NewNormalSource(42, 1)

	for i := 0; i < 1000; i++ {
		require.Equal(t, a.Norm(), b.Norm(), "draw %d diverged", i)
	}
}

func TestNormalSourceStreamsIndependent(t *testing.T) {
	a := NewNormalSource(42, 1)
	b := NewNormalSource(42, 2)

	same := 0
	for i := 0; i < 100; i++ {
		if a.Norm() == b.Norm() {
			same++
		}
	}
	assert.Zero(t, same, "distinct streams should not collide")
}

func TestNormalSourceMoments(t *testing.T) {
	src := NewNormalSource(7, 0)
	var acc Accumulator
	for i := 0; i < 200_000; i++ {
		acc.Add(src.Norm())
	}

	assert.InDelta(t, 0.0, acc.Mean(), 0.01)
	assert.InDelta(t, 1.0, acc.StdDev(), 0.01)
}

func TestAntitheticSourcePairs(t *testing.T) {
	src := NewAntitheticSource(42, 0)
	require.True(t, src.Antithetic())

	for i := 0; i < 100; i++ {
		z1 := src.Norm()
		z2 := src.Norm()
		assert.Equal(t, z1, -z2, "pair %d is not antithetic", i)
	}
}

func TestFill(t *testing.T) {
	a := NewNormalSource(9, 3)
	b := NewNormalSource(9, 3)

	buf := make([]float64, 64)
	a.Fill(buf)
	for i, z := range buf {
		require.Equal(t, b.Norm(), z, "index %d", i)
	}
}
