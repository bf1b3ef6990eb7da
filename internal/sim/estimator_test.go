package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorMoments(t *testing.T) {
	var acc Accumulator
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	for _, x := range data {
		acc.Add(x)
	}

	assert.EqualValues(t, 8, acc.N())
	assert.InDelta(t, 5.0, acc.Mean(), 1e-12)
	// Unbiased variance of the classic sample is 32/7.
	assert.InDelta(t, 32.0/7.0, acc.Variance(), 1e-12)
	assert.Equal(t, 2.0, acc.Min())
	assert.Equal(t, 9.0, acc.Max())
}

func TestAccumulatorMergeMatchesSequential(t *testing.T) {
	src := NewNormalSource(21, 0)
	data := make([]float64, 10_000)
	src.Fill(data)

	var whole Accumulator
	for _, x := range data {
		whole.Add(x)
	}

	var left, right Accumulator
	for _, x := range data[:3333] {
		left.Add(x)
	}
	for _, x := range data[3333:] {
		right.Add(x)
	}
	left.Merge(right)

	assert.Equal(t, whole.N(), left.N())
	assert.InDelta(t, whole.Mean(), left.Mean(), 1e-10)
	assert.InDelta(t, whole.Variance(), left.Variance(), 1e-8)
	assert.Equal(t, whole.Min(), left.Min())
	assert.Equal(t, whole.Max(), left.Max())
}

func TestAccumulatorMergeEmpty(t *testing.T) {
	var a, b Accumulator
	a.Add(1)
	a.Add(3)

	a.Merge(b)
	assert.EqualValues(t, 2, a.N())

	var c Accumulator
	c.Merge(a)
	assert.EqualValues(t, 2, c.N())
	assert.InDelta(t, 2.0, c.Mean(), 1e-12)
}

func TestEstimateHalfWidth(t *testing.T) {
	var acc Accumulator
	for i := 0; i < 100; i++ {
		acc.Add(float64(i % 2))
	}
	est := acc.Estimate()
	assert.InDelta(t, 1.96*est.StdErr, est.HalfWidth, 1e-12)
	assert.EqualValues(t, 100, est.N)
}

func TestQuantile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 1.0, Quantile(sorted, 0))
	assert.Equal(t, 5.0, Quantile(sorted, 1))
	assert.InDelta(t, 3.0, Quantile(sorted, 0.5), 1e-12)
	assert.InDelta(t, 2.0, Quantile(sorted, 0.25), 1e-12)
	assert.InDelta(t, 1.2, Quantile(sorted, 0.05), 1e-12)
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

func TestControlVariateReducesError(t *testing.T) {
	// Samples strongly correlated with the control: the adjusted standard
	// error must be far below the plain one.
	src := NewNormalSource(33, 0)
	n := 50_000
	samples := make([]float64, n)
	controls := make([]float64, n)
	noise := NewNormalSource(34, 0)

	for i := 0; i < n; i++ {
		c := src.Norm()
		controls[i] = c
		samples[i] = 3 + 2*c + 0.1*noise.Norm()
	}

	var plain Accumulator
	for _, s := range samples {
		plain.Add(s)
	}

	est, err := ControlVariate(samples, controls, 0)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, est.Mean, 0.01)
	assert.Less(t, est.StdErr, plain.StdErr()/5)
}

func TestControlVariateErrors(t *testing.T) {
	_, err := ControlVariate([]float64{1, 2}, []float64{1}, 0)
	assert.Error(t, err)

	_, err = ControlVariate([]float64{1}, []float64{1}, 0)
	assert.Error(t, err)
}

func TestHistogram(t *testing.T) {
	samples := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	h := NewHistogram(samples, 5)

	assert.Equal(t, 0.0, h.Min)
	assert.Equal(t, 9.0, h.Max)
	assert.EqualValues(t, 10, h.Samples)

	var total int64
	for _, c := range h.Counts {
		total += c
	}
	assert.EqualValues(t, 10, total)
}

func TestHistogramDegenerate(t *testing.T) {
	h := NewHistogram([]float64{5, 5, 5}, 4)
	assert.EqualValues(t, 3, h.Counts[0])

	empty := NewHistogram(nil, 4)
	assert.EqualValues(t, 0, empty.Samples)
}
