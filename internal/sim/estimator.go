package sim

import (
	"fmt"
	"math"
	"sort"
)

// Accumulator tracks streaming sample moments using Welford's algorithm.
// Accumulators filled independently can be merged, so batch results combine
// exactly regardless of how paths were partitioned across workers.
type Accumulator struct {
	n    int64
	mean float64
	m2   float64
	min  float64
	max  float64
}

// Add folds a sample into the accumulator.
func (a *Accumulator) Add(x float64) {
	if a.n == 0 {
		a.min = x
		a.max = x
	} else {
		if x < a.min {
			a.min = x
		}
		if x > a.max {
			a.max = x
		}
	}
	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// Merge folds another accumulator into this one.
func (a *Accumulator) Merge(b Accumulator) {
	if b.n == 0 {
		return
	}
	if a.n == 0 {
		*a = b
		return
	}
	n := a.n + b.n
	delta := b.mean - a.mean
	a.mean += delta * float64(b.n) / float64(n)
	a.m2 += b.m2 + delta*delta*float64(a.n)*float64(b.n)/float64(n)
	if b.min < a.min {
		a.min = b.min
	}
	if b.max > a.max {
		a.max = b.max
	}
	a.n = n
}

// N returns the sample count.
func (a *Accumulator) N() int64 { return a.n }

// Mean returns the sample mean.
func (a *Accumulator) Mean() float64 { return a.mean }

// Variance returns the unbiased sample variance.
func (a *Accumulator) Variance() float64 {
	if a.n < 2 {
		return 0
	}
	return a.m2 / float64(a.n-1)
}

// StdDev returns the sample standard deviation.
func (a *Accumulator) StdDev() float64 { return math.Sqrt(a.Variance()) }

// StdErr returns the standard error of the mean.
func (a *Accumulator) StdErr() float64 {
	if a.n == 0 {
		return 0
	}
	return a.StdDev() / math.Sqrt(float64(a.n))
}

// Min returns the smallest sample seen.
func (a *Accumulator) Min() float64 { return a.min }

// Max returns the largest sample seen.
func (a *Accumulator) Max() float64 { return a.max }

// Estimate is a Monte Carlo point estimate with its sampling error.
type Estimate struct {
	Mean      float64 `json:"mean"`
	StdErr    float64 `json:"std_err"`
	HalfWidth float64 `json:"half_width_95"`
	N         int64   `json:"n"`
}

// Estimate summarizes the accumulator, with a 95% confidence half-width.
func (a *Accumulator) Estimate() Estimate {
	se := a.StdErr()
	return Estimate{
		Mean:      a.mean,
		StdErr:    se,
		HalfWidth: 1.96 * se,
		N:         a.n,
	}
}

// Quantile returns the p-quantile of a sorted sample using linear
// interpolation between order statistics.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo+1 >= n {
		return sorted[n-1]
	}
	return sorted[lo]*(1-frac) + sorted[lo+1]*frac
}

// SortedCopy returns an ascending copy of samples.
func SortedCopy(samples []float64) []float64 {
	out := make([]float64, len(samples))
	copy(out, samples)
	sort.Float64s(out)
	return out
}

// ControlVariate adjusts the sample mean of samples using a control variable
// with known expectation controlMean. The optimal coefficient is estimated
// from the sample covariance; the returned estimate carries the post-
// adjustment standard error.
func ControlVariate(samples, controls []float64, controlMean float64) (Estimate, error) {
	n := len(samples)
	if n != len(controls) {
		return Estimate{}, fmt.Errorf("sim: sample/control length mismatch: %d vs %d", n, len(controls))
	}
	if n < 2 {
		return Estimate{}, fmt.Errorf("sim: control variate needs at least 2 samples, got %d", n)
	}

	var sampleMean, ctrlMean float64
	for i := 0; i < n; i++ {
		sampleMean += samples[i]
		ctrlMean += controls[i]
	}
	sampleMean /= float64(n)
	ctrlMean /= float64(n)

	var cov, ctrlVar float64
	for i := 0; i < n; i++ {
		ds := samples[i] - sampleMean
		dc := controls[i] - ctrlMean
		cov += ds * dc
		ctrlVar += dc * dc
	}
	cov /= float64(n - 1)
	ctrlVar /= float64(n - 1)

	b := 0.0
	if ctrlVar > 0 {
		b = cov / ctrlVar
	}

	var acc Accumulator
	for i := 0; i < n; i++ {
		acc.Add(samples[i] - b*(controls[i]-controlMean))
	}
	return acc.Estimate(), nil
}

// Histogram is a fixed-width bucket summary of a sample, serialized into run
// results so clients can render the simulated distribution.
type Histogram struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Width   float64 `json:"width"`
	Counts  []int64 `json:"counts"`
	Samples int64   `json:"samples"`
}

// NewHistogram buckets samples into the given number of equal-width bins.
func NewHistogram(samples []float64, buckets int) Histogram {
	if buckets <= 0 {
		buckets = 64
	}
	h := Histogram{Counts: make([]int64, buckets)}
	if len(samples) == 0 {
		return h
	}

	h.Min, h.Max = samples[0], samples[0]
	for _, x := range samples {
		if x < h.Min {
			h.Min = x
		}
		if x > h.Max {
			h.Max = x
		}
	}

	h.Samples = int64(len(samples))
	span := h.Max - h.Min
	if span == 0 {
		h.Counts[0] = h.Samples
		return h
	}
	h.Width = span / float64(buckets)

	for _, x := range samples {
		idx := int((x - h.Min) / h.Width)
		if idx >= buckets {
			idx = buckets - 1
		}
		h.Counts[idx]++
	}
	return h
}
