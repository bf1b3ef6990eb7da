package sim

import "math"

// WienerIncrement returns a Brownian increment dW over a step of length dt
// given a standard normal draw z.
func WienerIncrement(dt, z float64) float64 {
	return math.Sqrt(dt) * z
}

// BrownianPath fills buf with a standard Brownian path sampled on an even
// grid of step dt, starting from W(0) = 0. buf[i] holds W((i+1)*dt).
func BrownianPath(buf []float64, dt float64, src *NormalSource) {
	w := 0.0
	for i := range buf {
		w += WienerIncrement(dt, src.Norm())
		buf[i] = w
	}
}
