package sim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is returned when a correlation matrix admits no
// Cholesky factorization.
var ErrNotPositiveDefinite = errors.New("sim: correlation matrix is not positive definite")

// Correlator maps vectors of independent standard normals to draws with a
// target correlation structure using the lower Cholesky factor L of the
// correlation matrix: x = L z.
type Correlator struct {
	dim int
	l   *mat.TriDense
}

// NewCorrelator validates corr as a correlation matrix (square, symmetric,
// unit diagonal, entries in [-1, 1]) and factorizes it.
func NewCorrelator(corr [][]float64) (*Correlator, error) {
	n := len(corr)
	if n == 0 {
		return nil, fmt.Errorf("sim: empty correlation matrix")
	}
	for i, row := range corr {
		if len(row) != n {
			return nil, fmt.Errorf("sim: correlation matrix is not square: row %d has %d entries, want %d", i, len(row), n)
		}
	}
	const tol = 1e-12
	for i := 0; i < n; i++ {
		if math.Abs(corr[i][i]-1) > tol {
			return nil, fmt.Errorf("sim: correlation matrix diagonal entry (%d,%d) = %v, want 1", i, i, corr[i][i])
		}
		for j := 0; j < i; j++ {
			if math.Abs(corr[i][j]-corr[j][i]) > tol {
				return nil, fmt.Errorf("sim: correlation matrix is not symmetric at (%d,%d)", i, j)
			}
			if corr[i][j] < -1 || corr[i][j] > 1 {
				return nil, fmt.Errorf("sim: correlation entry (%d,%d) = %v outside [-1, 1]", i, j, corr[i][j])
			}
		}
	}

	flat := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			flat[i*n+j] = corr[i][j]
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, flat)); !ok {
		return nil, ErrNotPositiveDefinite
	}

	l := mat.NewTriDense(n, mat.Lower, nil)
	chol.LTo(l)

	return &Correlator{dim: n, l: l}, nil
}

// Dim returns the number of factors.
func (c *Correlator) Dim() int { return c.dim }

// Apply writes L z into dst. dst and z must have length Dim; they may alias
// only if identical.
func (c *Correlator) Apply(dst, z []float64) {
	if len(dst) != c.dim || len(z) != c.dim {
		panic(fmt.Sprintf("sim: correlator dimension mismatch: dst=%d z=%d dim=%d", len(dst), len(z), c.dim))
	}
	// Walk rows bottom-up so dst may alias z.
	for i := c.dim - 1; i >= 0; i-- {
		sum := 0.0
		for j := 0; j <= i; j++ {
			sum += c.l.At(i, j) * z[j]
		}
		dst[i] = sum
	}
}

// Factor returns the entry L[i][j] of the lower Cholesky factor.
func (c *Correlator) Factor(i, j int) float64 {
	return c.l.At(i, j)
}
