package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Benchmark contract used throughout: S=100, K=100, r=5%, sigma=20%, T=1y.
const (
	spot     = 100.0
	strike   = 100.0
	rate     = 0.05
	sigma    = 0.20
	maturity = 1.0
)

func TestBlackScholesKnownValues(t *testing.T) {
	call, err := BlackScholes(Call, spot, strike, rate, sigma, maturity)
	require.NoError(t, err)
	assert.InDelta(t, 10.4506, call, 1e-3)

	put, err := BlackScholes(Put, spot, strike, rate, sigma, maturity)
	require.NoError(t, err)
	assert.InDelta(t, 5.5735, put, 1e-3)
}

func TestBlackScholesPutCallParity(t *testing.T) {
	call, err := BlackScholes(Call, 105, 95, 0.03, 0.35, 0.75)
	require.NoError(t, err)
	put, err := BlackScholes(Put, 105, 95, 0.03, 0.35, 0.75)
	require.NoError(t, err)

	// C - P = S - K e^{-rT}
	forwardDiff := 105 - 95*math.Exp(-0.03*0.75)
	assert.InDelta(t, forwardDiff, call-put, 1e-9)
}

func TestBlackScholesDegenerate(t *testing.T) {
	price, err := BlackScholes(Call, 120, 100, 0.05, 0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, price)

	price, err = BlackScholes(Put, 80, 100, 0, 0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, price, 1e-9)
}

func TestBlackScholesValidation(t *testing.T) {
	_, err := BlackScholes("straddle", spot, strike, rate, sigma, maturity)
	assert.Error(t, err)
	_, err = BlackScholes(Call, -1, strike, rate, sigma, maturity)
	assert.Error(t, err)
	_, err = BlackScholes(Call, spot, 0, rate, sigma, maturity)
	assert.Error(t, err)
	_, err = BlackScholes(Call, spot, strike, rate, -0.1, maturity)
	assert.Error(t, err)
	_, err = BlackScholes(Call, spot, strike, rate, sigma, -1)
	assert.Error(t, err)
}

func TestBinomialConvergesToBlackScholes(t *testing.T) {
	bs, err := BlackScholes(Call, spot, strike, rate, sigma, maturity)
	require.NoError(t, err)

	tree, err := Binomial(Call, European, spot, strike, rate, sigma, maturity, 500)
	require.NoError(t, err)
	assert.InDelta(t, bs, tree, 0.02)

	bsPut, err := BlackScholes(Put, spot, strike, rate, sigma, maturity)
	require.NoError(t, err)
	treePut, err := Binomial(Put, European, spot, strike, rate, sigma, maturity, 500)
	require.NoError(t, err)
	assert.InDelta(t, bsPut, treePut, 0.02)
}

func TestAmericanPutCarriesEarlyExercisePremium(t *testing.T) {
	european, err := Binomial(Put, European, spot, strike, rate, sigma, maturity, 500)
	require.NoError(t, err)
	american, err := Binomial(Put, American, spot, strike, rate, sigma, maturity, 500)
	require.NoError(t, err)

	assert.Greater(t, american, european)
}

func TestAmericanCallEqualsEuropeanWithoutDividends(t *testing.T) {
	european, err := Binomial(Call, European, spot, strike, rate, sigma, maturity, 300)
	require.NoError(t, err)
	american, err := Binomial(Call, American, spot, strike, rate, sigma, maturity, 300)
	require.NoError(t, err)

	assert.InDelta(t, european, american, 1e-9)
}

func TestBinomialValidation(t *testing.T) {
	_, err := Binomial(Call, "bermudan", spot, strike, rate, sigma, maturity, 100)
	assert.Error(t, err)
	_, err = Binomial(Call, European, spot, strike, rate, sigma, maturity, 0)
	assert.Error(t, err)
}

func TestMonteCarloMatchesBlackScholes(t *testing.T) {
	bs, err := BlackScholes(Call, spot, strike, rate, sigma, maturity)
	require.NoError(t, err)

	result, err := MonteCarlo(MCOption{
		Type: Call, Spot: spot, Strike: strike, Rate: rate, Sigma: sigma,
		Maturity: maturity, Paths: 400_000, Seed: 42,
	})
	require.NoError(t, err)

	assert.InDelta(t, bs, result.Price, 4*result.Estimate.StdErr+0.01)
	assert.Equal(t, 400_000, result.Paths)
	assert.Positive(t, result.Estimate.StdErr)
}

func TestMonteCarloAntitheticReducesError(t *testing.T) {
	plain, err := MonteCarlo(MCOption{
		Type: Call, Spot: spot, Strike: strike, Rate: rate, Sigma: sigma,
		Maturity: maturity, Paths: 100_000, Seed: 7,
	})
	require.NoError(t, err)

	anti, err := MonteCarlo(MCOption{
		Type: Call, Spot: spot, Strike: strike, Rate: rate, Sigma: sigma,
		Maturity: maturity, Paths: 100_000, Seed: 7, Reduction: VRAntithetic,
	})
	require.NoError(t, err)

	assert.Less(t, anti.Estimate.StdErr, plain.Estimate.StdErr)
}

func TestMonteCarloControlVariateReducesError(t *testing.T) {
	plain, err := MonteCarlo(MCOption{
		Type: Call, Spot: spot, Strike: strike, Rate: rate, Sigma: sigma,
		Maturity: maturity, Paths: 100_000, Seed: 7,
	})
	require.NoError(t, err)

	ctrl, err := MonteCarlo(MCOption{
		Type: Call, Spot: spot, Strike: strike, Rate: rate, Sigma: sigma,
		Maturity: maturity, Paths: 100_000, Seed: 7, Reduction: VRControl,
	})
	require.NoError(t, err)

	assert.Less(t, ctrl.Estimate.StdErr, plain.Estimate.StdErr)
}

func TestMonteCarloValidation(t *testing.T) {
	_, err := MonteCarlo(MCOption{Type: Call, Spot: spot, Strike: strike, Sigma: sigma, Maturity: 0, Paths: 100})
	assert.Error(t, err)

	_, err = MonteCarlo(MCOption{Type: Call, Spot: spot, Strike: strike, Sigma: sigma, Maturity: 1, Paths: 1})
	assert.Error(t, err)

	_, err = MonteCarlo(MCOption{Type: Call, Spot: spot, Strike: strike, Sigma: sigma, Maturity: 1, Paths: 100, Reduction: "importance"})
	assert.Error(t, err)
}
