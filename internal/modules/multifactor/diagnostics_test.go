package multifactor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardReturns_BasicAndTail(t *testing.T) {
	closes := [][]float64{
		{100, 110, 121},
	}

	fwd := forwardReturns(closes, 1)
	require.Len(t, fwd[0], 3)

	assert.InDelta(t, 0.10, fwd[0][0], 1e-12)
	assert.InDelta(t, 0.10, fwd[0][1], 1e-12)
	assert.True(t, math.IsNaN(fwd[0][2]), "last position has no look-ahead")
}

func TestForwardReturns_HorizonTwoLeavesTwoNaNs(t *testing.T) {
	closes := [][]float64{
		{100, 110, 121},
	}

	fwd := forwardReturns(closes, 2)
	assert.InDelta(t, 0.21, fwd[0][0], 1e-12)
	assert.True(t, math.IsNaN(fwd[0][1]))
	assert.True(t, math.IsNaN(fwd[0][2]))
}

func TestForwardReturns_MissingAndZeroBase(t *testing.T) {
	closes := [][]float64{
		{math.NaN(), 110, 0, 130, 140},
	}

	fwd := forwardReturns(closes, 1)
	assert.True(t, math.IsNaN(fwd[0][0]), "NaN base price")
	assert.InDelta(t, -1.0, fwd[0][1], 1e-12, "zero target price is a defined value")
	assert.True(t, math.IsNaN(fwd[0][2]), "zero base price")
	assert.InDelta(t, 10.0/130.0, fwd[0][3], 1e-12)
}

func TestICSeries_PerfectMonotonicAgreement(t *testing.T) {
	// Three securities, one date with full forward data. Factor order
	// matches forward-return order exactly, so Spearman IC is +1.
	factors := [][]float64{{3}, {1}, {2}}
	fwd := [][]float64{{0.3}, {0.1}, {0.2}}

	ic := icSeries(factors, fwd, 1)
	require.Len(t, ic, 1)
	assert.InDelta(t, 1.0, ic[0], 1e-12)
}

func TestICSeries_PerfectInversion(t *testing.T) {
	factors := [][]float64{{3}, {1}, {2}}
	fwd := [][]float64{{0.1}, {0.3}, {0.2}}

	ic := icSeries(factors, fwd, 1)
	assert.InDelta(t, -1.0, ic[0], 1e-12)
}

func TestICSeries_SkipsUndefinedPairs(t *testing.T) {
	// Security B has no forward return; only two pairs remain, still enough
	// for a defined correlation.
	factors := [][]float64{{1}, {2}, {3}}
	fwd := [][]float64{{0.1}, {math.NaN()}, {0.3}}

	ic := icSeries(factors, fwd, 1)
	assert.InDelta(t, 1.0, ic[0], 1e-12)
}

func TestICSeries_FewerThanTwoPairsIsNaN(t *testing.T) {
	factors := [][]float64{{1}, {math.NaN()}}
	fwd := [][]float64{{0.1}, {0.2}}

	ic := icSeries(factors, fwd, 1)
	assert.True(t, math.IsNaN(ic[0]))
}

func TestICIRSeries_RollingMeanOverStd(t *testing.T) {
	ic := []float64{0.1, 0.3, 0.2, 0.4}

	out := icirSeries(ic, 2)
	require.Len(t, out, 4)

	// First position has no complete window
	assert.True(t, math.IsNaN(out[0]))

	mean := (0.1 + 0.3) / 2
	sd := math.Sqrt(math.Pow(0.1-mean, 2) + math.Pow(0.3-mean, 2)) // sample std, n-1 = 1
	assert.InDelta(t, mean/sd, out[1], 1e-12)
}

func TestICIRSeries_ZeroVarianceWindowIsNaN(t *testing.T) {
	ic := []float64{0.2, 0.2, 0.2}

	out := icirSeries(ic, 2)
	assert.True(t, math.IsNaN(out[1]))
	assert.True(t, math.IsNaN(out[2]))
}

func TestICIRSeries_WindowWithNaNIsNaN(t *testing.T) {
	ic := []float64{0.1, math.NaN(), 0.3, 0.4}

	out := icirSeries(ic, 2)
	assert.True(t, math.IsNaN(out[1]))
	assert.True(t, math.IsNaN(out[2]))
	assert.False(t, math.IsNaN(out[3]), "window past the NaN recovers")
}

func TestRollingMean(t *testing.T) {
	values := []float64{1, 2, 3, math.NaN(), 5, 7}

	out := rollingMean(values, 2)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 1.5, out[1], 1e-12)
	assert.InDelta(t, 2.5, out[2], 1e-12)
	assert.True(t, math.IsNaN(out[3]))
	assert.True(t, math.IsNaN(out[4]))
	assert.InDelta(t, 6.0, out[5], 1e-12)
}
