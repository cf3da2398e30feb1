package multifactor

import (
	"math"

	"github.com/petrakis/factorlab/pkg/formulas"
)

// forwardReturns computes per-security forward returns over ndays calendar
// steps from aligned close prices. closes is indexed [security][date].
// The final ndays positions are NaN (insufficient look-ahead), as is any
// position where either endpoint is missing or the base price is zero.
func forwardReturns(closes [][]float64, ndays int) [][]float64 {
	out := make([][]float64, len(closes))
	for s, prices := range closes {
		ret := make([]float64, len(prices))
		for t := range prices {
			ret[t] = math.NaN()
			if t+ndays >= len(prices) {
				continue
			}
			p0, p1 := prices[t], prices[t+ndays]
			if math.IsNaN(p0) || math.IsNaN(p1) || p0 == 0 {
				continue
			}
			ret[t] = (p1 - p0) / p0
		}
		out[s] = ret
	}
	return out
}

// icSeries computes the per-date Information Coefficient: the Spearman rank
// correlation between factor values and forward returns across securities.
// factors and fwd are indexed [security][date]. A date pairs only securities
// with both sides defined; fewer than 2 pairs, or zero rank variance, yields
// NaN for that date.
func icSeries(factors, fwd [][]float64, numDates int) []float64 {
	ic := make([]float64, numDates)
	fvals := make([]float64, 0, len(factors))
	rvals := make([]float64, 0, len(factors))

	for t := 0; t < numDates; t++ {
		fvals = fvals[:0]
		rvals = rvals[:0]
		for s := range factors {
			f := factors[s][t]
			r := fwd[s][t]
			if math.IsNaN(f) || math.IsNaN(r) {
				continue
			}
			fvals = append(fvals, f)
			rvals = append(rvals, r)
		}
		ic[t] = formulas.SpearmanCorrelation(fvals, rvals)
	}

	return ic
}

// icirSeries computes the rolling Information Ratio of an IC series:
// mean(IC)/stddev(IC) over a trailing window of irN values ending at each
// date. A date is defined only when the full trailing window exists and
// contains no NaN; a zero or non-finite window deviation also yields NaN
// (single-point and zero-variance windows are defined failure conditions,
// not infinities).
func icirSeries(ic []float64, irN int) []float64 {
	out := make([]float64, len(ic))
	for t := range out {
		out[t] = math.NaN()
		if t+1 < irN {
			continue
		}
		window := ic[t+1-irN : t+1]
		if hasNaN(window) {
			continue
		}
		sd := formulas.StdDev(window)
		if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
			continue
		}
		out[t] = formulas.Mean(window) / sd
	}
	return out
}

// rollingMean computes the trailing mean of the previous n values ending at
// each position, NaN where the window is incomplete or broken. Used by the
// IC-weighted combiner.
func rollingMean(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for t := range out {
		out[t] = math.NaN()
		if t+1 < n {
			continue
		}
		window := values[t+1-n : t+1]
		if hasNaN(window) {
			continue
		}
		out[t] = formulas.Mean(window)
	}
	return out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
