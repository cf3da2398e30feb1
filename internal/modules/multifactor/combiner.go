package multifactor

import (
	"fmt"
	"math"
)

// Combiner names accepted by NewCombiner and stored in persisted engine
// configurations.
const (
	CombinerEqualWeight = "equal_weight"
	CombinerICWeight    = "ic_weight"
	CombinerICIRWeight  = "icir_weight"
)

// CombineInput carries everything a combination strategy may need: the
// aligned input factor tables plus the per-input-factor IC series computed
// against the engine's default horizon. Factors is indexed
// [factor][security][date]; FactorICs is indexed [factor][date].
type CombineInput struct {
	Calendar   []string
	Securities []string
	Factors    [][][]float64
	FactorICs  [][]float64
}

// Combiner turns aligned input factor tables into one combined series per
// security. Implementations must be deterministic and side-effect-free:
// the engine computes once and serves cached results, which is only sound
// if repeated combination of identical inputs yields identical output.
type Combiner interface {
	Name() string
	Combine(in CombineInput) ([][]float64, error)
}

// NewCombiner resolves a combiner by its persisted name. window is the
// trailing IC window used by the weighted strategies; it is ignored by
// equal_weight.
func NewCombiner(name string, window int) (Combiner, error) {
	switch name {
	case CombinerEqualWeight, "":
		return EqualWeight{}, nil
	case CombinerICWeight:
		return NewICWeight(window), nil
	case CombinerICIRWeight:
		return NewICIRWeight(window), nil
	default:
		return nil, fmt.Errorf("unknown combiner %q", name)
	}
}

// EqualWeight averages the defined input factor values per security per date.
// Factors missing at a date are skipped; a date where every factor is missing
// stays NaN.
type EqualWeight struct{}

// Name returns the persisted identifier of the strategy.
func (EqualWeight) Name() string { return CombinerEqualWeight }

// Combine implements Combiner.
func (EqualWeight) Combine(in CombineInput) ([][]float64, error) {
	numDates := len(in.Calendar)
	out := make([][]float64, len(in.Securities))

	for s := range in.Securities {
		combined := make([]float64, numDates)
		for t := 0; t < numDates; t++ {
			sum := 0.0
			count := 0
			for f := range in.Factors {
				v := in.Factors[f][s][t]
				if math.IsNaN(v) {
					continue
				}
				sum += v
				count++
			}
			if count == 0 {
				combined[t] = math.NaN()
			} else {
				combined[t] = sum / float64(count)
			}
		}
		out[s] = combined
	}

	return out, nil
}

// DefaultICWindow is the trailing window used by the weighted combiners when
// none is configured.
const DefaultICWindow = 10

// ICWeight weights each input factor by the trailing mean of its IC series.
// Dates where no factor has a usable weight fall back to the equal-weight
// average, so early calendar positions (before any IC window is complete)
// still produce a combined value.
type ICWeight struct {
	window int
}

// NewICWeight creates an IC-weighted combiner with the given trailing window.
func NewICWeight(window int) ICWeight {
	if window <= 0 {
		window = DefaultICWindow
	}
	return ICWeight{window: window}
}

// Name returns the persisted identifier of the strategy.
func (c ICWeight) Name() string { return CombinerICWeight }

// Window returns the trailing IC window.
func (c ICWeight) Window() int { return c.window }

// Combine implements Combiner.
func (c ICWeight) Combine(in CombineInput) ([][]float64, error) {
	weights := make([][]float64, len(in.FactorICs))
	for f, ic := range in.FactorICs {
		weights[f] = rollingMean(ic, c.window)
	}
	return combineWeighted(in, weights)
}

// ICIRWeight weights each input factor by the trailing information ratio
// (mean/stddev) of its IC series, with the same equal-weight fallback as
// ICWeight.
type ICIRWeight struct {
	window int
}

// NewICIRWeight creates an ICIR-weighted combiner with the given trailing window.
func NewICIRWeight(window int) ICIRWeight {
	if window <= 0 {
		window = DefaultICWindow
	}
	return ICIRWeight{window: window}
}

// Name returns the persisted identifier of the strategy.
func (c ICIRWeight) Name() string { return CombinerICIRWeight }

// Window returns the trailing IC window.
func (c ICIRWeight) Window() int { return c.window }

// Combine implements Combiner.
func (c ICIRWeight) Combine(in CombineInput) ([][]float64, error) {
	weights := make([][]float64, len(in.FactorICs))
	for f, ic := range in.FactorICs {
		weights[f] = icirSeries(ic, c.window)
	}
	return combineWeighted(in, weights)
}

// combineWeighted produces, per security and date, sum(w_f * x_f) / sum(|w_f|)
// over the factors with both a defined value and a defined weight. When the
// absolute-weight mass at a date is zero (no IC history yet, or all weights
// cancel), the date falls back to the equal-weight average of defined values.
func combineWeighted(in CombineInput, weights [][]float64) ([][]float64, error) {
	if len(weights) != len(in.Factors) {
		return nil, fmt.Errorf("weight series count %d does not match factor count %d", len(weights), len(in.Factors))
	}

	numDates := len(in.Calendar)
	out := make([][]float64, len(in.Securities))

	for s := range in.Securities {
		combined := make([]float64, numDates)
		for t := 0; t < numDates; t++ {
			weighted := 0.0
			absMass := 0.0
			sum := 0.0
			count := 0
			for f := range in.Factors {
				v := in.Factors[f][s][t]
				if math.IsNaN(v) {
					continue
				}
				sum += v
				count++
				w := weights[f][t]
				if math.IsNaN(w) {
					continue
				}
				weighted += w * v
				absMass += math.Abs(w)
			}
			switch {
			case count == 0:
				combined[t] = math.NaN()
			case absMass > 0:
				combined[t] = weighted / absMass
			default:
				combined[t] = sum / float64(count)
			}
		}
		out[s] = combined
	}

	return out, nil
}
