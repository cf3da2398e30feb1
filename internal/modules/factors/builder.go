// Package factors builds the raw input factor series a multifactor engine
// consumes, from stored daily price history. Factor definitions (not the
// computed series) are what engine persistence stores; the series are always
// rebuilt from prices.
package factors

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/modules/multifactor"
)

// Factor kinds resolvable by the builder.
const (
	KindROC         = "roc"          // rate-of-change momentum over Period days
	KindRSI         = "rsi"          // relative strength index over Period days
	KindEMADistance = "ema_distance" // relative distance of close from its Period-day EMA
)

// Def identifies one input factor: a display name, the builder kind, and its
// lookback period.
type Def struct {
	Name   string `json:"name" msgpack:"name"`
	Kind   string `json:"kind" msgpack:"kind"`
	Period int    `json:"period" msgpack:"period"`
}

// Validate checks that the definition is buildable.
func (d Def) Validate() error {
	switch d.Kind {
	case KindROC, KindRSI, KindEMADistance:
	default:
		return fmt.Errorf("unknown factor kind %q", d.Kind)
	}
	if d.Period <= 0 {
		return fmt.Errorf("factor %q: period must be positive, got %d", d.Name, d.Period)
	}
	return nil
}

// Builder computes input factor series from close-price history.
type Builder struct {
	prices multifactor.PriceProvider
	log    zerolog.Logger
}

// NewBuilder creates a factor builder over the given price provider.
func NewBuilder(prices multifactor.PriceProvider, log zerolog.Logger) *Builder {
	return &Builder{
		prices: prices,
		log:    log.With().Str("component", "factor_builder").Logger(),
	}
}

// Build computes one input factor for every security in the universe.
// Securities without enough history get shorter (or empty) series; the
// engine's aligner turns the gaps into NaN positions.
func (b *Builder) Build(def Def, securities []string, q multifactor.Query) (multifactor.InputFactor, error) {
	if err := def.Validate(); err != nil {
		return multifactor.InputFactor{}, err
	}

	series := make(map[string]multifactor.Series, len(securities))
	for _, isin := range securities {
		closes, err := b.prices.CloseSeries(isin, q)
		if err != nil {
			return multifactor.InputFactor{}, fmt.Errorf("failed to load closes for %s: %w", isin, err)
		}
		if closes.Len() == 0 {
			continue
		}
		values := compute(def, closes.Values)
		series[isin] = multifactor.Series{Dates: closes.Dates, Values: values}
	}

	b.log.Debug().
		Str("factor", def.Name).
		Str("kind", def.Kind).
		Int("period", def.Period).
		Int("securities", len(series)).
		Msg("Built input factor")

	return multifactor.InputFactor{Name: def.Name, Series: series}, nil
}

// BuildAll computes every defined factor, preserving definition order.
func (b *Builder) BuildAll(defs []Def, securities []string, q multifactor.Query) ([]multifactor.InputFactor, error) {
	out := make([]multifactor.InputFactor, 0, len(defs))
	for _, def := range defs {
		input, err := b.Build(def, securities, q)
		if err != nil {
			return nil, err
		}
		out = append(out, input)
	}
	return out, nil
}

// compute runs the talib kernel for the definition and masks the warm-up
// region with NaN. go-talib fills warm-up positions with zeros, which would
// otherwise be indistinguishable from real values.
func compute(def Def, closes []float64) []float64 {
	var values []float64
	warmup := def.Period

	switch def.Kind {
	case KindROC:
		values = talib.Roc(closes, def.Period)
	case KindRSI:
		values = talib.Rsi(closes, def.Period)
	case KindEMADistance:
		ema := talib.Ema(closes, def.Period)
		values = make([]float64, len(closes))
		for i := range closes {
			if ema[i] != 0 {
				values[i] = (closes[i] - ema[i]) / ema[i]
			}
		}
		warmup = def.Period - 1
	}

	if warmup > len(values) {
		warmup = len(values)
	}
	for i := 0; i < warmup; i++ {
		values[i] = math.NaN()
	}

	return values
}
