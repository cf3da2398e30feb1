package factors

import (
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrakis/factorlab/internal/modules/multifactor"
)

type fixedProvider struct {
	series map[string]multifactor.Series
}

func (p *fixedProvider) CloseSeries(isin string, q multifactor.Query) (multifactor.Series, error) {
	return p.series[isin], nil
}

func dates(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("2024-01-%02d", i+1)
	}
	return out
}

func TestDefValidate(t *testing.T) {
	assert.NoError(t, Def{Name: "m", Kind: KindROC, Period: 10}.Validate())
	assert.NoError(t, Def{Name: "r", Kind: KindRSI, Period: 14}.Validate())
	assert.NoError(t, Def{Name: "e", Kind: KindEMADistance, Period: 20}.Validate())

	assert.Error(t, Def{Name: "x", Kind: "sma", Period: 10}.Validate())
	assert.Error(t, Def{Name: "x", Kind: KindROC, Period: 0}.Validate())
	assert.Error(t, Def{Name: "x", Kind: KindROC, Period: -5}.Validate())
}

func TestBuilder_ROCWithWarmupMasked(t *testing.T) {
	ds := dates(5)
	provider := &fixedProvider{series: map[string]multifactor.Series{
		"A": {Dates: ds, Values: []float64{100, 110, 121, 133.1, 146.41}},
	}}
	builder := NewBuilder(provider, zerolog.Nop())

	input, err := builder.Build(Def{Name: "mom2", Kind: KindROC, Period: 2}, []string{"A"}, multifactor.Query{})
	require.NoError(t, err)
	assert.Equal(t, "mom2", input.Name)

	s, ok := input.Series["A"]
	require.True(t, ok)
	require.Len(t, s.Values, 5)

	// Warm-up region holds NaN, not talib's zero-fill
	assert.True(t, math.IsNaN(s.Values[0]))
	assert.True(t, math.IsNaN(s.Values[1]))

	// 2-day rate of change: (121-100)/100 * 100
	assert.InDelta(t, 21.0, s.Values[2], 1e-9)
	assert.InDelta(t, 21.0, s.Values[3], 1e-6)
}

func TestBuilder_RSIBounds(t *testing.T) {
	ds := dates(20)
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i%5)
	}
	provider := &fixedProvider{series: map[string]multifactor.Series{
		"A": {Dates: ds, Values: closes},
	}}
	builder := NewBuilder(provider, zerolog.Nop())

	input, err := builder.Build(Def{Name: "rsi5", Kind: KindRSI, Period: 5}, []string{"A"}, multifactor.Query{})
	require.NoError(t, err)

	s := input.Series["A"]
	for i, v := range s.Values {
		if i < 5 {
			assert.True(t, math.IsNaN(v), "warm-up position %d", i)
			continue
		}
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestBuilder_EMADistanceIsRelative(t *testing.T) {
	ds := dates(10)
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100 // flat series: close sits exactly on its EMA
	}
	provider := &fixedProvider{series: map[string]multifactor.Series{
		"A": {Dates: ds, Values: closes},
	}}
	builder := NewBuilder(provider, zerolog.Nop())

	input, err := builder.Build(Def{Name: "ema3", Kind: KindEMADistance, Period: 3}, []string{"A"}, multifactor.Query{})
	require.NoError(t, err)

	s := input.Series["A"]
	assert.True(t, math.IsNaN(s.Values[0]))
	assert.True(t, math.IsNaN(s.Values[1]))
	for i := 2; i < len(s.Values); i++ {
		assert.InDelta(t, 0.0, s.Values[i], 1e-12, "position %d", i)
	}
}

func TestBuilder_SecurityWithoutHistoryIsOmitted(t *testing.T) {
	provider := &fixedProvider{series: map[string]multifactor.Series{
		"A": {Dates: dates(5), Values: []float64{1, 2, 3, 4, 5}},
	}}
	builder := NewBuilder(provider, zerolog.Nop())

	input, err := builder.Build(Def{Name: "mom2", Kind: KindROC, Period: 2}, []string{"A", "B"}, multifactor.Query{})
	require.NoError(t, err)

	_, ok := input.Series["A"]
	assert.True(t, ok)
	_, ok = input.Series["B"]
	assert.False(t, ok, "no history means no series, the aligner fills NaN")
}

func TestBuilder_BuildAllPreservesOrder(t *testing.T) {
	provider := &fixedProvider{series: map[string]multifactor.Series{
		"A": {Dates: dates(10), Values: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}},
	}}
	builder := NewBuilder(provider, zerolog.Nop())

	defs := []Def{
		{Name: "mom2", Kind: KindROC, Period: 2},
		{Name: "rsi3", Kind: KindRSI, Period: 3},
	}
	inputs, err := builder.BuildAll(defs, []string{"A"}, multifactor.Query{})
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "mom2", inputs[0].Name)
	assert.Equal(t, "rsi3", inputs[1].Name)
}

func TestBuilder_InvalidDefRejected(t *testing.T) {
	builder := NewBuilder(&fixedProvider{}, zerolog.Nop())

	_, err := builder.Build(Def{Name: "x", Kind: "nope", Period: 5}, []string{"A"}, multifactor.Query{})
	assert.Error(t, err)
}
