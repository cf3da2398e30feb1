package multifactor

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DefaultICHorizon is the forward-return horizon used when an engine is
// configured without one.
const DefaultICHorizon = 1

// PriceProvider supplies close-price history. The engine uses it to derive
// the reference calendar from the reference security and to compute
// per-security forward returns.
type PriceProvider interface {
	// CloseSeries returns a security's close prices inside the query range,
	// dates ascending. An unknown security yields an empty series.
	CloseSeries(isin string, q Query) (Series, error)
}

// Config is the full construction-time configuration of an engine. It is the
// only state that survives persistence and cloning; everything derived is
// engine-instance-local.
type Config struct {
	Name       string
	Securities []string // ordered universe; factor table order follows it
	Reference  string   // reference security the calendar is derived from
	Query      Query
	ICHorizon  int // default forward-return horizon; <= 0 means DefaultICHorizon
}

// Engine synthesizes a composite factor per security and serves cross-
// sectional views and quality diagnostics over it.
//
// The full pipeline (align, combine, index, IC) runs exactly once, triggered
// lazily by the first accessor. Concurrent first accessors block until the
// pipeline finishes; after that all derived state is immutable and read
// without synchronization. A pipeline failure leaves the engine uncalculated
// and any accessor may retry it.
type Engine struct {
	cfg      Config
	inputs   []InputFactor
	combiner Combiner
	prices   PriceProvider
	log      zerolog.Logger

	mu         sync.Mutex
	calculated atomic.Bool
	state      *derivedState
}

// derivedState is everything the pipeline produces. It is published exactly
// once and never mutated afterwards.
type derivedState struct {
	calendar  []string
	index     *crossIndex
	factors   [][]float64 // [security][date], universe order
	closes    [][]float64 // [security][date] aligned close prices
	icDefault []float64   // IC at the configured default horizon
}

// NewEngine creates an uncalculated engine. The combiner defaults to
// EqualWeight and the IC horizon to DefaultICHorizon when unset.
func NewEngine(cfg Config, inputs []InputFactor, combiner Combiner, prices PriceProvider, log zerolog.Logger) (*Engine, error) {
	if len(cfg.Securities) == 0 {
		return nil, fmt.Errorf("engine %q: empty security universe", cfg.Name)
	}
	if cfg.Reference == "" {
		return nil, fmt.Errorf("engine %q: no reference security", cfg.Name)
	}
	if prices == nil {
		return nil, fmt.Errorf("engine %q: no price provider", cfg.Name)
	}
	if cfg.ICHorizon <= 0 {
		cfg.ICHorizon = DefaultICHorizon
	}
	if combiner == nil {
		combiner = EqualWeight{}
	}

	return &Engine{
		cfg:      cfg,
		inputs:   inputs,
		combiner: combiner,
		prices:   prices,
		log:      log.With().Str("component", "multifactor").Str("engine", cfg.Name).Logger(),
	}, nil
}

// Name returns the engine name.
func (e *Engine) Name() string {
	return e.cfg.Name
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Securities = append([]string(nil), e.cfg.Securities...)
	return cfg
}

// Combiner returns the combination strategy.
func (e *Engine) Combiner() Combiner {
	return e.combiner
}

// Clone produces a new uncalculated engine sharing only the configuration
// inputs. Derived state never propagates: the clone recomputes from scratch
// on first access.
func (e *Engine) Clone() *Engine {
	return &Engine{
		cfg:      e.cfg,
		inputs:   e.inputs,
		combiner: e.combiner,
		prices:   e.prices,
		log:      e.log,
	}
}

// Calendar returns the reference calendar, triggering calculation if needed.
func (e *Engine) Calendar() ([]string, error) {
	st, err := e.ensureCalculated()
	if err != nil {
		return nil, err
	}
	return st.calendar, nil
}

// Factor returns the combined factor series for one security, aligned to the
// reference calendar. A security outside the universe is a hard failure.
func (e *Engine) Factor(isin string) (Series, error) {
	st, err := e.ensureCalculated()
	if err != nil {
		return Series{}, err
	}
	pos, ok := st.index.secIndex[isin]
	if !ok {
		return Series{}, fmt.Errorf("%w: %s", ErrUnknownSecurity, isin)
	}
	return Series{Dates: st.calendar, Values: st.factors[pos]}, nil
}

// AllFactors returns every combined factor series in universe order.
func (e *Engine) AllFactors() ([]Series, error) {
	st, err := e.ensureCalculated()
	if err != nil {
		return nil, err
	}
	out := make([]Series, len(st.factors))
	for i, values := range st.factors {
		out[i] = Series{Dates: st.calendar, Values: values}
	}
	return out, nil
}

// Cross returns the cross-section for one reference date, sorted descending
// by value with ties in universe order. A date outside the calendar is a
// hard failure; a known date with no defined values yields an empty section.
func (e *Engine) Cross(date string) ([]CrossItem, error) {
	st, err := e.ensureCalculated()
	if err != nil {
		return nil, err
	}
	pos, ok := st.index.dateIndex[date]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDate, date)
	}
	return st.index.cross[pos], nil
}

// AllCross returns every cross-section in calendar order.
func (e *Engine) AllCross() ([][]CrossItem, error) {
	st, err := e.ensureCalculated()
	if err != nil {
		return nil, err
	}
	return st.index.cross, nil
}

// IC returns the Information Coefficient series of the combined factor for
// the given forward-return horizon. Horizon 0 is the documented sentinel for
// "use the engine's configured default"; a literal zero-day horizon is never
// computed. Dates without sufficient forward data hold NaN.
func (e *Engine) IC(ndays int) (Series, error) {
	if ndays < 0 {
		return Series{}, fmt.Errorf("%w: %d", ErrInvalidHorizon, ndays)
	}
	st, err := e.ensureCalculated()
	if err != nil {
		return Series{}, err
	}
	if ndays == 0 || ndays == e.cfg.ICHorizon {
		return Series{Dates: st.calendar, Values: st.icDefault}, nil
	}
	// Non-default horizons are derived on demand from the immutable state;
	// the computation is pure, so repeated calls stay bit-identical.
	fwd := forwardReturns(st.closes, ndays)
	ic := icSeries(st.factors, fwd, len(st.calendar))
	return Series{Dates: st.calendar, Values: ic}, nil
}

// ICIR returns the rolling information ratio of the IC series: mean/stddev
// over a trailing window of irN defined IC values. icN follows the same
// zero-sentinel rule as IC. Incomplete and zero-variance windows hold NaN.
func (e *Engine) ICIR(irN, icN int) (Series, error) {
	if irN <= 0 {
		return Series{}, fmt.Errorf("%w: %d", ErrInvalidWindow, irN)
	}
	ic, err := e.IC(icN)
	if err != nil {
		return Series{}, err
	}
	return Series{Dates: ic.Dates, Values: icirSeries(ic.Values, irN)}, nil
}

// ensureCalculated runs the pipeline exactly once. The calculated flag is
// only set after the state pointer is fully published, so the lock-free fast
// path can never observe torn state. On error nothing is published and the
// next accessor retries.
func (e *Engine) ensureCalculated() (*derivedState, error) {
	if e.calculated.Load() {
		return e.state, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.calculated.Load() {
		return e.state, nil
	}

	st, err := e.calculate()
	if err != nil {
		e.log.Error().Err(err).Msg("Factor pipeline failed")
		return nil, err
	}

	e.state = st
	e.calculated.Store(true)
	return st, nil
}

// calculate runs the full pipeline: calendar, alignment, combination,
// cross-section index, default-horizon IC.
func (e *Engine) calculate() (*derivedState, error) {
	refCloses, err := e.prices.CloseSeries(e.cfg.Reference, e.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference series %s: %w", e.cfg.Reference, err)
	}

	calendar := buildCalendar(refCloses.Dates, e.cfg.Query)
	if len(calendar) == 0 {
		return nil, fmt.Errorf("%w: reference %s in [%s, %s]", ErrEmptyCalendar, e.cfg.Reference, e.cfg.Query.Start, e.cfg.Query.End)
	}

	closes := make([][]float64, len(e.cfg.Securities))
	for i, isin := range e.cfg.Securities {
		s, err := e.prices.CloseSeries(isin, e.cfg.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to load close series %s: %w", isin, err)
		}
		closes[i] = alignToCalendar(calendar, s)
	}

	aligned := alignInputs(calendar, e.cfg.Securities, e.inputs)
	fwd := forwardReturns(closes, e.cfg.ICHorizon)

	factorICs := make([][]float64, len(aligned))
	for f, table := range aligned {
		factorICs[f] = icSeries(table, fwd, len(calendar))
	}

	combined, err := e.combiner.Combine(CombineInput{
		Calendar:   calendar,
		Securities: e.cfg.Securities,
		Factors:    aligned,
		FactorICs:  factorICs,
	})
	if err != nil {
		return nil, fmt.Errorf("combiner %s failed: %w", e.combiner.Name(), err)
	}
	if len(combined) != len(e.cfg.Securities) {
		return nil, fmt.Errorf("combiner %s returned %d series for %d securities", e.combiner.Name(), len(combined), len(e.cfg.Securities))
	}
	for i, series := range combined {
		if len(series) != len(calendar) {
			return nil, fmt.Errorf("combiner %s: series %d has %d values for %d calendar dates", e.combiner.Name(), i, len(series), len(calendar))
		}
	}

	st := &derivedState{
		calendar:  calendar,
		index:     buildIndex(calendar, e.cfg.Securities, combined),
		factors:   combined,
		closes:    closes,
		icDefault: icSeries(combined, fwd, len(calendar)),
	}

	e.log.Debug().
		Int("securities", len(e.cfg.Securities)).
		Int("dates", len(calendar)).
		Int("input_factors", len(e.inputs)).
		Str("combiner", e.combiner.Name()).
		Msg("Factor pipeline complete")

	return st, nil
}
