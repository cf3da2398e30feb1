package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/events"
	"github.com/petrakis/factorlab/internal/modules/factors"
	"github.com/petrakis/factorlab/internal/modules/multifactor"
)

// SecurityChecker validates that configured ISINs exist in the universe.
type SecurityChecker interface {
	Exists(isins []string) (bool, string, error)
}

// Service owns the live engine instances. Engines are built from stored
// configurations, calculate lazily on first access, and are replaced (not
// mutated) when a rebuild is requested.
type Service struct {
	repo           *Repository
	prices         multifactor.PriceProvider
	builder        *factors.Builder
	securities     SecurityChecker
	bus            *events.Bus
	defaultHorizon int
	log            zerolog.Logger

	mu      sync.RWMutex
	engines map[string]*multifactor.Engine
}

// NewService creates the engine registry service. defaultHorizon is the IC
// horizon applied to configurations that do not set one; values <= 0 leave
// the engine's own default in effect.
func NewService(repo *Repository, prices multifactor.PriceProvider, builder *factors.Builder, securities SecurityChecker, bus *events.Bus, defaultHorizon int, log zerolog.Logger) *Service {
	return &Service{
		repo:           repo,
		prices:         prices,
		builder:        builder,
		securities:     securities,
		bus:            bus,
		defaultHorizon: defaultHorizon,
		log:            log.With().Str("component", "engine_registry").Logger(),
	}
}

// LoadAll constructs engines for every stored configuration. Called on
// startup; individual failures are logged and skipped so one bad config
// cannot block the rest.
func (s *Service) LoadAll() error {
	configs, err := s.repo.List()
	if err != nil {
		return err
	}

	engines := make(map[string]*multifactor.Engine, len(configs))
	for _, cfg := range configs {
		engine, err := s.build(cfg)
		if err != nil {
			s.log.Error().Err(err).Str("engine", cfg.Name).Msg("Failed to build stored engine")
			continue
		}
		engines[cfg.Name] = engine
	}

	s.mu.Lock()
	s.engines = engines
	s.mu.Unlock()

	s.log.Info().Int("engines", len(engines)).Msg("Loaded engine configurations")
	return nil
}

// Create validates, persists and instantiates a new engine configuration.
func (s *Service) Create(cfg StoredConfig) (*multifactor.Engine, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("engine name is required")
	}
	for _, def := range cfg.Factors {
		if err := def.Validate(); err != nil {
			return nil, err
		}
	}
	if s.securities != nil {
		all := append(append([]string(nil), cfg.Securities...), cfg.Reference)
		ok, missing, err := s.securities.Exists(all)
		if err != nil {
			return nil, fmt.Errorf("failed to validate universe: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", multifactor.ErrUnknownSecurity, missing)
		}
	}

	engine, err := s.build(cfg)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.engines == nil {
		s.engines = make(map[string]*multifactor.Engine)
	}
	s.engines[cfg.Name] = engine
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.EngineRegistered, events.EngineChangedData{Engine: cfg.Name})
	}

	return engine, nil
}

// Get returns a live engine by name, or nil when unknown.
func (s *Service) Get(name string) *multifactor.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engines[name]
}

// List returns all stored configurations.
func (s *Service) List() ([]StoredConfig, error) {
	return s.repo.List()
}

// Delete removes an engine and its stored configuration.
func (s *Service) Delete(name string) (bool, error) {
	deleted, err := s.repo.Delete(name)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	delete(s.engines, name)
	s.mu.Unlock()

	if deleted && s.bus != nil {
		s.bus.Publish(events.EngineDeleted, events.EngineChangedData{Engine: name})
	}
	return deleted, nil
}

// Warm triggers an engine's lazy calculation and publishes lifecycle events
// around it. Safe to call on an already-calculated engine; the pipeline runs
// at most once per instance.
func (s *Service) Warm(name string) error {
	engine := s.Get(name)
	if engine == nil {
		return fmt.Errorf("unknown engine %q", name)
	}

	if s.bus != nil {
		s.bus.Publish(events.CalculationStarted, events.CalculationStartedData{Engine: name})
	}

	start := time.Now()
	_, err := engine.AllFactors()
	if s.bus != nil {
		data := events.CalculationFinishedData{
			Engine:     name,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if err != nil {
			data.Error = err.Error()
		}
		s.bus.Publish(events.CalculationFinished, data)
	}
	return err
}

// RebuildAll replaces every live engine with an uncalculated clone, forcing
// recomputation against current price history on next access. Calculated
// instances are never mutated; readers holding the old instance keep a
// consistent view.
func (s *Service) RebuildAll() int {
	s.mu.Lock()
	for name, engine := range s.engines {
		s.engines[name] = engine.Clone()
	}
	count := len(s.engines)
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.EnginesRebuilt, events.EnginesRebuiltData{Count: count})
	}

	s.log.Info().Int("engines", count).Msg("Rebuilt engines")
	return count
}

// build constructs an engine from a stored configuration: resolve the
// combiner, build the input factor series from price history, wire the
// price provider.
func (s *Service) build(cfg StoredConfig) (*multifactor.Engine, error) {
	combiner, err := multifactor.NewCombiner(cfg.Combiner, cfg.CombinerWindow)
	if err != nil {
		return nil, fmt.Errorf("engine %q: %w", cfg.Name, err)
	}

	query := multifactor.Query{Start: cfg.Start, End: cfg.End}
	inputs, err := s.builder.BuildAll(cfg.Factors, cfg.Securities, query)
	if err != nil {
		return nil, fmt.Errorf("engine %q: %w", cfg.Name, err)
	}

	horizon := cfg.ICHorizon
	if horizon <= 0 {
		horizon = s.defaultHorizon
	}

	return multifactor.NewEngine(multifactor.Config{
		Name:       cfg.Name,
		Securities: cfg.Securities,
		Reference:  cfg.Reference,
		Query:      query,
		ICHorizon:  horizon,
	}, inputs, combiner, s.prices, s.log)
}
