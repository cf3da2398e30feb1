package scheduler

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/events"
	"github.com/petrakis/factorlab/internal/modules/history"
	"github.com/petrakis/factorlab/internal/modules/multifactor/registry"
	"github.com/petrakis/factorlab/internal/modules/universe"
)

// PriceSyncJob fetches new daily bars for every active security through the
// configured loader and upserts them into the history store.
type PriceSyncJob struct {
	securities *universe.SecurityRepository
	store      *history.Store
	loader     history.Loader
	bus        *events.Bus
	log        zerolog.Logger
}

// NewPriceSyncJob creates a price sync job.
func NewPriceSyncJob(securities *universe.SecurityRepository, store *history.Store, loader history.Loader, bus *events.Bus, log zerolog.Logger) *PriceSyncJob {
	return &PriceSyncJob{
		securities: securities,
		store:      store,
		loader:     loader,
		bus:        bus,
		log:        log.With().Str("job", "price_sync").Logger(),
	}
}

// Name implements Job.
func (j *PriceSyncJob) Name() string { return "price_sync" }

// Run implements Job. Per-security failures are logged and skipped so one
// bad symbol cannot abort the whole sync.
func (j *PriceSyncJob) Run() error {
	runID := uuid.NewString()

	securities, err := j.securities.List(true)
	if err != nil {
		return fmt.Errorf("failed to list securities: %w", err)
	}

	synced := 0
	bars := 0
	for _, s := range securities {
		since, err := j.store.LatestDate(s.ISIN)
		if err != nil {
			j.log.Warn().Err(err).Str("isin", s.ISIN).Msg("Failed to read latest stored date")
			continue
		}

		prices, err := j.loader.FetchDailyPrices(s.ISIN, since)
		if err != nil {
			j.log.Warn().Err(err).Str("isin", s.ISIN).Msg("Failed to fetch prices")
			continue
		}
		if len(prices) == 0 {
			continue
		}

		if err := j.store.UpsertDailyPrices(s.ISIN, prices); err != nil {
			j.log.Warn().Err(err).Str("isin", s.ISIN).Msg("Failed to store prices")
			continue
		}
		synced++
		bars += len(prices)
	}

	j.log.Info().
		Str("run_id", runID).
		Int("securities", synced).
		Int("bars", bars).
		Msg("Price sync complete")

	if j.bus != nil && bars > 0 {
		j.bus.Publish(events.PricesSynced, events.PricesSyncedData{Securities: synced, Bars: bars})
	}

	return nil
}

// RebuildEnginesJob replaces every live engine with an uncalculated clone so
// the next access recomputes against freshly synced history.
type RebuildEnginesJob struct {
	service *registry.Service
	log     zerolog.Logger
}

// NewRebuildEnginesJob creates an engine rebuild job.
func NewRebuildEnginesJob(service *registry.Service, log zerolog.Logger) *RebuildEnginesJob {
	return &RebuildEnginesJob{
		service: service,
		log:     log.With().Str("job", "rebuild_engines").Logger(),
	}
}

// Name implements Job.
func (j *RebuildEnginesJob) Name() string { return "rebuild_engines" }

// Run implements Job.
func (j *RebuildEnginesJob) Run() error {
	count := j.service.RebuildAll()
	j.log.Info().Int("engines", count).Msg("Engine rebuild complete")
	return nil
}
