package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrakis/factorlab/internal/database"
	"github.com/petrakis/factorlab/internal/domain"
	"github.com/petrakis/factorlab/internal/events"
	"github.com/petrakis/factorlab/internal/modules/history"
	"github.com/petrakis/factorlab/internal/modules/universe"
)

// fakeLoader returns canned bars and records the since argument per ISIN.
type fakeLoader struct {
	bars  map[string][]domain.DailyPrice
	since map[string]string
	fail  map[string]bool
}

func (l *fakeLoader) FetchDailyPrices(isin string, since string) ([]domain.DailyPrice, error) {
	if l.since == nil {
		l.since = map[string]string{}
	}
	l.since[isin] = since
	if l.fail[isin] {
		return nil, errors.New("feed unavailable")
	}
	return l.bars[isin], nil
}

func newSyncFixture(t *testing.T) (*universe.SecurityRepository, *history.Store) {
	t.Helper()

	dir := t.TempDir()

	universeDB, err := database.New(database.Config{Path: filepath.Join(dir, "universe.db"), Name: "universe"})
	require.NoError(t, err)
	t.Cleanup(func() { universeDB.Close() })

	historyDB, err := database.New(database.Config{Path: filepath.Join(dir, "history.db"), Name: "history"})
	require.NoError(t, err)
	t.Cleanup(func() { historyDB.Close() })

	repo, err := universe.NewSecurityRepository(universeDB, zerolog.Nop())
	require.NoError(t, err)
	store, err := history.NewStore(historyDB, zerolog.Nop())
	require.NoError(t, err)

	return repo, store
}

func TestPriceSyncJob_SyncsActiveSecurities(t *testing.T) {
	repo, store := newSyncFixture(t)

	require.NoError(t, repo.Upsert(domain.Security{ISIN: "A1", Symbol: "A", Active: true}))
	require.NoError(t, repo.Upsert(domain.Security{ISIN: "B1", Symbol: "B", Active: true}))
	require.NoError(t, repo.Upsert(domain.Security{ISIN: "C1", Symbol: "C", Active: false}))

	loader := &fakeLoader{bars: map[string][]domain.DailyPrice{
		"A1": {{Date: "2024-01-02", Open: 1, High: 1, Low: 1, Close: 1}},
		"B1": {{Date: "2024-01-02", Open: 2, High: 2, Low: 2, Close: 2}},
		"C1": {{Date: "2024-01-02", Open: 3, High: 3, Low: 3, Close: 3}},
	}}

	bus := events.NewBus(zerolog.Nop())
	ch, cancel := bus.Subscribe()
	defer cancel()

	job := NewPriceSyncJob(repo, store, loader, bus, zerolog.Nop())
	assert.Equal(t, "price_sync", job.Name())
	require.NoError(t, job.Run())

	// Inactive securities are not synced
	_, fetched := loader.since["C1"]
	assert.False(t, fetched)

	stored, err := store.GetDailyPrices("A1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	select {
	case e := <-ch:
		assert.Equal(t, events.PricesSynced, e.Type)
		data, ok := e.Data.(events.PricesSyncedData)
		require.True(t, ok)
		assert.Equal(t, 2, data.Securities)
		assert.Equal(t, 2, data.Bars)
	case <-time.After(time.Second):
		t.Fatal("expected a prices_synced event")
	}
}

func TestPriceSyncJob_IncrementalSince(t *testing.T) {
	repo, store := newSyncFixture(t)

	require.NoError(t, repo.Upsert(domain.Security{ISIN: "A1", Symbol: "A", Active: true}))
	require.NoError(t, store.UpsertDailyPrices("A1", []domain.DailyPrice{
		{Date: "2024-01-05", Open: 1, High: 1, Low: 1, Close: 1},
	}))

	loader := &fakeLoader{}
	job := NewPriceSyncJob(repo, store, loader, nil, zerolog.Nop())
	require.NoError(t, job.Run())

	assert.Equal(t, "2024-01-05", loader.since["A1"], "fetch resumes after the latest stored date")
}

func TestPriceSyncJob_FailuresAreSkippedNotFatal(t *testing.T) {
	repo, store := newSyncFixture(t)

	require.NoError(t, repo.Upsert(domain.Security{ISIN: "A1", Symbol: "A", Active: true}))
	require.NoError(t, repo.Upsert(domain.Security{ISIN: "B1", Symbol: "B", Active: true}))

	loader := &fakeLoader{
		fail: map[string]bool{"A1": true},
		bars: map[string][]domain.DailyPrice{
			"B1": {{Date: "2024-01-02", Open: 2, High: 2, Low: 2, Close: 2}},
		},
	}

	job := NewPriceSyncJob(repo, store, loader, nil, zerolog.Nop())
	require.NoError(t, job.Run(), "a failing security must not abort the sync")

	stored, err := store.GetDailyPrices("B1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestScheduler_RunNow(t *testing.T) {
	repo, store := newSyncFixture(t)
	require.NoError(t, repo.Upsert(domain.Security{ISIN: "A1", Symbol: "A", Active: true}))

	loader := &fakeLoader{bars: map[string][]domain.DailyPrice{
		"A1": {{Date: "2024-01-02", Open: 1, High: 1, Low: 1, Close: 1}},
	}}
	job := NewPriceSyncJob(repo, store, loader, nil, zerolog.Nop())

	s := New(zerolog.Nop())
	require.NoError(t, s.RunNow(job))

	stored, err := store.GetDailyPrices("A1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestScheduler_AddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	loader := &fakeLoader{}
	job := NewPriceSyncJob(nil, nil, loader, nil, zerolog.Nop())

	assert.Error(t, s.AddJob("not a schedule", job))
	assert.NoError(t, s.AddJob("0 0 2 * * *", job))
}
