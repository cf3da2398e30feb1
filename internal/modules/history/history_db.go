// Package history stores and serves daily price history (history.db). It is
// the returns provider behind the multifactor engine's forward-return
// diagnostics and the input to the raw factor builders.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/database"
	"github.com/petrakis/factorlab/internal/domain"
	"github.com/petrakis/factorlab/internal/modules/multifactor"
)

// Schema is the history.db schema, applied on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	isin   TEXT NOT NULL,
	date   TEXT NOT NULL,
	open   REAL NOT NULL,
	high   REAL NOT NULL,
	low    REAL NOT NULL,
	close  REAL NOT NULL,
	volume INTEGER,
	PRIMARY KEY (isin, date)
);
CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);
`

// Loader fetches daily bars from an external data source. The concrete feed
// client lives outside this system; the sync job only needs this boundary.
type Loader interface {
	// FetchDailyPrices returns bars for one security strictly after the
	// given date ("" means full history), dates ascending.
	FetchDailyPrices(isin string, since string) ([]domain.DailyPrice, error)
}

// Store provides read/write access to daily price history.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore creates a history store and applies the schema.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	if err := db.ApplySchema(Schema); err != nil {
		return nil, err
	}
	return &Store{
		db:  db.Conn(),
		log: log.With().Str("component", "history_db").Logger(),
	}, nil
}

// UpsertDailyPrices writes bars for one security, replacing existing rows on
// (isin, date) conflicts. The batch runs in a single transaction.
func (s *Store) UpsertDailyPrices(isin string, prices []domain.DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}

	return database.WithTransaction(s.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (isin, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(isin, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			var volume interface{}
			if p.Volume != nil {
				volume = *p.Volume
			}
			if _, err := stmt.Exec(isin, p.Date, p.Open, p.High, p.Low, p.Close, volume); err != nil {
				return fmt.Errorf("failed to upsert price %s/%s: %w", isin, p.Date, err)
			}
		}
		return nil
	})
}

// GetDailyPrices fetches bars for a security, dates ascending. limit <= 0
// means no limit; a positive limit keeps the most recent bars.
func (s *Store) GetDailyPrices(isin string, limit int) ([]domain.DailyPrice, error) {
	query := `
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE isin = ?
		ORDER BY date DESC
	`
	args := []interface{}{isin}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []domain.DailyPrice
	for rows.Next() {
		var p domain.DailyPrice
		var volume sql.NullInt64
		if err := rows.Scan(&p.Date, &p.Open, &p.High, &p.Low, &p.Close, &volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if volume.Valid {
			p.Volume = &volume.Int64
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	// Reverse to ascending date order
	for i, j := 0, len(prices)-1; i < j; i, j = i+1, j-1 {
		prices[i], prices[j] = prices[j], prices[i]
	}

	return prices, nil
}

// LatestDate returns the most recent stored date for a security, or "" when
// no bars exist. Used by the sync job to fetch incrementally.
func (s *Store) LatestDate(isin string) (string, error) {
	var date sql.NullString
	err := s.db.QueryRow(`SELECT MAX(date) FROM daily_prices WHERE isin = ?`, isin).Scan(&date)
	if err != nil {
		return "", fmt.Errorf("failed to query latest date: %w", err)
	}
	if !date.Valid {
		return "", nil
	}
	return date.String, nil
}

// CloseSeries returns a security's close prices inside the query range,
// dates ascending. Implements multifactor.PriceProvider. An unknown security
// yields an empty series, not an error: at this boundary there is no universe
// to validate against.
func (s *Store) CloseSeries(isin string, q multifactor.Query) (multifactor.Series, error) {
	query := `
		SELECT date, close
		FROM daily_prices
		WHERE isin = ?
	`
	args := []interface{}{isin}
	if q.Start != "" {
		query += " AND date >= ?"
		args = append(args, q.Start)
	}
	if q.End != "" {
		query += " AND date <= ?"
		args = append(args, q.End)
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return multifactor.Series{}, fmt.Errorf("failed to query close series: %w", err)
	}
	defer rows.Close()

	var series multifactor.Series
	for rows.Next() {
		var date string
		var close float64
		if err := rows.Scan(&date, &close); err != nil {
			return multifactor.Series{}, fmt.Errorf("failed to scan close price: %w", err)
		}
		series.Dates = append(series.Dates, date)
		series.Values = append(series.Values, close)
	}
	if err := rows.Err(); err != nil {
		return multifactor.Series{}, fmt.Errorf("error iterating close series: %w", err)
	}

	return series, nil
}
