// Package universe manages the security universe (universe.db): the ordered
// set of instruments engines can be configured over.
package universe

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"

	"github.com/petrakis/factorlab/internal/database"
	"github.com/petrakis/factorlab/internal/domain"
)

// Schema is the universe.db schema, applied on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS securities (
	isin       TEXT PRIMARY KEY,
	symbol     TEXT NOT NULL,
	name       TEXT,
	currency   TEXT,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_securities_symbol ON securities(symbol);
`

// SecurityRepository handles security database operations.
type SecurityRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSecurityRepository creates a security repository and applies the schema.
func NewSecurityRepository(db *database.DB, log zerolog.Logger) (*SecurityRepository, error) {
	if err := db.ApplySchema(Schema); err != nil {
		return nil, err
	}
	return &SecurityRepository{
		db:  db.Conn(),
		log: log.With().Str("repo", "security").Logger(),
	}, nil
}

// Upsert inserts or updates a security keyed by ISIN.
func (r *SecurityRepository) Upsert(s domain.Security) error {
	_, err := r.db.Exec(`
		INSERT INTO securities (isin, symbol, name, currency, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(isin) DO UPDATE SET
			symbol = excluded.symbol,
			name = excluded.name,
			currency = excluded.currency,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, s.ISIN, strings.ToUpper(strings.TrimSpace(s.Symbol)), s.Name, s.Currency, boolToInt(s.Active))
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", s.ISIN, err)
	}
	return nil
}

// GetByISIN returns a security by ISIN, or nil when not found.
func (r *SecurityRepository) GetByISIN(isin string) (*domain.Security, error) {
	row := r.db.QueryRow(`
		SELECT isin, symbol, name, currency, active
		FROM securities
		WHERE isin = ?
	`, isin)

	s, err := scanSecurity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query security by isin: %w", err)
	}
	return s, nil
}

// List returns all securities ordered by ISIN. activeOnly restricts the
// result to active ones.
func (r *SecurityRepository) List(activeOnly bool) ([]domain.Security, error) {
	query := `
		SELECT isin, symbol, name, currency, active
		FROM securities
	`
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY isin"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []domain.Security
	for rows.Next() {
		s, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}

	return securities, nil
}

// Delete removes a security. Returns whether a row was deleted.
func (r *SecurityRepository) Delete(isin string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM securities WHERE isin = ?`, isin)
	if err != nil {
		return false, fmt.Errorf("failed to delete security %s: %w", isin, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Exists reports whether every given ISIN is present. The first missing ISIN
// is returned for error messages.
func (r *SecurityRepository) Exists(isins []string) (bool, string, error) {
	for _, isin := range isins {
		s, err := r.GetByISIN(isin)
		if err != nil {
			return false, isin, err
		}
		if s == nil {
			return false, isin, nil
		}
	}
	return true, "", nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSecurity(row rowScanner) (*domain.Security, error) {
	var s domain.Security
	var name, currency sql.NullString
	var active int
	if err := row.Scan(&s.ISIN, &s.Symbol, &name, &currency, &active); err != nil {
		return nil, err
	}
	s.Name = name.String
	s.Currency = currency.String
	s.Active = active != 0
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
