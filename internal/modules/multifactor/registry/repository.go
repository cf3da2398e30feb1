// Package registry persists named engine configurations and manages the live
// engine instances built from them. Only configuration is stored - securities,
// reference, query, horizon, combiner, input factor definitions. Derived state
// (calendars, factor tables, cross-sections, IC) is engine-instance-local and
// is always recomputed after reload.
package registry

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/petrakis/factorlab/internal/database"
	"github.com/petrakis/factorlab/internal/modules/factors"
)

// Schema is the factors.db schema, applied on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS engines (
	name       TEXT PRIMARY KEY,
	config     BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// StoredConfig is the persisted form of an engine: everything needed to
// reconstruct it from scratch, and nothing derived.
type StoredConfig struct {
	Name           string        `json:"name" msgpack:"name"`
	Securities     []string      `json:"securities" msgpack:"securities"`
	Reference      string        `json:"reference" msgpack:"reference"`
	Start          string        `json:"start" msgpack:"start"`
	End            string        `json:"end" msgpack:"end"`
	ICHorizon      int           `json:"ic_horizon" msgpack:"ic_horizon"`
	Combiner       string        `json:"combiner" msgpack:"combiner"`
	CombinerWindow int           `json:"combiner_window,omitempty" msgpack:"combiner_window"`
	Factors        []factors.Def `json:"factors" msgpack:"factors"`
}

// Repository stores engine configurations in factors.db as msgpack blobs.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an engine config repository and applies the schema.
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	if err := db.ApplySchema(Schema); err != nil {
		return nil, err
	}
	return &Repository{
		db:  db.Conn(),
		log: log.With().Str("repo", "engines").Logger(),
	}, nil
}

// Save inserts or updates an engine configuration keyed by name.
func (r *Repository) Save(cfg StoredConfig) error {
	blob, err := msgpack.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal engine config %s: %w", cfg.Name, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO engines (name, config, created_at, updated_at)
		VALUES (?, ?, strftime('%s','now'), strftime('%s','now'))
		ON CONFLICT(name) DO UPDATE SET
			config = excluded.config,
			updated_at = excluded.updated_at
	`, cfg.Name, blob)
	if err != nil {
		return fmt.Errorf("failed to save engine config %s: %w", cfg.Name, err)
	}
	return nil
}

// Get returns one engine configuration, or nil when not found.
func (r *Repository) Get(name string) (*StoredConfig, error) {
	var blob []byte
	err := r.db.QueryRow(`SELECT config FROM engines WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query engine config %s: %w", name, err)
	}

	var cfg StoredConfig
	if err := msgpack.Unmarshal(blob, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal engine config %s: %w", name, err)
	}
	return &cfg, nil
}

// List returns all stored configurations ordered by name.
func (r *Repository) List() ([]StoredConfig, error) {
	rows, err := r.db.Query(`SELECT config FROM engines ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query engine configs: %w", err)
	}
	defer rows.Close()

	var configs []StoredConfig
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("failed to scan engine config: %w", err)
		}
		var cfg StoredConfig
		if err := msgpack.Unmarshal(blob, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal engine config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engine configs: %w", err)
	}

	return configs, nil
}

// Delete removes an engine configuration. Returns whether a row was deleted.
func (r *Repository) Delete(name string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM engines WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete engine config %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
