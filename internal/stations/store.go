package stations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"github.com/moov-data/internal/common/db"
	"github.com/moov-data/internal/common/logger"
)

const defaultSearchLimit = 10

// ErrNotFound is returned by Get when no station matches.
var ErrNotFound = errors.New("station not found")

var validate = validator.New()

// Station is one stop name of a network and the modes serving it.
type Station struct {
	Name     string    `json:"name" validate:"required"`
	Network  string    `json:"network" validate:"required"`
	Modes    []string  `json:"modes" validate:"dive,oneof=bus metro"`
	LastSeen time.Time `json:"last_seen"`
}

// Store persists the station directory in Postgres.
type Store struct {
	db     *db.DB
	logger logger.Logger
}

func NewStore(database *db.DB, log logger.Logger) *Store {
	return &Store{
		db:     database,
		logger: log.With("component", "station_store"),
	}
}

// Upsert writes all stations in a single transaction. Existing rows get their
// modes and last_seen replaced.
func (s *Store) Upsert(ctx context.Context, stations []Station) error {
	for i := range stations {
		if err := validate.Struct(stations[i]); err != nil {
			return fmt.Errorf("validating station %q: %w", stations[i].Name, err)
		}
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO moov.stations (name, network, modes, last_seen)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, network)
		DO UPDATE SET modes = EXCLUDED.modes, last_seen = EXCLUDED.last_seen
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, st := range stations {
		if _, err := stmt.ExecContext(ctx, st.Name, st.Network, pq.Array(st.Modes), st.LastSeen); err != nil {
			return fmt.Errorf("upserting station %q: %w", st.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Info("Upserted stations", "count", len(stations))
	return nil
}

// Search returns the stations of network whose name starts with prefix,
// case-insensitively, in name order.
func (s *Store) Search(ctx context.Context, network, prefix string, limit int) ([]Station, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT name, network, modes, last_seen
		FROM moov.stations
		WHERE network = $1
		  AND lower(name) LIKE lower($2) || '%' ESCAPE '\'
		ORDER BY name
		LIMIT $3
	`, network, escapeLike(prefix), limit)
	if err != nil {
		return nil, fmt.Errorf("searching stations: %w", err)
	}
	defer rows.Close()

	result := []Station{}
	for rows.Next() {
		var st Station
		if err := rows.Scan(&st.Name, &st.Network, pq.Array(&st.Modes), &st.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning station: %w", err)
		}
		result = append(result, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stations: %w", err)
	}

	return result, nil
}

func (s *Store) Get(ctx context.Context, name, network string) (*Station, error) {
	var st Station
	err := s.db.DB().QueryRowContext(ctx, `
		SELECT name, network, modes, last_seen
		FROM moov.stations
		WHERE name = $1 AND network = $2
	`, name, network).Scan(&st.Name, &st.Network, pq.Array(&st.Modes), &st.LastSeen)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", network, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting station: %w", err)
	}
	return &st, nil
}

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
