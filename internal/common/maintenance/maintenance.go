package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/moov-data/internal/common/db"
	"github.com/moov-data/internal/common/logger"
)

// PruneResult is the outcome of one pruning pass.
type PruneResult struct {
	Network         string
	StationsDeleted int64
	RunsDeleted     int64
}

// Maintenance handles database cleanup of the station directory
type Maintenance struct {
	db     *db.DB
	logger logger.Logger
}

func New(database *db.DB, logger logger.Logger) *Maintenance {
	return &Maintenance{
		db:     database,
		logger: logger,
	}
}

// PruneStaleStations removes stations of network not seen by a sync since
// cutoff, and sync log entries beyond the keepRuns most recent ones.
func (m *Maintenance) PruneStaleStations(ctx context.Context, network string, cutoff time.Time, keepRuns int) (PruneResult, error) {
	result := PruneResult{Network: network}

	m.logger.Info("Pruning stale stations", "network", network, "cutoff", cutoff, "keep_runs", keepRuns)

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return result, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM moov.stations WHERE network = $1 AND last_seen < $2`,
		network, cutoff)
	if err != nil {
		return result, fmt.Errorf("deleting stale stations: %w", err)
	}
	if result.StationsDeleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("getting rows affected: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM moov.sync_runs
		WHERE network = $1 AND run_id NOT IN (
			SELECT run_id FROM moov.sync_runs
			WHERE network = $1
			ORDER BY finished_at DESC
			LIMIT $2
		)`, network, keepRuns)
	if err != nil {
		return result, fmt.Errorf("deleting old sync runs: %w", err)
	}
	if result.RunsDeleted, err = res.RowsAffected(); err != nil {
		return result, fmt.Errorf("getting rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("committing transaction: %w", err)
	}

	m.logger.Info("Pruned station directory",
		"network", network,
		"stations_deleted", result.StationsDeleted,
		"runs_deleted", result.RunsDeleted)

	// VACUUM cannot run inside the transaction above
	if result.StationsDeleted > 0 {
		if err := m.VacuumStationTables(ctx); err != nil {
			m.logger.Warn("Failed to vacuum station tables after pruning", "error", err)
		}
	}

	return result, nil
}

// VacuumStationTables runs VACUUM ANALYZE on the station tables (must be called outside transaction)
func (m *Maintenance) VacuumStationTables(ctx context.Context) error {
	for _, table := range []string{"moov.stations", "moov.sync_runs"} {
		start := time.Now()
		if _, err := m.db.DB().ExecContext(ctx, "VACUUM ANALYZE "+table); err != nil {
			return fmt.Errorf("vacuuming %s: %w", table, err)
		}
		m.logger.Debug("Vacuumed table", "table", table, "duration", time.Since(start))
	}
	return nil
}
