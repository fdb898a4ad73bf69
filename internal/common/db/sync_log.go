package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SyncRun is one completed station directory sync.
type SyncRun struct {
	RunID        int
	Network      string
	StationCount int
	FinishedAt   time.Time
}

// SyncLog records station syncs so a restart does not resync needlessly.
type SyncLog struct {
	db *DB
}

func NewSyncLog(db *DB) *SyncLog {
	return &SyncLog{db: db}
}

// LastSync returns the latest run for network, or nil when there is none.
func (sl *SyncLog) LastSync(ctx context.Context, network string) (*SyncRun, error) {
	query := `
		SELECT run_id, network, station_count, finished_at
		FROM moov.sync_runs
		WHERE network = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`

	var run SyncRun
	err := sl.db.conn.QueryRowContext(ctx, query, network).Scan(
		&run.RunID,
		&run.Network,
		&run.StationCount,
		&run.FinishedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		sl.db.logger.Info("No previous station sync found", "network", network)
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying last sync: %w", err)
	}

	return &run, nil
}

func (sl *SyncLog) RecordSync(ctx context.Context, network string, stationCount int, finishedAt time.Time) (int, error) {
	var runID int
	query := `
		INSERT INTO moov.sync_runs (network, station_count, finished_at)
		VALUES ($1, $2, $3)
		RETURNING run_id
	`

	err := sl.db.conn.QueryRowContext(ctx, query, network, stationCount, finishedAt).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("recording sync: %w", err)
	}

	sl.db.logger.Info("Recorded station sync",
		"run_id", runID,
		"network", network,
		"stations", stationCount)

	return runID, nil
}
