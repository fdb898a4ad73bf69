package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/moov-data/internal/common/logger"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS moov;

CREATE TABLE IF NOT EXISTS moov.stations (
	name      TEXT        NOT NULL,
	network   TEXT        NOT NULL,
	modes     TEXT[]      NOT NULL DEFAULT '{}',
	last_seen TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (name, network)
);

CREATE INDEX IF NOT EXISTS stations_name_prefix_idx
	ON moov.stations (lower(name) text_pattern_ops);

CREATE TABLE IF NOT EXISTS moov.sync_runs (
	run_id        SERIAL      PRIMARY KEY,
	network       TEXT        NOT NULL,
	station_count INTEGER     NOT NULL,
	finished_at   TIMESTAMPTZ NOT NULL
);
`

type DB struct {
	conn   *sql.DB
	logger logger.Logger
}

func New(connStr string, logger logger.Logger) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established")

	return &DB{
		conn:   conn,
		logger: logger,
	}, nil
}

// EnsureSchema creates the station tables when they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// DB returns the underlying connection pool
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Logger returns the logger instance
func (db *DB) Logger() logger.Logger {
	return db.logger
}
