package stations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/db"
	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/internal/feed"
)

// SyncRecorder keeps the history of completed syncs.
type SyncRecorder interface {
	LastSync(ctx context.Context, network string) (*db.SyncRun, error)
	RecordSync(ctx context.Context, network string, stationCount int, finishedAt time.Time) (int, error)
}

// SyncLocker is held for the duration of a sync.
type SyncLocker interface {
	LockForSync()
	UnlockAfterSync()
}

type Scheduler struct {
	interval time.Duration
	maxAge   time.Duration
	syncer   *Syncer
	recorder SyncRecorder
	metadata feed.MetadataFetcher
	locker   SyncLocker
	clock    clock.Clock
	logger   logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewScheduler builds a scheduler checking for changes every interval.
// metadata and locker may be nil. Without metadata the scheduler syncs on
// every tick. A sync older than maxAge is redone even when no dataset
// changed, so last_seen stays ahead of pruning; zero disables the bound.
func NewScheduler(
	interval time.Duration,
	maxAge time.Duration,
	syncer *Syncer,
	recorder SyncRecorder,
	metadata feed.MetadataFetcher,
	locker SyncLocker,
	clk clock.Clock,
	log logger.Logger,
) *Scheduler {
	return &Scheduler{
		interval: interval,
		maxAge:   maxAge,
		syncer:   syncer,
		recorder: recorder,
		metadata: metadata,
		locker:   locker,
		clock:    clk,
		logger:   log.With("component", "station_scheduler"),
	}
}

// Start checks now and then every interval until ctx is done or Stop is
// called. It blocks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("Starting station scheduler",
		"network", s.syncer.Network(),
		"interval", s.interval,
		"max_age", s.maxAge,
		"metadata_check", s.metadata != nil)

	if err := s.checkAndSync(ctx, false); err != nil {
		s.logger.Error("Initial station sync failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Station scheduler stopped")
			return nil
		case <-ticker.C:
			// the last sync is always just under one interval old here
			if err := s.checkAndSync(ctx, s.metadata == nil); err != nil {
				s.logger.Error("Scheduled station sync failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler not running")
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.running = false
	return nil
}

// RunOnce syncs immediately, skipping every freshness check.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.checkAndSync(ctx, true)
}

func (s *Scheduler) checkAndSync(ctx context.Context, force bool) error {
	network := s.syncer.Network()

	if !force {
		needed, err := s.needsSync(ctx)
		if err != nil {
			return fmt.Errorf("checking last sync: %w", err)
		}
		if !needed {
			s.logger.Debug("Station directory is up to date, skipping sync", "network", network)
			return nil
		}
	}

	if s.locker != nil {
		s.locker.LockForSync()
		defer s.locker.UnlockAfterSync()
	}

	count, err := s.syncer.Sync(ctx)
	if err != nil {
		return fmt.Errorf("syncing stations: %w", err)
	}

	if _, err := s.recorder.RecordSync(ctx, network, count, s.clock.Now()); err != nil {
		return fmt.Errorf("recording sync: %w", err)
	}
	return nil
}

// needsSync is true when nothing was synced yet, when the last sync is older
// than maxAge, when a stop dataset changed since the last sync, or, if
// metadata cannot be read, when the last sync is older than the interval.
func (s *Scheduler) needsSync(ctx context.Context) (bool, error) {
	last, err := s.recorder.LastSync(ctx, s.syncer.Network())
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}

	age := s.clock.Now().Sub(last.FinishedAt)
	if s.maxAge > 0 && age >= s.maxAge {
		s.logger.Info("Last station sync is too old, refreshing",
			"last_sync", last.FinishedAt,
			"max_age", s.maxAge)
		return true, nil
	}

	if s.metadata != nil {
		changed, err := s.changedSince(ctx, last.FinishedAt)
		if err == nil {
			return changed, nil
		}
		s.logger.Warn("Dataset metadata unavailable, falling back to sync age", "error", err)
	}

	return age >= s.interval, nil
}

func (s *Scheduler) changedSince(ctx context.Context, since time.Time) (bool, error) {
	for _, dataset := range s.syncer.Datasets() {
		meta, err := s.metadata.FetchMetadata(ctx, dataset)
		if err != nil {
			return false, err
		}
		modified, err := clock.ParseFeedTimestamp(meta.Metas.Modified)
		if err != nil {
			return false, fmt.Errorf("dataset %s: %w", dataset, err)
		}
		if modified.After(since) {
			s.logger.Info("Stop dataset changed upstream",
				"dataset", dataset,
				"modified", modified,
				"last_sync", since)
			return true, nil
		}
	}
	return false, nil
}
