package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moov-data/internal/clock"
	"github.com/moov-data/internal/common/db"
	"github.com/moov-data/internal/common/logger"
)

// ErrSyncInProgress is returned by TriggerCleanup while a station sync holds
// the lock.
var ErrSyncInProgress = errors.New("station sync in progress")

type pruner interface {
	PruneStaleStations(ctx context.Context, network string, cutoff time.Time, keepRuns int) (PruneResult, error)
}

// CleanupScheduler periodically prunes stations that dropped out of the feed
type CleanupScheduler struct {
	pruner   pruner
	logger   logger.Logger
	clock    clock.Clock
	config   SchedulerConfig
	mu       sync.RWMutex
	running  bool
	cancelFn context.CancelFunc

	syncMu           sync.Mutex
	isSyncInProgress bool
}

type SchedulerConfig struct {
	Network      string
	Interval     time.Duration // How often to prune
	InitialDelay time.Duration // Delay before the first pass, leaving room for the startup sync
	RetainFor    time.Duration // Stations unseen for longer are deleted
	KeepSyncRuns int           // Sync log entries kept per network
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Network:      "Star",
		Interval:     24 * time.Hour,
		InitialDelay: 5 * time.Minute,
		RetainFor:    7 * 24 * time.Hour,
		KeepSyncRuns: 30,
	}
}

func NewCleanupScheduler(database *db.DB, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return newCleanupScheduler(New(database, logger), clock.Paris(), logger, config)
}

func newCleanupScheduler(p pruner, clk clock.Clock, logger logger.Logger, config SchedulerConfig) *CleanupScheduler {
	return &CleanupScheduler{
		pruner: p,
		logger: logger.With("component", "cleanup_scheduler"),
		clock:  clk,
		config: config,
	}
}

// Start launches the cleanup loop in the background.
func (s *CleanupScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cleanup scheduler is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.running = true

	s.logger.Info("Starting cleanup scheduler",
		"interval", s.config.Interval,
		"retain_for", s.config.RetainFor,
		"network", s.config.Network)

	go s.cleanupLoop(ctx)

	return nil
}

func (s *CleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	if s.cancelFn != nil {
		s.cancelFn()
	}

	s.running = false
	s.logger.Info("Cleanup scheduler stopped")
}

func (s *CleanupScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// LockForSync prevents pruning while a station sync rewrites last_seen.
func (s *CleanupScheduler) LockForSync() {
	s.syncMu.Lock()
	s.isSyncInProgress = true
	s.syncMu.Unlock()
	s.logger.Debug("Cleanup locked for station sync")
}

func (s *CleanupScheduler) UnlockAfterSync() {
	s.syncMu.Lock()
	s.isSyncInProgress = false
	s.syncMu.Unlock()
	s.logger.Debug("Cleanup unlocked after station sync")
}

func (s *CleanupScheduler) canPerformCleanup() bool {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	return !s.isSyncInProgress
}

func (s *CleanupScheduler) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	initialDelay := time.NewTimer(s.config.InitialDelay)
	defer initialDelay.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Cleanup loop stopping")
			return

		case <-initialDelay.C:
			s.performCleanup(ctx)

		case <-ticker.C:
			s.performCleanup(ctx)
		}
	}
}

func (s *CleanupScheduler) performCleanup(ctx context.Context) {
	if err := s.TriggerCleanup(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.logger.Debug("Skipping cleanup - station sync in progress")
			return
		}
		s.logger.Error("Station cleanup failed", "error", err)
	}
}

// TriggerCleanup runs one pruning pass now.
func (s *CleanupScheduler) TriggerCleanup(ctx context.Context) error {
	if !s.canPerformCleanup() {
		return ErrSyncInProgress
	}

	cutoff := s.clock.Now().Add(-s.config.RetainFor)
	start := time.Now()
	result, err := s.pruner.PruneStaleStations(ctx, s.config.Network, cutoff, s.config.KeepSyncRuns)
	if err != nil {
		return fmt.Errorf("pruning stations: %w", err)
	}

	s.logger.Info("Station cleanup completed",
		"duration", time.Since(start),
		"stations_deleted", result.StationsDeleted)
	return nil
}

func (s *CleanupScheduler) GetStatus() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"is_running":          s.running,
		"is_sync_in_progress": !s.canPerformCleanup(),
		"interval":            s.config.Interval.String(),
		"retain_for":          s.config.RetainFor.String(),
		"keep_sync_runs":      s.config.KeepSyncRuns,
		"network":             s.config.Network,
	}
}
