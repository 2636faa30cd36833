// Package background runs the periodic maintenance tasks.
package background

import (
	"context"
	"log/slog"
	"time"
)

// Purgeable is a component holding time-bounded in-memory state: pending link
// codes, registration counters. PurgeExpired evicts everything past its
// lifetime and returns the number of evicted entries.
type Purgeable interface {
	Name() string
	PurgeExpired(now time.Time) int
}

// PurgeManager periodically sweeps expired entries from the registered caches
type PurgeManager struct {
	targets  []Purgeable
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewPurgeManager creates a new purge manager
func NewPurgeManager(logger *slog.Logger, interval time.Duration, targets ...Purgeable) *PurgeManager {
	return &PurgeManager{
		targets:  targets,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic purge task
func (pm *PurgeManager) Start(ctx context.Context) {
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.runPurge()
		case <-pm.stopCh:
			pm.logger.Info("purge manager stopped")
			return
		case <-ctx.Done():
			pm.logger.Info("purge manager context cancelled")
			return
		}
	}
}

// runPurge sweeps every registered cache once
func (pm *PurgeManager) runPurge() {
	now := time.Now()
	for _, target := range pm.targets {
		purged := target.PurgeExpired(now)
		if purged > 0 {
			pm.logger.Info("expired entries purged",
				slog.String("target", target.Name()),
				slog.Int("entries", purged))
		}
	}
}

// Stop signals the purge manager to stop
func (pm *PurgeManager) Stop() {
	close(pm.stopCh)
}
