// Package worker runs the dashboard's background loops.
package worker

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/hyperengineering/opsdash/internal/sync"
)

// Syncer runs a sync for one user.
type Syncer interface {
	Sync(ctx context.Context, userID string, direction sync.Direction) (*sync.Report, error)
}

// SyncCoordinator syncs both directions on an interval and pushes as soon
// as a local change is signalled through Notify.
type SyncCoordinator struct {
	syncer   Syncer
	userID   string
	interval time.Duration
	changed  chan struct{}

	mu   gosync.Mutex
	last *sync.Report
}

// NewSyncCoordinator creates a coordinator syncing userID every interval.
func NewSyncCoordinator(syncer Syncer, userID string, interval time.Duration) *SyncCoordinator {
	return &SyncCoordinator{
		syncer:   syncer,
		userID:   userID,
		interval: interval,
		changed:  make(chan struct{}, 1),
	}
}

// Notify schedules a push. It never blocks; signals arriving while a push is
// pending collapse into one.
func (c *SyncCoordinator) Notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// LastReport returns the most recent sync report, or nil before the first run.
func (c *SyncCoordinator) LastReport() *sync.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Run starts the coordinator loop.
func (c *SyncCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "worker_started",
		"user_id", c.userID,
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Sync immediately on start
	c.run(ctx, sync.DirectionBoth)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "sync-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.run(ctx, sync.DirectionBoth)
		case <-c.changed:
			c.run(ctx, sync.DirectionPush)
		}
	}
}

func (c *SyncCoordinator) run(ctx context.Context, direction sync.Direction) {
	report, err := c.syncer.Sync(ctx, c.userID, direction)
	if err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		slog.Warn("sync cycle failed",
			"component", "worker",
			"worker", "sync-coordinator",
			"action", "sync_failed",
			"direction", string(direction),
			"error", err,
		)
		return
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	slog.Info("sync cycle completed",
		"component", "worker",
		"worker", "sync-coordinator",
		"action", "cycle_complete",
		"direction", string(direction),
		"collections", len(report.Results),
		"failed", report.Failed(),
	)
}
