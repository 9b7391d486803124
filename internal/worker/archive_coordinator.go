package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/opsdash/internal/archive"
)

// Archiver uploads an export of the local store.
type Archiver interface {
	Archive(ctx context.Context) (*archive.Receipt, error)
}

// ArchiveCoordinator uploads an export on a fixed interval.
type ArchiveCoordinator struct {
	archiver Archiver
	interval time.Duration
}

// NewArchiveCoordinator creates a coordinator archiving every interval.
func NewArchiveCoordinator(archiver Archiver, interval time.Duration) *ArchiveCoordinator {
	return &ArchiveCoordinator{archiver: archiver, interval: interval}
}

// Run starts the coordinator loop. The first archive is taken after one
// interval, not on start.
func (c *ArchiveCoordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "archive-coordinator",
		"action", "worker_started",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "archive-coordinator",
				"action", "worker_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.archiveOnce(ctx)
		}
	}
}

// Upload failures are logged and retried on the next tick; the local
// store is unaffected.
func (c *ArchiveCoordinator) archiveOnce(ctx context.Context) {
	r, err := c.archiver.Archive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("export archive failed",
			"component", "worker",
			"worker", "archive-coordinator",
			"action", "archive_failed",
			"error", err,
		)
		return
	}

	slog.Info("export archive completed",
		"component", "worker",
		"worker", "archive-coordinator",
		"action", "cycle_complete",
		"key", r.Key,
	)
}
