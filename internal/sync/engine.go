// Package sync reconciles the local store with a remote relational store.
//
// Records are upserted by their natural key with no version tracking, so
// whichever side last wrote a record through the local save functions wins
// for that record. Each collection is pushed and pulled independently: a
// collection that exhausts its retries is logged and reported, and the
// remaining collections still run.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/hyperengineering/opsdash/internal/types"
)

// ErrInvalidDirection is returned for an unknown sync direction.
var ErrInvalidDirection = errors.New("invalid sync direction")

// Retry defaults: 3 attempts, 1s base delay doubling per attempt.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Remote is the remote relational store.
type Remote interface {
	// Upsert writes rows with (user_id, key columns) as the conflict target.
	Upsert(ctx context.Context, table Table, rows []Row) error
	// Select returns every row of table belonging to userID.
	Select(ctx context.Context, table Table, userID string) ([]Row, error)
}

// LocalStore is the subset of the local store the engine reads and writes.
type LocalStore interface {
	GetDailyChecks(ctx context.Context) []types.DailyCheck
	SaveDailyCheck(ctx context.Context, check types.DailyCheck)
	GetWeeklyPlans(ctx context.Context) []types.WeeklyPlan
	SaveWeeklyPlan(ctx context.Context, plan types.WeeklyPlan)
	GetImpactLogs(ctx context.Context) []types.ImpactLog
	SaveImpactLog(ctx context.Context, log types.ImpactLog)
	GetDismissedAlerts(ctx context.Context) []string
	DismissAlert(ctx context.Context, id string)
	GetAnchorMetrics(ctx context.Context) []types.AnchorMetric
	SaveAnchorMetric(ctx context.Context, metric types.AnchorMetric)
	GetMetricEntries(ctx context.Context) []types.MetricEntry
	SaveMetricEntry(ctx context.Context, entry types.MetricEntry)
}

// collection binds a remote table to its local accessors.
type collection struct {
	table Table
	rows  func(ctx context.Context, userID string, now time.Time) ([]Row, error)
	apply func(ctx context.Context, rows []Row) int
}

// Engine pushes and pulls the six synchronized collections.
type Engine struct {
	local       LocalStore
	remote      Remote
	now         func() time.Time
	baseDelay   time.Duration
	maxAttempts int

	collections []collection
	group       singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRetry overrides the retry budget per collection.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			e.baseDelay = baseDelay
		}
	}
}

// NewEngine creates a sync engine over an explicitly constructed remote.
func NewEngine(local LocalStore, remote Remote, opts ...Option) *Engine {
	e := &Engine{
		local:       local,
		remote:      remote,
		now:         time.Now,
		baseDelay:   DefaultBaseDelay,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.collections = []collection{
		payloadCollection(DailyChecks, local.GetDailyChecks, local.SaveDailyCheck,
			func(c types.DailyCheck) []string { return []string{c.Date} }),
		payloadCollection(WeeklyPlans, local.GetWeeklyPlans, local.SaveWeeklyPlan,
			func(p types.WeeklyPlan) []string { return []string{p.WeekStart} }),
		payloadCollection(ImpactLogs, local.GetImpactLogs, local.SaveImpactLog,
			func(l types.ImpactLog) []string { return []string{l.Date} }),
		dismissedCollection(local),
		payloadCollection(AnchorMetrics, local.GetAnchorMetrics, local.SaveAnchorMetric,
			func(m types.AnchorMetric) []string { return []string{m.ID} }),
		payloadCollection(MetricEntries, local.GetMetricEntries, local.SaveMetricEntry,
			func(m types.MetricEntry) []string { return []string{m.MetricID, m.Date} }),
	}
	return e
}

// Push upserts every non-empty local collection to the remote.
func (e *Engine) Push(ctx context.Context, userID string) *Report {
	report := e.newReport(userID, DirectionPush)
	now := e.now().UTC()

	for _, c := range e.collections {
		res := CollectionResult{Table: c.table.Name, Direction: DirectionPush}

		rows, err := c.rows(ctx, userID, now)
		if err != nil {
			res.Error = err.Error()
			e.logFailure(res, userID, err)
			report.Results = append(report.Results, res)
			continue
		}
		if len(rows) == 0 {
			res.Skipped = true
			report.Results = append(report.Results, res)
			continue
		}

		res.Attempts, err = e.withRetry(ctx, func(ctx context.Context) error {
			return e.remote.Upsert(ctx, c.table, rows)
		})
		if err != nil {
			res.Error = err.Error()
			e.logFailure(res, userID, err)
		} else {
			res.Items = len(rows)
		}
		report.Results = append(report.Results, res)
	}

	e.finish(report)
	return report
}

// Pull applies every remote row of userID through the local save functions.
func (e *Engine) Pull(ctx context.Context, userID string) *Report {
	report := e.newReport(userID, DirectionPull)

	for _, c := range e.collections {
		res := CollectionResult{Table: c.table.Name, Direction: DirectionPull}

		var rows []Row
		attempts, err := e.withRetry(ctx, func(ctx context.Context) error {
			var selectErr error
			rows, selectErr = e.remote.Select(ctx, c.table, userID)
			return selectErr
		})
		res.Attempts = attempts
		if err != nil {
			res.Error = err.Error()
			e.logFailure(res, userID, err)
		} else {
			res.Items = c.apply(ctx, rows)
		}
		report.Results = append(report.Results, res)
	}

	e.finish(report)
	return report
}

// Sync runs the given direction for userID; both pushes before pulling.
// Concurrent calls for the same user and direction share one run.
func (e *Engine) Sync(ctx context.Context, userID string, direction Direction) (*Report, error) {
	switch direction {
	case DirectionPush, DirectionPull, DirectionBoth:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	v, _, _ := e.group.Do(userID+"/"+string(direction), func() (interface{}, error) {
		switch direction {
		case DirectionPush:
			return e.Push(ctx, userID), nil
		case DirectionPull:
			return e.Pull(ctx, userID), nil
		}

		push := e.Push(ctx, userID)
		pull := e.Pull(ctx, userID)
		return &Report{
			UserID:     userID,
			Direction:  DirectionBoth,
			StartedAt:  push.StartedAt,
			FinishedAt: pull.FinishedAt,
			Results:    append(push.Results, pull.Results...),
		}, nil
	})
	return v.(*Report), nil
}

// backoff returns the delay schedule between attempts on one collection.
func (e *Engine) backoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(e.maxAttempts-1), retry.NewExponential(e.baseDelay))
}

// withRetry runs op with exponential backoff and reports the attempts made.
func (e *Engine) withRetry(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	attempts := 0
	err := retry.Do(ctx, e.backoff(), func(ctx context.Context) error {
		attempts++
		if err := op(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return attempts, err
}

func (e *Engine) newReport(userID string, d Direction) *Report {
	return &Report{UserID: userID, Direction: d, StartedAt: e.now().UTC()}
}

func (e *Engine) finish(r *Report) {
	r.FinishedAt = e.now().UTC()
	slog.Info("sync finished",
		"component", "sync",
		"action", string(r.Direction),
		"user_id", r.UserID,
		"collections", len(r.Results),
		"failed", r.Failed(),
	)
}

func (e *Engine) logFailure(res CollectionResult, userID string, err error) {
	slog.Error("sync collection failed",
		"component", "sync",
		"action", string(res.Direction),
		"severity", "critical",
		"table", res.Table,
		"user_id", userID,
		"attempts", res.Attempts,
		"error", err,
	)
}

func payloadCollection[T any](table Table, list func(context.Context) []T, save func(context.Context, T), keys func(T) []string) collection {
	return collection{
		table: table,
		rows: func(ctx context.Context, userID string, now time.Time) ([]Row, error) {
			items := list(ctx)
			rows := make([]Row, 0, len(items))
			for _, it := range items {
				payload, err := json.Marshal(it)
				if err != nil {
					return nil, fmt.Errorf("encode %s row: %w", table.Name, err)
				}
				rows = append(rows, Row{UserID: userID, Keys: keys(it), Payload: payload, UpdatedAt: now})
			}
			return rows, nil
		},
		apply: func(ctx context.Context, rows []Row) int {
			applied := 0
			for _, r := range rows {
				var item T
				if err := json.Unmarshal(r.Payload, &item); err != nil {
					slog.Warn("skipping undecodable remote row",
						"component", "sync",
						"table", table.Name,
						"keys", r.Keys,
						"error", err,
					)
					continue
				}
				save(ctx, item)
				applied++
			}
			return applied
		},
	}
}

func dismissedCollection(local LocalStore) collection {
	return collection{
		table: DismissedAlerts,
		rows: func(ctx context.Context, userID string, now time.Time) ([]Row, error) {
			ids := local.GetDismissedAlerts(ctx)
			rows := make([]Row, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, Row{UserID: userID, Keys: []string{id}, UpdatedAt: now})
			}
			return rows, nil
		},
		apply: func(ctx context.Context, rows []Row) int {
			applied := 0
			for _, r := range rows {
				if len(r.Keys) == 0 || r.Keys[0] == "" {
					continue
				}
				local.DismissAlert(ctx, r.Keys[0])
				applied++
			}
			return applied
		},
	}
}
