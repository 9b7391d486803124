package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyperengineering/opsdash/internal/types"
)

// quotaRecoveryKeep is how many daily checks survive a quota recovery.
const quotaRecoveryKeep = 30

// Store is the local-first typed collection store.
//
// Every mutation is a whole-collection read-modify-write. The mutex
// serializes those cycles inside one process; writers in other processes
// sharing the substrate are not coordinated and the last write wins.
// Read and write failures are logged and never returned to callers.
type Store struct {
	kv  KV
	now func() time.Time

	mu      sync.Mutex
	dropped atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for retention and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store over the given substrate.
func New(kv KV, opts ...Option) *Store {
	s := &Store{kv: kv, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Close closes the underlying substrate.
func (s *Store) Close() error {
	return s.kv.Close()
}

// Get deserializes the value under key. It reports false when the key is
// absent or the stored bytes cannot be decoded into T.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	return read[T](ctx, s, key)
}

// Set serializes v and writes it under key, applying quota recovery.
func (s *Store) Set(ctx context.Context, key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(ctx, key, v)
}

func read[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T

	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			slog.Error("local read failed",
				"component", "store",
				"key", key,
				"error", err,
			)
		}
		return zero, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.Error("local decode failed",
			"component", "store",
			"key", key,
			"error", err,
		)
		return zero, false
	}
	return v, true
}

// write must be called with s.mu held.
func (s *Store) write(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("local encode failed",
			"component", "store",
			"key", key,
			"error", err,
		)
		s.dropped.Add(1)
		return
	}

	err = s.kv.Set(ctx, key, data)
	if err == nil {
		return
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		slog.Error("local write failed",
			"component", "store",
			"key", key,
			"error", err,
		)
		s.dropped.Add(1)
		return
	}

	slog.Warn("quota exceeded, truncating daily checks",
		"component", "store",
		"action", "quota_recovery",
		"key", key,
		"keep", quotaRecoveryKeep,
	)

	if checks, ok := v.([]types.DailyCheck); ok && key == KeyDailyChecks {
		// The write itself is the daily check collection: truncate what we write.
		if data, err = json.Marshal(mostRecentChecks(checks, quotaRecoveryKeep)); err != nil {
			s.dropped.Add(1)
			return
		}
	} else {
		s.truncateDailyChecks(ctx)
	}

	if err := s.kv.Set(ctx, key, data); err != nil {
		slog.Error("write dropped after quota recovery",
			"component", "store",
			"action", "quota_recovery_failed",
			"severity", "critical",
			"key", key,
			"bytes", len(data),
			"error", err,
		)
		s.dropped.Add(1)
	}
}

func (s *Store) truncateDailyChecks(ctx context.Context) {
	checks, _ := read[[]types.DailyCheck](ctx, s, KeyDailyChecks)
	if len(checks) <= quotaRecoveryKeep {
		return
	}
	data, err := json.Marshal(mostRecentChecks(checks, quotaRecoveryKeep))
	if err != nil {
		return
	}
	if err := s.kv.Set(ctx, KeyDailyChecks, data); err != nil {
		slog.Error("daily check truncation failed",
			"component", "store",
			"action", "quota_recovery",
			"error", err,
		)
	}
}

// mostRecentChecks returns at most n checks, newest first.
func mostRecentChecks(checks []types.DailyCheck, n int) []types.DailyCheck {
	sorted := append([]types.DailyCheck(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date > sorted[j].Date
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Stats summarizes the store for health and info output.
type Stats struct {
	SizeBytes     int64          `json:"size_bytes"`
	DroppedWrites int64          `json:"dropped_writes"`
	Collections   map[string]int `json:"collections"`
}

// Stats returns collection sizes and the count of writes lost to storage
// failures since the store was opened.
func (s *Store) Stats(ctx context.Context) Stats {
	size, err := s.kv.Size(ctx)
	if err != nil {
		slog.Warn("measure store size failed", "component", "store", "error", err)
	}
	return Stats{
		SizeBytes:     size,
		DroppedWrites: s.dropped.Load(),
		Collections: map[string]int{
			"dailyChecks":     len(s.GetDailyChecks(ctx)),
			"weeklyPlans":     len(s.GetWeeklyPlans(ctx)),
			"impactLogs":      len(s.GetImpactLogs(ctx)),
			"anchorMetrics":   len(s.GetAnchorMetrics(ctx)),
			"metricEntries":   len(s.GetMetricEntries(ctx)),
			"dismissedAlerts": len(s.GetDismissedAlerts(ctx)),
		},
	}
}
