package store

import (
	"context"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/types"
)

// Substrate keys, one per collection.
const (
	KeyDailyChecks     = "daily-checks"
	KeyWeeklyPlans     = "weekly-plans"
	KeyImpactLogs      = "impact-logs"
	KeyAnchorMetrics   = "anchor-metrics"
	KeyMetricEntries   = "metric-entries"
	KeyDismissedAlerts = "dismissed-alerts"
	KeyPreferences     = "preferences"
)

// Rolling retention windows, in days from now at save time.
const (
	DailyCheckRetentionDays = 90
	WeeklyPlanRetentionDays = 84
)

// list reads a collection, returning an empty non-nil slice when absent.
func list[T any](ctx context.Context, s *Store, key string) []T {
	items, ok := read[[]T](ctx, s, key)
	if !ok || items == nil {
		return []T{}
	}
	return items
}

// upsert replaces the first item matching same, or appends.
func upsert[T any](items []T, item T, same func(T) bool) []T {
	for i := range items {
		if same(items[i]) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

// keep returns the items for which pred holds.
func keep[T any](items []T, pred func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

func find[T any](items []T, match func(T) bool) (T, bool) {
	for _, it := range items {
		if match(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// --- Daily checks ---

// GetDailyChecks returns all stored daily checks.
func (s *Store) GetDailyChecks(ctx context.Context) []types.DailyCheck {
	return list[types.DailyCheck](ctx, s, KeyDailyChecks)
}

// GetDailyCheck returns the check for date.
func (s *Store) GetDailyCheck(ctx context.Context, date string) (types.DailyCheck, bool) {
	return find(s.GetDailyChecks(ctx), func(c types.DailyCheck) bool { return c.Date == date })
}

// SaveDailyCheck upserts by date and prunes checks older than the retention window.
func (s *Store) SaveDailyCheck(ctx context.Context, check types.DailyCheck) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	checks := list[types.DailyCheck](ctx, s, KeyDailyChecks)
	checks = upsert(checks, check, func(c types.DailyCheck) bool { return c.Date == check.Date })
	checks = keep(checks, func(c types.DailyCheck) bool {
		return dates.Within(c.Date, now, DailyCheckRetentionDays)
	})
	s.write(ctx, KeyDailyChecks, checks)
}

// DeleteDailyCheck removes the check for date.
func (s *Store) DeleteDailyCheck(ctx context.Context, date string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checks := list[types.DailyCheck](ctx, s, KeyDailyChecks)
	s.write(ctx, KeyDailyChecks, keep(checks, func(c types.DailyCheck) bool { return c.Date != date }))
}

// --- Weekly plans ---

// GetWeeklyPlans returns all stored weekly plans.
func (s *Store) GetWeeklyPlans(ctx context.Context) []types.WeeklyPlan {
	return list[types.WeeklyPlan](ctx, s, KeyWeeklyPlans)
}

// GetWeeklyPlan returns the plan starting on weekStart.
func (s *Store) GetWeeklyPlan(ctx context.Context, weekStart string) (types.WeeklyPlan, bool) {
	return find(s.GetWeeklyPlans(ctx), func(p types.WeeklyPlan) bool { return p.WeekStart == weekStart })
}

// SaveWeeklyPlan upserts by week start and prunes plans outside the retention window.
func (s *Store) SaveWeeklyPlan(ctx context.Context, plan types.WeeklyPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	plans := list[types.WeeklyPlan](ctx, s, KeyWeeklyPlans)
	plans = upsert(plans, plan, func(p types.WeeklyPlan) bool { return p.WeekStart == plan.WeekStart })
	plans = keep(plans, func(p types.WeeklyPlan) bool {
		return dates.Within(p.WeekStart, now, WeeklyPlanRetentionDays)
	})
	s.write(ctx, KeyWeeklyPlans, plans)
}

// DeleteWeeklyPlan removes the plan starting on weekStart.
func (s *Store) DeleteWeeklyPlan(ctx context.Context, weekStart string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := list[types.WeeklyPlan](ctx, s, KeyWeeklyPlans)
	s.write(ctx, KeyWeeklyPlans, keep(plans, func(p types.WeeklyPlan) bool { return p.WeekStart != weekStart }))
}

// --- Impact logs ---

// GetImpactLogs returns all stored impact logs.
func (s *Store) GetImpactLogs(ctx context.Context) []types.ImpactLog {
	return list[types.ImpactLog](ctx, s, KeyImpactLogs)
}

// GetImpactLog returns the log for date.
func (s *Store) GetImpactLog(ctx context.Context, date string) (types.ImpactLog, bool) {
	return find(s.GetImpactLogs(ctx), func(l types.ImpactLog) bool { return l.Date == date })
}

// SaveImpactLog upserts by date. Impact logs are never pruned.
func (s *Store) SaveImpactLog(ctx context.Context, log types.ImpactLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := list[types.ImpactLog](ctx, s, KeyImpactLogs)
	s.write(ctx, KeyImpactLogs, upsert(logs, log, func(l types.ImpactLog) bool { return l.Date == log.Date }))
}

// --- Anchor metrics ---

// GetAnchorMetrics returns all metrics, active and inactive.
func (s *Store) GetAnchorMetrics(ctx context.Context) []types.AnchorMetric {
	return list[types.AnchorMetric](ctx, s, KeyAnchorMetrics)
}

// GetAnchorMetric returns the metric with id.
func (s *Store) GetAnchorMetric(ctx context.Context, id string) (types.AnchorMetric, bool) {
	return find(s.GetAnchorMetrics(ctx), func(m types.AnchorMetric) bool { return m.ID == id })
}

// SaveAnchorMetric upserts by id.
func (s *Store) SaveAnchorMetric(ctx context.Context, metric types.AnchorMetric) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := list[types.AnchorMetric](ctx, s, KeyAnchorMetrics)
	s.write(ctx, KeyAnchorMetrics, upsert(metrics, metric, func(m types.AnchorMetric) bool { return m.ID == metric.ID }))
}

// DeleteAnchorMetric removes the metric and every entry recorded for it.
func (s *Store) DeleteAnchorMetric(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metrics := list[types.AnchorMetric](ctx, s, KeyAnchorMetrics)
	s.write(ctx, KeyAnchorMetrics, keep(metrics, func(m types.AnchorMetric) bool { return m.ID != id }))

	entries := list[types.MetricEntry](ctx, s, KeyMetricEntries)
	s.write(ctx, KeyMetricEntries, keep(entries, func(e types.MetricEntry) bool { return e.MetricID != id }))
}

// --- Metric entries ---

// GetMetricEntries returns all entries of all metrics.
func (s *Store) GetMetricEntries(ctx context.Context) []types.MetricEntry {
	return list[types.MetricEntry](ctx, s, KeyMetricEntries)
}

// GetEntriesForMetric returns the entries recorded for metricID.
func (s *Store) GetEntriesForMetric(ctx context.Context, metricID string) []types.MetricEntry {
	return keep(s.GetMetricEntries(ctx), func(e types.MetricEntry) bool { return e.MetricID == metricID })
}

// GetMetricEntry returns the entry for (metricID, date).
func (s *Store) GetMetricEntry(ctx context.Context, metricID, date string) (types.MetricEntry, bool) {
	return find(s.GetMetricEntries(ctx), func(e types.MetricEntry) bool {
		return e.MetricID == metricID && e.Date == date
	})
}

// SaveMetricEntry upserts by (metricId, date). The caller derives Status.
func (s *Store) SaveMetricEntry(ctx context.Context, entry types.MetricEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := list[types.MetricEntry](ctx, s, KeyMetricEntries)
	s.write(ctx, KeyMetricEntries, upsert(entries, entry, func(e types.MetricEntry) bool {
		return e.MetricID == entry.MetricID && e.Date == entry.Date
	}))
}

// SetEntryAddressed marks a red-radar entry as handled or not.
// It reports false when no entry exists for (metricID, date).
func (s *Store) SetEntryAddressed(ctx context.Context, metricID, date string, addressed bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := list[types.MetricEntry](ctx, s, KeyMetricEntries)
	for i := range entries {
		if entries[i].MetricID == metricID && entries[i].Date == date {
			entries[i].Addressed = types.Bool(addressed)
			entries[i].UpdatedAt = s.now().UTC()
			s.write(ctx, KeyMetricEntries, entries)
			return true
		}
	}
	return false
}

// --- Dismissed alerts ---

// GetDismissedAlerts returns the ids of dismissed alerts.
func (s *Store) GetDismissedAlerts(ctx context.Context) []string {
	return list[string](ctx, s, KeyDismissedAlerts)
}

// DismissAlert records id as dismissed. Dismissing twice is a no-op.
func (s *Store) DismissAlert(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := list[string](ctx, s, KeyDismissedAlerts)
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	s.write(ctx, KeyDismissedAlerts, append(ids, id))
}

// --- Preferences ---

// GetPreferences returns the stored preferences, or the zero value.
func (s *Store) GetPreferences(ctx context.Context) types.Preferences {
	prefs, _ := read[types.Preferences](ctx, s, KeyPreferences)
	return prefs
}

// SavePreferences replaces the preferences singleton.
func (s *Store) SavePreferences(ctx context.Context, prefs types.Preferences) {
	s.Set(ctx, KeyPreferences, prefs)
}
