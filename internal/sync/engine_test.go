package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/opsdash/internal/store"
	"github.com/hyperengineering/opsdash/internal/types"
)

var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

// fakeRemote keeps rows in memory, upserting by (user, keys).
type fakeRemote struct {
	mu       gosync.Mutex
	rows     map[string]map[string]Row // table -> user/keys -> row
	failures map[string]int            // table -> remaining failures, -1 forever
	calls    map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:     map[string]map[string]Row{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *fakeRemote) fail(table string) error {
	f.calls[table]++
	n := f.failures[table]
	if n == 0 {
		return nil
	}
	if n > 0 {
		f.failures[table] = n - 1
	}
	return errors.New("connection reset")
}

func (f *fakeRemote) Upsert(ctx context.Context, table Table, rows []Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(table.Name); err != nil {
		return err
	}
	if f.rows[table.Name] == nil {
		f.rows[table.Name] = map[string]Row{}
	}
	for _, r := range rows {
		f.rows[table.Name][r.UserID+"/"+strings.Join(r.Keys, "/")] = r
	}
	return nil
}

func (f *fakeRemote) Select(ctx context.Context, table Table, userID string) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail(table.Name); err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range f.rows[table.Name] {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func newLocal(t *testing.T) *store.Store {
	t.Helper()
	kv, err := store.NewSQLiteKV(":memory:", 0)
	require.NoError(t, err)
	s := store.New(kv, store.WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(local LocalStore, remote Remote) *Engine {
	return NewEngine(local, remote,
		WithClock(func() time.Time { return testNow }),
		WithRetry(DefaultMaxAttempts, time.Millisecond),
	)
}

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	s.SaveDailyCheck(ctx, types.DailyCheck{Date: "2026-10-14", OperationStatus: types.StatusGreen})
	s.SaveWeeklyPlan(ctx, types.WeeklyPlan{WeekStart: "2026-10-12", CenterOfWeek: "Vendas"})
	s.SaveAnchorMetric(ctx, types.AnchorMetric{ID: "leads", Name: "Leads novos", IsActive: true})
	s.SaveMetricEntry(ctx, types.MetricEntry{MetricID: "leads", Date: "2026-10-14", Value: 3, Status: types.StatusRed})
	s.DismissAlert(ctx, "no-planning")
}

func result(r *Report, table string, d Direction) CollectionResult {
	for _, res := range r.Results {
		if res.Table == table && res.Direction == d {
			return res
		}
	}
	return CollectionResult{}
}

func TestNewEngine_DefaultRetryBudget(t *testing.T) {
	e := NewEngine(newLocal(t), newFakeRemote())

	assert.Equal(t, 3, e.maxAttempts)
	assert.Equal(t, time.Second, e.baseDelay)

	b := e.backoff()
	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestWithRetry_NonPositiveKeepsDefaults(t *testing.T) {
	e := NewEngine(newLocal(t), newFakeRemote(), WithRetry(0, -time.Second))

	assert.Equal(t, DefaultMaxAttempts, e.maxAttempts)
	assert.Equal(t, DefaultBaseDelay, e.baseDelay)
}

func TestPush_UpsertsNonEmptyCollections(t *testing.T) {
	local := newLocal(t)
	seed(t, local)
	remote := newFakeRemote()

	report := newEngine(local, remote).Push(context.Background(), "user-1")

	require.Len(t, report.Results, len(Tables))
	assert.Zero(t, report.Failed())
	assert.True(t, result(report, ImpactLogs.Name, DirectionPush).Skipped)
	assert.Zero(t, remote.calls[ImpactLogs.Name], "empty collections are not pushed")

	entry := remote.rows[MetricEntries.Name]["user-1/leads/2026-10-14"]
	assert.Equal(t, []string{"leads", "2026-10-14"}, entry.Keys)
	assert.Equal(t, testNow, entry.UpdatedAt)
	assert.Contains(t, string(entry.Payload), `"metricId":"leads"`)

	dismissed := remote.rows[DismissedAlerts.Name]["user-1/no-planning"]
	assert.Empty(t, dismissed.Payload)
}

func TestPush_IsIdempotent(t *testing.T) {
	local := newLocal(t)
	seed(t, local)
	remote := newFakeRemote()
	e := newEngine(local, remote)

	e.Push(context.Background(), "user-1")
	e.Push(context.Background(), "user-1")

	assert.Len(t, remote.rows[DailyChecks.Name], 1)
	assert.Len(t, remote.rows[MetricEntries.Name], 1)
}

func TestPull_RestoresIntoEmptyStore(t *testing.T) {
	source := newLocal(t)
	seed(t, source)
	remote := newFakeRemote()
	newEngine(source, remote).Push(context.Background(), "user-1")

	target := newLocal(t)
	report := newEngine(target, remote).Pull(context.Background(), "user-1")

	ctx := context.Background()
	assert.Zero(t, report.Failed())
	assert.Len(t, target.GetDailyChecks(ctx), 1)
	assert.Len(t, target.GetWeeklyPlans(ctx), 1)
	assert.Len(t, target.GetAnchorMetrics(ctx), 1)
	assert.Equal(t, []string{"no-planning"}, target.GetDismissedAlerts(ctx))

	entry, ok := target.GetMetricEntry(ctx, "leads", "2026-10-14")
	require.True(t, ok)
	assert.Equal(t, types.StatusRed, entry.Status)
	assert.Equal(t, 1, result(report, MetricEntries.Name, DirectionPull).Items)
}

// Deletes never reach the remote, so the next pull brings them back.
func TestPull_LocalDeletesAreRestored(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	seed(t, local)
	remote := newFakeRemote()
	e := newEngine(local, remote)
	e.Push(ctx, "user-1")

	local.DeleteDailyCheck(ctx, "2026-10-14")
	local.DeleteAnchorMetric(ctx, "leads")
	require.Empty(t, local.GetDailyChecks(ctx))
	require.Empty(t, local.GetMetricEntries(ctx))

	e.Push(ctx, "user-1")
	assert.Len(t, remote.rows[DailyChecks.Name], 1)
	assert.Len(t, remote.rows[AnchorMetrics.Name], 1)

	report := e.Pull(ctx, "user-1")
	assert.Zero(t, report.Failed())
	assert.Len(t, local.GetDailyChecks(ctx), 1)
	assert.Len(t, local.GetAnchorMetrics(ctx), 1)
	assert.Len(t, local.GetMetricEntries(ctx), 1)
}

func TestPull_OtherUsersRowsIgnored(t *testing.T) {
	source := newLocal(t)
	seed(t, source)
	remote := newFakeRemote()
	newEngine(source, remote).Push(context.Background(), "someone-else")

	target := newLocal(t)
	newEngine(target, remote).Pull(context.Background(), "user-1")

	assert.Empty(t, target.GetDailyChecks(context.Background()))
}

func TestPull_RemoteRecordReplacesLocal(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()

	other := newLocal(t)
	other.SaveDailyCheck(ctx, types.DailyCheck{Date: "2026-10-14", OperationStatus: types.StatusRed})
	newEngine(other, remote).Push(ctx, "user-1")

	local := newLocal(t)
	local.SaveDailyCheck(ctx, types.DailyCheck{Date: "2026-10-14", OperationStatus: types.StatusGreen})
	newEngine(local, remote).Pull(ctx, "user-1")

	got, ok := local.GetDailyCheck(ctx, "2026-10-14")
	require.True(t, ok)
	assert.Equal(t, types.StatusRed, got.OperationStatus)
	assert.Len(t, local.GetDailyChecks(ctx), 1)
}

func TestPush_RetriesTransientFailures(t *testing.T) {
	local := newLocal(t)
	seed(t, local)
	remote := newFakeRemote()
	remote.failures[DailyChecks.Name] = 2

	report := newEngine(local, remote).Push(context.Background(), "user-1")

	res := result(report, DailyChecks.Name, DirectionPush)
	assert.Empty(t, res.Error)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, res.Items)
}

func TestPush_ExhaustedCollectionDoesNotAbortOthers(t *testing.T) {
	local := newLocal(t)
	seed(t, local)
	remote := newFakeRemote()
	remote.failures[WeeklyPlans.Name] = -1

	report := newEngine(local, remote).Push(context.Background(), "user-1")

	failed := result(report, WeeklyPlans.Name, DirectionPush)
	assert.Contains(t, failed.Error, "connection reset")
	assert.Equal(t, DefaultMaxAttempts, failed.Attempts)
	assert.Equal(t, 1, report.Failed())

	assert.Len(t, remote.rows[AnchorMetrics.Name], 1, "later collections still pushed")
	assert.Len(t, remote.rows[MetricEntries.Name], 1)
}

func TestPull_ExhaustedTableDoesNotAbortOthers(t *testing.T) {
	source := newLocal(t)
	seed(t, source)
	remote := newFakeRemote()
	newEngine(source, remote).Push(context.Background(), "user-1")
	remote.failures[DailyChecks.Name] = -1

	target := newLocal(t)
	report := newEngine(target, remote).Pull(context.Background(), "user-1")

	assert.Equal(t, 1, report.Failed())
	assert.Empty(t, target.GetDailyChecks(context.Background()))
	assert.Len(t, target.GetAnchorMetrics(context.Background()), 1)
}

func TestSync_BothPushesBeforePull(t *testing.T) {
	local := newLocal(t)
	seed(t, local)
	remote := newFakeRemote()

	report, err := newEngine(local, remote).Sync(context.Background(), "user-1", DirectionBoth)
	require.NoError(t, err)

	require.Len(t, report.Results, 2*len(Tables))
	assert.Equal(t, DirectionPush, report.Results[0].Direction)
	assert.Equal(t, DirectionPull, report.Results[len(report.Results)-1].Direction)
	assert.Equal(t, DirectionBoth, report.Direction)
}

func TestSync_InvalidDirection(t *testing.T) {
	_, err := newEngine(newLocal(t), newFakeRemote()).Sync(context.Background(), "user-1", "sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("")
	require.NoError(t, err)
	assert.Equal(t, DirectionBoth, d)

	d, err = ParseDirection("pull")
	require.NoError(t, err)
	assert.Equal(t, DirectionPull, d)

	_, err = ParseDirection("PUSH")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}
