package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/opsdash/internal/types"
)

var testNow = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv, err := NewSQLiteKV(":memory:", 0)
	if err != nil {
		t.Fatal(err)
	}
	s := New(kv, WithClock(func() time.Time { return testNow }))
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeKV is an in-memory substrate with injectable write failures.
type fakeKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	failKeys map[string]int // remaining quota failures per key; -1 fails forever
	sets     []string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, failKeys: map[string]int{}}
}

func (f *fakeKV) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, key)
	if n := f.failKeys[key]; n != 0 {
		if n > 0 {
			f.failKeys[key] = n - 1
		}
		return fmt.Errorf("fake: %w", ErrQuotaExceeded)
	}
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeKV) Size(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, v := range f.data {
		n += int64(len(k) + len(v))
	}
	return n, nil
}

func (f *fakeKV) Close() error { return nil }

func check(date string, status types.Status) types.DailyCheck {
	return types.DailyCheck{
		Date:                date,
		OperationStatus:     status,
		ContentStatus:       types.ContentFulfilled,
		CommercialAlignment: types.AlignmentAligned,
		TomorrowTrend:       types.TrendSame,
	}
}

func daysAgo(n int) string {
	return testNow.AddDate(0, 0, -n).Format("2006-01-02")
}

// --- Get / Set ---

func TestGet_MissingKeyReturnsFalse(t *testing.T) {
	s := newTestStore(t)

	_, ok := Get[[]types.DailyCheck](context.Background(), s, KeyDailyChecks)
	if ok {
		t.Error("expected ok=false for missing key")
	}
}

func TestGet_CorruptValueTreatedAsNoData(t *testing.T) {
	kv := newFakeKV()
	kv.data[KeyDailyChecks] = []byte("{not json")
	s := New(kv, WithClock(func() time.Time { return testNow }))

	if _, ok := Get[[]types.DailyCheck](context.Background(), s, KeyDailyChecks); ok {
		t.Error("expected ok=false for corrupt value")
	}
	if got := s.GetDailyChecks(context.Background()); len(got) != 0 {
		t.Errorf("expected empty collection, got %d items", len(got))
	}
}

func TestSet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, "custom", map[string]int{"a": 1})

	got, ok := Get[map[string]int](ctx, s, "custom")
	if !ok {
		t.Fatal("expected value to be present")
	}
	if got["a"] != 1 {
		t.Errorf("got %v, want a=1", got)
	}
}

// --- Quota recovery ---

func TestSet_QuotaRecoveryTruncatesDailyChecks(t *testing.T) {
	kv := newFakeKV()
	var checks []types.DailyCheck
	for i := 0; i < 40; i++ {
		checks = append(checks, check(daysAgo(i), types.StatusGreen))
	}
	data, _ := json.Marshal(checks)
	kv.data[KeyDailyChecks] = data
	kv.failKeys[KeyImpactLogs] = 1

	s := New(kv, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	s.SaveImpactLog(ctx, types.ImpactLog{Date: daysAgo(0), Reflection: "shipped"})

	got := s.GetDailyChecks(ctx)
	if len(got) != quotaRecoveryKeep {
		t.Fatalf("expected %d daily checks after recovery, got %d", quotaRecoveryKeep, len(got))
	}
	for _, c := range got {
		if c.Date < daysAgo(quotaRecoveryKeep-1) {
			t.Errorf("old check %s survived truncation", c.Date)
		}
	}

	if _, ok := s.GetImpactLog(ctx, daysAgo(0)); !ok {
		t.Error("expected impact log write to succeed on retry")
	}
	if dropped := s.Stats(ctx).DroppedWrites; dropped != 0 {
		t.Errorf("DroppedWrites = %d, want 0", dropped)
	}
}

func TestSet_QuotaDoubleFailureDropsSilently(t *testing.T) {
	kv := newFakeKV()
	kv.failKeys[KeyImpactLogs] = -1

	s := New(kv, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	s.SaveImpactLog(ctx, types.ImpactLog{Date: daysAgo(0)})

	if _, ok := s.GetImpactLog(ctx, daysAgo(0)); ok {
		t.Error("expected write to be dropped")
	}
	if dropped := s.Stats(ctx).DroppedWrites; dropped != 1 {
		t.Errorf("DroppedWrites = %d, want 1", dropped)
	}

	// Exactly one retry after the initial failure.
	count := 0
	for _, k := range kv.sets {
		if k == KeyImpactLogs {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 write attempts, got %d", count)
	}
}

func TestSet_QuotaOnDailyChecksTruncatesWrittenValue(t *testing.T) {
	kv := newFakeKV()
	kv.failKeys[KeyDailyChecks] = 1

	s := New(kv, WithClock(func() time.Time { return testNow }))
	ctx := context.Background()

	var checks []types.DailyCheck
	for i := 0; i < 45; i++ {
		checks = append(checks, check(daysAgo(i), types.StatusYellow))
	}
	s.Set(ctx, KeyDailyChecks, checks)

	if got := s.GetDailyChecks(ctx); len(got) != quotaRecoveryKeep {
		t.Errorf("expected %d checks, got %d", quotaRecoveryKeep, len(got))
	}
}

// --- Daily checks ---

func TestSaveDailyCheck_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := check(daysAgo(0), types.StatusRed)
	s.SaveDailyCheck(ctx, c)
	first := s.GetDailyChecks(ctx)
	s.SaveDailyCheck(ctx, c)
	second := s.GetDailyChecks(ctx)

	if len(second) != 1 {
		t.Fatalf("expected 1 check, got %d", len(second))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("collection changed on identical save: %v vs %v", first, second)
	}
}

func TestSaveDailyCheck_ReplacesByDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusGreen))
	s.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusRed))

	got, ok := s.GetDailyCheck(ctx, daysAgo(0))
	if !ok {
		t.Fatal("expected check to exist")
	}
	if got.OperationStatus != types.StatusRed {
		t.Errorf("OperationStatus = %s, want red", got.OperationStatus)
	}
}

func TestSaveDailyCheck_RetentionWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, KeyDailyChecks, []types.DailyCheck{
		check(daysAgo(91), types.StatusGreen),
		check(daysAgo(90), types.StatusGreen),
		check(daysAgo(30), types.StatusGreen),
	})

	s.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusGreen))

	got := s.GetDailyChecks(ctx)
	if len(got) != 3 {
		t.Fatalf("expected 3 checks after pruning, got %d: %v", len(got), got)
	}
	cutoff := testNow.AddDate(0, 0, -DailyCheckRetentionDays).Format("2006-01-02")
	for _, c := range got {
		if c.Date < cutoff {
			t.Errorf("check %s is older than retention cutoff %s", c.Date, cutoff)
		}
	}
}

func TestDeleteDailyCheck(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDailyCheck(ctx, check(daysAgo(1), types.StatusGreen))
	s.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusGreen))
	s.DeleteDailyCheck(ctx, daysAgo(1))

	got := s.GetDailyChecks(ctx)
	if len(got) != 1 || got[0].Date != daysAgo(0) {
		t.Errorf("unexpected checks after delete: %v", got)
	}
}

// --- Weekly plans ---

func TestSaveWeeklyPlan_RetentionAndUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Set(ctx, KeyWeeklyPlans, []types.WeeklyPlan{
		{WeekStart: "2026-07-20", CenterOfWeek: "too old"},
		{WeekStart: "2026-07-27", CenterOfWeek: "kept"},
	})

	plan := types.WeeklyPlan{WeekStart: "2026-10-12", CenterOfWeek: "launch"}
	s.SaveWeeklyPlan(ctx, plan)
	plan.CenterOfWeek = "launch v2"
	s.SaveWeeklyPlan(ctx, plan)

	got := s.GetWeeklyPlans(ctx)
	if len(got) != 2 {
		t.Fatalf("expected 2 plans, got %d: %v", len(got), got)
	}
	current, ok := s.GetWeeklyPlan(ctx, "2026-10-12")
	if !ok || current.CenterOfWeek != "launch v2" {
		t.Errorf("expected replaced plan, got %+v", current)
	}
	if _, ok := s.GetWeeklyPlan(ctx, "2026-07-20"); ok {
		t.Error("expected plan older than 84 days to be pruned")
	}
}

// --- Metrics ---

func TestSaveMetricEntry_UpsertByComposite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := types.MetricEntry{MetricID: "m1", Date: daysAgo(0), Value: 3, Status: types.StatusRed}
	s.SaveMetricEntry(ctx, e)
	s.SaveMetricEntry(ctx, e)
	s.SaveMetricEntry(ctx, types.MetricEntry{MetricID: "m2", Date: daysAgo(0), Value: 1})
	e.Value = 12
	e.Status = types.StatusGreen
	s.SaveMetricEntry(ctx, e)

	entries := s.GetMetricEntries(ctx)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	got, _ := s.GetMetricEntry(ctx, "m1", daysAgo(0))
	if got.Value != 12 || got.Status != types.StatusGreen {
		t.Errorf("expected replaced entry, got %+v", got)
	}
}

func TestDeleteAnchorMetric_CascadesEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveAnchorMetric(ctx, types.AnchorMetric{ID: "m1", Name: "Leads"})
	s.SaveAnchorMetric(ctx, types.AnchorMetric{ID: "m2", Name: "Posts"})
	for i := 0; i < 3; i++ {
		s.SaveMetricEntry(ctx, types.MetricEntry{MetricID: "m1", Date: daysAgo(i)})
		s.SaveMetricEntry(ctx, types.MetricEntry{MetricID: "m2", Date: daysAgo(i)})
	}

	s.DeleteAnchorMetric(ctx, "m1")

	if _, ok := s.GetAnchorMetric(ctx, "m1"); ok {
		t.Error("expected metric m1 to be deleted")
	}
	entries := s.GetMetricEntries(ctx)
	if len(entries) != 3 {
		t.Fatalf("expected 3 remaining entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.MetricID != "m2" {
			t.Errorf("unexpected entry for %s survived cascade", e.MetricID)
		}
	}
}

func TestSetEntryAddressed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveMetricEntry(ctx, types.MetricEntry{MetricID: "m1", Date: daysAgo(0), Status: types.StatusRed})

	if !s.SetEntryAddressed(ctx, "m1", daysAgo(0), true) {
		t.Fatal("expected entry to be found")
	}
	got, _ := s.GetMetricEntry(ctx, "m1", daysAgo(0))
	if !got.IsAddressed() {
		t.Error("expected entry to be addressed")
	}
	if s.SetEntryAddressed(ctx, "missing", daysAgo(0), true) {
		t.Error("expected false for missing entry")
	}
}

// --- Dismissed alerts / preferences ---

func TestDismissAlert_NoDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.DismissAlert(ctx, "no-planning")
	s.DismissAlert(ctx, "no-planning")
	s.DismissAlert(ctx, "crisis-mode")

	got := s.GetDismissedAlerts(ctx)
	if !reflect.DeepEqual(got, []string{"no-planning", "crisis-mode"}) {
		t.Errorf("GetDismissedAlerts = %v", got)
	}
}

func TestPreferences_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if s.GetPreferences(ctx).OnboardingCompleted {
		t.Error("expected zero preferences initially")
	}
	s.SavePreferences(ctx, types.Preferences{OnboardingCompleted: true})
	if !s.GetPreferences(ctx).OnboardingCompleted {
		t.Error("expected onboarding completed after save")
	}
}

// --- Export / import ---

func TestExportData_EmptyCollections(t *testing.T) {
	s := newTestStore(t)

	data, err := s.ExportData(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	for _, key := range []string{"dailyChecks", "weeklyPlans", "impactLogs", "anchorMetrics", "metricEntries"} {
		if string(doc[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, doc[key])
		}
	}
	if _, ok := doc["exportedAt"]; !ok {
		t.Error("exportedAt missing")
	}
}

func TestImportData_RoundTrip(t *testing.T) {
	src := newTestStore(t)
	ctx := context.Background()

	src.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusGreen))
	src.SaveDailyCheck(ctx, check(daysAgo(1), types.StatusRed))
	src.SaveWeeklyPlan(ctx, types.WeeklyPlan{WeekStart: "2026-10-12", CenterOfWeek: "launch",
		Projects: []types.Project{{ID: "p1", Name: "site", IsAdvancing: true, DependsOn: types.DependsOnMe}}})
	src.SaveImpactLog(ctx, types.ImpactLog{Date: daysAgo(0), Operation: []string{"fixed"}, Reflection: "ok"})
	src.SaveAnchorMetric(ctx, types.AnchorMetric{ID: "m1", Name: "Leads", IsActive: true,
		Guardrails: types.Guardrails{Green: types.Bound{Min: types.Float(10)}}})
	src.SaveMetricEntry(ctx, types.MetricEntry{MetricID: "m1", Date: daysAgo(0), Value: 4, Status: types.StatusRed,
		UpdatedAt: testNow})

	data, err := src.ExportData(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dst := newTestStore(t)
	if !dst.ImportData(ctx, data) {
		t.Fatal("ImportData returned false")
	}

	want := src.Export(ctx)
	got := dst.Export(ctx)
	sortChecks := func(cs []types.DailyCheck) {
		sort.Slice(cs, func(i, j int) bool { return cs[i].Date < cs[j].Date })
	}
	sortChecks(want.DailyChecks)
	sortChecks(got.DailyChecks)

	if !reflect.DeepEqual(want.DailyChecks, got.DailyChecks) {
		t.Errorf("daily checks differ: %v vs %v", want.DailyChecks, got.DailyChecks)
	}
	if !reflect.DeepEqual(want.WeeklyPlans, got.WeeklyPlans) {
		t.Errorf("weekly plans differ: %v vs %v", want.WeeklyPlans, got.WeeklyPlans)
	}
	if !reflect.DeepEqual(want.ImpactLogs, got.ImpactLogs) {
		t.Errorf("impact logs differ")
	}
	if !reflect.DeepEqual(want.AnchorMetrics, got.AnchorMetrics) {
		t.Errorf("anchor metrics differ: %v vs %v", want.AnchorMetrics, got.AnchorMetrics)
	}
	if !reflect.DeepEqual(want.MetricEntries, got.MetricEntries) {
		t.Errorf("metric entries differ: %v vs %v", want.MetricEntries, got.MetricEntries)
	}
}

func TestImportData_PartialDocumentLeavesOthersUntouched(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusGreen))
	s.SaveImpactLog(ctx, types.ImpactLog{Date: daysAgo(0)})

	ok := s.ImportData(ctx, []byte(`{"impactLogs": [], "metricEntries": null}`))
	if !ok {
		t.Fatal("expected import to succeed")
	}

	if len(s.GetDailyChecks(ctx)) != 1 {
		t.Error("daily checks should be untouched")
	}
	if len(s.GetImpactLogs(ctx)) != 0 {
		t.Error("impact logs should be overwritten with empty list")
	}
}

func TestImportData_InvalidInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.SaveDailyCheck(ctx, check(daysAgo(0), types.StatusGreen))

	tests := []struct {
		name  string
		input string
	}{
		{"not json", "{oops"},
		{"wrong shape", `{"dailyChecks": {"date": "x"}}`},
		{"array document", `[1, 2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if s.ImportData(ctx, []byte(tt.input)) {
				t.Error("expected import to fail")
			}
			if len(s.GetDailyChecks(ctx)) != 1 {
				t.Error("failed import must not modify collections")
			}
		})
	}
}

func TestStore_ConcurrentSavesAreSerialized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SaveMetricEntry(ctx, types.MetricEntry{MetricID: fmt.Sprintf("m%d", i), Date: daysAgo(0)})
		}(i)
	}
	wg.Wait()

	if got := len(s.GetMetricEntries(ctx)); got != 20 {
		t.Errorf("expected 20 entries, got %d (lost update)", got)
	}
}
