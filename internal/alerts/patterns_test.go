package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/types"
)

var now = time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)

func daysAgo(n int) string {
	return dates.Format(now.AddDate(0, 0, -n))
}

func calmCheck(date string) types.DailyCheck {
	return types.DailyCheck{
		Date:                date,
		OperationStatus:     types.StatusGreen,
		ContentStatus:       types.ContentFulfilled,
		CommercialAlignment: types.AlignmentAligned,
		TomorrowTrend:       types.TrendSame,
	}
}

func plan(weekStart, center string) types.WeeklyPlan {
	return types.WeeklyPlan{
		WeekStart:    weekStart,
		CenterOfWeek: center,
		Content:      types.WeeklyContent{Theme: "Bastidores", Purpose: types.PurposeWarm},
	}
}

func ids(alerts []types.Alert) map[string]int {
	out := map[string]int{}
	for _, a := range alerts {
		out[a.ID]++
	}
	return out
}

func TestAnalyzePatterns_EmptyHistory(t *testing.T) {
	got := AnalyzePatterns(now, nil, nil, nil, nil)

	require.Len(t, got, 1)
	assert.Equal(t, IDNoPlanning, got[0].ID)
	assert.Equal(t, now.UTC(), got[0].CreatedAt)
}

func TestSustainingAlone_ExactlyOne(t *testing.T) {
	var checks []types.DailyCheck
	for i := 0; i < 3; i++ {
		c := calmCheck(daysAgo(i))
		c.OperationStatus = types.StatusRed
		checks = append(checks, c)
	}

	got := ids(AnalyzePatterns(now, checks, nil, nil, nil))
	assert.Equal(t, 1, got[IDSustainingAlone])
	assert.Equal(t, 1, got[IDNoPlanning])
}

func TestSustainingAlone_IgnoresOldChecks(t *testing.T) {
	var checks []types.DailyCheck
	for _, d := range []int{0, 1, 15} {
		c := calmCheck(daysAgo(d))
		c.OperationStatus = types.StatusRed
		checks = append(checks, c)
	}

	got := ids(AnalyzePatterns(now, checks, nil, nil, nil))
	assert.Zero(t, got[IDSustainingAlone])
}

func TestFocusChanging(t *testing.T) {
	plans := []types.WeeklyPlan{
		plan("2026-10-12", "Vendas"),
		plan("2026-10-05", "Conteúdo"),
		plan("2026-09-28", "Operação"),
	}
	assert.Equal(t, 1, ids(AnalyzePatterns(now, nil, plans, nil, nil))[IDFocusChanging])

	// Case and whitespace do not make a focus distinct.
	plans[1].CenterOfWeek = "  vendas "
	assert.Zero(t, ids(AnalyzePatterns(now, nil, plans, nil, nil))[IDFocusChanging])
}

func TestCommercialDependency(t *testing.T) {
	checks := []types.DailyCheck{calmCheck(daysAgo(0)), calmCheck(daysAgo(1)), calmCheck(daysAgo(2))}
	checks[0].CommercialAlignment = types.AlignmentMisaligned
	checks[1].CommercialAlignment = types.AlignmentPartial

	assert.Equal(t, 1, ids(AnalyzePatterns(now, checks, nil, nil, nil))[IDCommercialDependency])

	// Exactly half does not exceed the threshold.
	assert.Zero(t, ids(AnalyzePatterns(now, checks[1:], nil, nil, nil))[IDCommercialDependency])
}

func TestContentNoPurpose(t *testing.T) {
	plans := []types.WeeklyPlan{
		plan("2026-10-12", "A"),
		plan("2026-10-05", "A"),
		plan("2026-09-28", "A"),
	}
	plans[0].Content.Theme = ""
	plans[1].Content.Purpose = ""
	assert.Zero(t, ids(AnalyzePatterns(now, nil, plans, nil, nil))[IDContentNoPurpose])

	plans[2].Content.Theme = "   "
	assert.Equal(t, 1, ids(AnalyzePatterns(now, nil, plans, nil, nil))[IDContentNoPurpose])
}

func TestCrisisMode(t *testing.T) {
	var checks []types.DailyCheck
	for i := 0; i < 4; i++ {
		c := calmCheck(daysAgo(i))
		c.HasBottleneck = true
		checks = append(checks, c)
	}
	assert.Zero(t, ids(AnalyzePatterns(now, checks, nil, nil, nil))[IDCrisisMode])

	c := calmCheck(daysAgo(10))
	c.HasBottleneck = true
	checks = append(checks, c)
	assert.Equal(t, 1, ids(AnalyzePatterns(now, checks, nil, nil, nil))[IDCrisisMode])
}

func TestNoPlanning(t *testing.T) {
	old := []types.WeeklyPlan{plan("2026-08-03", "Antigo")}
	assert.Equal(t, 1, ids(AnalyzePatterns(now, nil, old, nil, nil))[IDNoPlanning])

	recent := []types.WeeklyPlan{plan("2026-10-12", "Atual")}
	assert.Zero(t, ids(AnalyzePatterns(now, nil, recent, nil, nil))[IDNoPlanning])
}

func TestNegativeTrend_UsesFiveMostRecent(t *testing.T) {
	var checks []types.DailyCheck
	for i := 0; i < 8; i++ {
		checks = append(checks, calmCheck(daysAgo(i)))
	}
	// Three "worse" days, but one falls outside the five most recent.
	for _, i := range []int{0, 2, 6} {
		checks[i].TomorrowTrend = types.TrendWorse
	}
	assert.Zero(t, ids(AnalyzePatterns(now, checks, nil, nil, nil))[IDNegativeTrend])

	checks[4].TomorrowTrend = types.TrendWorse
	assert.Equal(t, 1, ids(AnalyzePatterns(now, checks, nil, nil, nil))[IDNegativeTrend])
}

func TestProjectsStuck_UsesLatestPlan(t *testing.T) {
	stuck := plan("2026-10-12", "A")
	stuck.Projects = []types.Project{
		{ID: "1", IsAdvancing: false},
		{ID: "2", IsAdvancing: false},
		{ID: "3", IsAdvancing: true},
	}
	healthy := plan("2026-10-05", "B")
	healthy.Projects = []types.Project{{ID: "4", IsAdvancing: true}}

	// Order of the input does not matter.
	got := ids(AnalyzePatterns(now, nil, []types.WeeklyPlan{healthy, stuck}, nil, nil))
	assert.Equal(t, 1, got[IDProjectsStuck])

	got = ids(AnalyzePatterns(now, nil, []types.WeeklyPlan{plan("2026-10-12", "A")}, nil, nil))
	assert.Zero(t, got[IDProjectsStuck], "a plan without projects never fires")

	half := plan("2026-10-12", "A")
	half.Projects = []types.Project{{ID: "1"}, {ID: "2", IsAdvancing: true}}
	got = ids(AnalyzePatterns(now, nil, []types.WeeklyPlan{half}, nil, nil))
	assert.Zero(t, got[IDProjectsStuck], "exactly half stuck does not fire")
}

func entries(metricID string, statuses ...types.Status) []types.MetricEntry {
	var out []types.MetricEntry
	for i, s := range statuses {
		out = append(out, types.MetricEntry{MetricID: metricID, Date: daysAgo(i), Status: s})
	}
	return out
}

func TestMetricDrop(t *testing.T) {
	m := types.AnchorMetric{ID: "leads", Name: "Leads", IsActive: true,
		Playbook: types.Playbook{ActionIfRed: "Prospectar"}}
	red := types.StatusRed

	got := AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("leads", red, red, red, types.StatusGreen))
	alert, ok := byID(got, "metric-drop-leads")
	require.True(t, ok)
	assert.Equal(t, "Prospectar", alert.Suggestion)

	got = AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("leads", red, types.StatusYellow, red))
	_, ok = byID(got, "metric-drop-leads")
	assert.False(t, ok)

	m.IsActive = false
	got = AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("leads", red, red, red))
	_, ok = byID(got, "metric-drop-leads")
	assert.False(t, ok, "inactive metrics are skipped")
}

func TestContentNoResults(t *testing.T) {
	m := types.AnchorMetric{ID: "posts", Category: types.CategoryContent, IsActive: true}
	y, r, g := types.StatusYellow, types.StatusRed, types.StatusGreen

	got := ids(AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("posts", y, r, g, y)))
	assert.Equal(t, 1, got["content-no-results-posts"])

	got = ids(AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("posts", y, r)))
	assert.Zero(t, got["content-no-results-posts"])

	m.Category = types.CategoryCommercial
	got = ids(AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("posts", y, r, y)))
	assert.Zero(t, got["content-no-results-posts"])
}

func TestOperationDelays(t *testing.T) {
	m := types.AnchorMetric{ID: "delays", Category: types.CategoryOperation, Direction: types.LowerBetter, IsActive: true}
	r := types.StatusRed

	got := ids(AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("delays", r, types.StatusGreen, r, r)))
	assert.Equal(t, 1, got["operation-delays-delays"])

	// Entries older than the window do not count.
	old := entries("delays", r, r)
	old = append(old, types.MetricEntry{MetricID: "delays", Date: daysAgo(9), Status: r})
	got = ids(AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, old))
	assert.Zero(t, got["operation-delays-delays"])

	m.Direction = types.HigherBetter
	got = ids(AnalyzePatterns(now, nil, nil, []types.AnchorMetric{m}, entries("delays", r, r, r)))
	assert.Zero(t, got["operation-delays-delays"])
}

func TestAnalyzePatterns_AllRulesFireTogether(t *testing.T) {
	var checks []types.DailyCheck
	for i := 0; i < 5; i++ {
		checks = append(checks, types.DailyCheck{
			Date:                daysAgo(i),
			OperationStatus:     types.StatusRed,
			CommercialAlignment: types.AlignmentMisaligned,
			HasBottleneck:       true,
			TomorrowTrend:       types.TrendWorse,
		})
	}

	got := ids(AnalyzePatterns(now, checks, nil, nil, nil))
	for _, id := range []string{IDSustainingAlone, IDCommercialDependency, IDCrisisMode, IDNoPlanning, IDNegativeTrend} {
		assert.Equal(t, 1, got[id], id)
	}
}

func TestFilterDismissed(t *testing.T) {
	all := []types.Alert{{ID: IDNoPlanning}, {ID: IDCrisisMode}, {ID: "metric-drop-x"}}

	got := FilterDismissed(all, []string{IDCrisisMode, "unknown"})
	assert.Equal(t, []types.Alert{{ID: IDNoPlanning}, {ID: "metric-drop-x"}}, got)

	assert.Len(t, FilterDismissed(all, nil), 3)
}

func byID(alerts []types.Alert, id string) (types.Alert, bool) {
	for _, a := range alerts {
		if a.ID == id {
			return a, true
		}
	}
	return types.Alert{}, false
}
