// Package alerts derives behavioural pattern alerts from the user's history.
//
// Alerts are recomputed on every read and never persisted. Only the ids of
// dismissed alerts are stored, so ids must be stable across recomputations.
package alerts

import (
	"sort"
	"strings"
	"time"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/types"
)

// Stable alert ids. Per-metric rules append "-{metricId}".
const (
	IDSustainingAlone      = "sustaining-alone"
	IDFocusChanging        = "focus-changing"
	IDCommercialDependency = "commercial-dependency"
	IDContentNoPurpose     = "content-no-purpose"
	IDCrisisMode           = "crisis-mode"
	IDNoPlanning           = "no-planning"
	IDNegativeTrend        = "negative-trend"
	IDProjectsStuck        = "projects-stuck"
	PrefixMetricDrop       = "metric-drop-"
	PrefixContentNoResults = "content-no-results-"
	PrefixOperationDelays  = "operation-delays-"
)

// Windows, in days back from now.
const (
	checkWindowDays  = 14
	planWindowDays   = 28
	metricWindowDays = 7
)

const (
	minRedOperationDays   = 3
	minDistinctFocuses    = 3
	maxMisalignedFraction = 0.5
	minPlansWithoutTheme  = 3
	minBottleneckDays     = 5
	recentTrendChecks     = 5
	minWorseTrends        = 3
	metricDropEntries     = 3
	minWindowEntries      = 3
	minBadWindowEntries   = 3
)

type rule func(in input) []types.Alert

type input struct {
	now     time.Time
	checks  []types.DailyCheck
	plans   []types.WeeklyPlan
	metrics []types.AnchorMetric
	entries []types.MetricEntry
}

var rules = []rule{
	sustainingAlone,
	focusChanging,
	commercialDependency,
	contentNoPurpose,
	crisisMode,
	noPlanning,
	negativeTrend,
	projectsStuck,
	metricDrop,
	contentNoResults,
	operationDelays,
}

// AnalyzePatterns evaluates every rule against the history and returns all
// alerts that fire. Rules are independent of each other and of input order.
// metrics and entries may be nil.
func AnalyzePatterns(now time.Time, checks []types.DailyCheck, plans []types.WeeklyPlan, metrics []types.AnchorMetric, entries []types.MetricEntry) []types.Alert {
	in := input{now: now, checks: checks, plans: plans, metrics: metrics, entries: entries}

	out := []types.Alert{}
	for _, r := range rules {
		for _, a := range r(in) {
			a.CreatedAt = now.UTC()
			out = append(out, a)
		}
	}
	return out
}

// FilterDismissed drops alerts whose id is in dismissed.
func FilterDismissed(alerts []types.Alert, dismissed []string) []types.Alert {
	skip := make(map[string]struct{}, len(dismissed))
	for _, id := range dismissed {
		skip[id] = struct{}{}
	}

	out := make([]types.Alert, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := skip[a.ID]; !ok {
			out = append(out, a)
		}
	}
	return out
}

func recentChecks(in input) []types.DailyCheck {
	var out []types.DailyCheck
	for _, c := range in.checks {
		if dates.Within(c.Date, in.now, checkWindowDays) {
			out = append(out, c)
		}
	}
	return out
}

func recentPlans(in input) []types.WeeklyPlan {
	var out []types.WeeklyPlan
	for _, p := range in.plans {
		if dates.Within(p.WeekStart, in.now, planWindowDays) {
			out = append(out, p)
		}
	}
	return out
}

func one(id string, typ types.AlertType, message, suggestion string) []types.Alert {
	return []types.Alert{{ID: id, Type: typ, Message: message, Suggestion: suggestion}}
}

func sustainingAlone(in input) []types.Alert {
	red := 0
	for _, c := range recentChecks(in) {
		if c.OperationStatus == types.StatusRed {
			red++
		}
	}
	if red < minRedOperationDays {
		return nil
	}
	return one(IDSustainingAlone, types.AlertWarning,
		"Você está sustentando a operação sozinho: vários dias com a operação no vermelho nas últimas duas semanas.",
		"Liste o que só você consegue fazer e delegue o restante ainda esta semana.")
}

func focusChanging(in input) []types.Alert {
	plans := recentPlans(in)
	if len(plans) < minDistinctFocuses {
		return nil
	}
	focuses := make(map[string]struct{})
	for _, p := range plans {
		focuses[strings.ToLower(strings.TrimSpace(p.CenterOfWeek))] = struct{}{}
	}
	if len(focuses) < minDistinctFocuses {
		return nil
	}
	return one(IDFocusChanging, types.AlertCaution,
		"O centro da semana mudou em quase todas as últimas semanas.",
		"Escolha um foco para o próximo mês e repita-o até ver resultado.")
}

func commercialDependency(in input) []types.Alert {
	checks := recentChecks(in)
	if len(checks) == 0 {
		return nil
	}
	off := 0
	for _, c := range checks {
		if c.CommercialAlignment == types.AlignmentMisaligned || c.CommercialAlignment == types.AlignmentPartial {
			off++
		}
	}
	if float64(off)/float64(len(checks)) <= maxMisalignedFraction {
		return nil
	}
	return one(IDCommercialDependency, types.AlertCaution,
		"Na maior parte dos dias recentes o trabalho não esteve alinhado ao foco comercial.",
		"Reserve o primeiro bloco do dia para uma ação comercial concreta.")
}

func contentNoPurpose(in input) []types.Alert {
	missing := 0
	for _, p := range recentPlans(in) {
		if strings.TrimSpace(p.Content.Theme) == "" || p.Content.Purpose == "" {
			missing++
		}
	}
	if missing < minPlansWithoutTheme {
		return nil
	}
	return one(IDContentNoPurpose, types.AlertInfo,
		"Seus conteúdos das últimas semanas não tiveram tema ou objetivo definido.",
		"Defina no planejamento semanal se o conteúdo vai atrair, aquecer ou vender.")
}

func crisisMode(in input) []types.Alert {
	blocked := 0
	for _, c := range recentChecks(in) {
		if c.HasBottleneck {
			blocked++
		}
	}
	if blocked < minBottleneckDays {
		return nil
	}
	return one(IDCrisisMode, types.AlertWarning,
		"Modo crise: gargalos registrados em muitos dos últimos dias.",
		"Identifique o gargalo que mais se repete e resolva a causa, não o sintoma.")
}

func noPlanning(in input) []types.Alert {
	if len(recentPlans(in)) > 0 {
		return nil
	}
	return one(IDNoPlanning, types.AlertInfo,
		"Nenhum planejamento semanal nas últimas quatro semanas.",
		"Tire 15 minutos na segunda-feira para definir o centro da semana.")
}

func negativeTrend(in input) []types.Alert {
	checks := append([]types.DailyCheck(nil), in.checks...)
	sort.SliceStable(checks, func(i, j int) bool { return checks[i].Date > checks[j].Date })
	if len(checks) > recentTrendChecks {
		checks = checks[:recentTrendChecks]
	}

	worse := 0
	for _, c := range checks {
		if c.TomorrowTrend == types.TrendWorse {
			worse++
		}
	}
	if worse < minWorseTrends {
		return nil
	}
	return one(IDNegativeTrend, types.AlertCaution,
		"Você tem esperado dias piores com frequência.",
		"Anote o que está pesando e converse com alguém de confiança sobre isso.")
}

func projectsStuck(in input) []types.Alert {
	if len(in.plans) == 0 {
		return nil
	}
	latest := in.plans[0]
	for _, p := range in.plans[1:] {
		if p.WeekStart > latest.WeekStart {
			latest = p
		}
	}
	if len(latest.Projects) == 0 {
		return nil
	}

	stuck := 0
	for _, p := range latest.Projects {
		if !p.IsAdvancing {
			stuck++
		}
	}
	if stuck*2 <= len(latest.Projects) {
		return nil
	}
	return one(IDProjectsStuck, types.AlertWarning,
		"Mais da metade dos projetos da semana não está avançando.",
		"Para cada projeto parado, defina o próximo passo e quem depende de quem.")
}

// entriesByMetric groups entries per metric id, newest first.
func entriesByMetric(entries []types.MetricEntry) map[string][]types.MetricEntry {
	out := make(map[string][]types.MetricEntry)
	for _, e := range entries {
		out[e.MetricID] = append(out[e.MetricID], e)
	}
	for id := range out {
		list := out[id]
		sort.SliceStable(list, func(i, j int) bool { return list[i].Date > list[j].Date })
	}
	return out
}

func metricDrop(in input) []types.Alert {
	byMetric := entriesByMetric(in.entries)

	var out []types.Alert
	for _, m := range in.metrics {
		if !m.IsActive {
			continue
		}
		recent := byMetric[m.ID]
		if len(recent) < metricDropEntries {
			continue
		}
		allRed := true
		for _, e := range recent[:metricDropEntries] {
			if e.Status != types.StatusRed {
				allRed = false
				break
			}
		}
		if !allRed {
			continue
		}
		out = append(out, types.Alert{
			ID:         PrefixMetricDrop + m.ID,
			Type:       types.AlertWarning,
			Message:    "A métrica \"" + m.Name + "\" ficou no vermelho nos três últimos registros.",
			Suggestion: m.Playbook.ActionIfRed,
		})
	}
	return out
}

// windowEntries returns the entries of metricID within the metric window.
func windowEntries(in input, metricID string) []types.MetricEntry {
	var out []types.MetricEntry
	for _, e := range in.entries {
		if e.MetricID == metricID && dates.Within(e.Date, in.now, metricWindowDays) {
			out = append(out, e)
		}
	}
	return out
}

func contentNoResults(in input) []types.Alert {
	var out []types.Alert
	for _, m := range in.metrics {
		if !m.IsActive || m.Category != types.CategoryContent {
			continue
		}
		entries := windowEntries(in, m.ID)
		if len(entries) < minWindowEntries {
			continue
		}
		bad := 0
		for _, e := range entries {
			if e.Status == types.StatusYellow || e.Status == types.StatusRed {
				bad++
			}
		}
		if bad < minBadWindowEntries {
			continue
		}
		out = append(out, types.Alert{
			ID:         PrefixContentNoResults + m.ID,
			Type:       types.AlertCaution,
			Message:    "O conteúdo não está trazendo resultado em \"" + m.Name + "\" nesta semana.",
			Suggestion: "Revise o tema e o objetivo do conteúdo antes de produzir mais.",
		})
	}
	return out
}

func operationDelays(in input) []types.Alert {
	var out []types.Alert
	for _, m := range in.metrics {
		if !m.IsActive || m.Category != types.CategoryOperation || m.Direction != types.LowerBetter {
			continue
		}
		entries := windowEntries(in, m.ID)
		if len(entries) < minWindowEntries {
			continue
		}
		red := 0
		for _, e := range entries {
			if e.Status == types.StatusRed {
				red++
			}
		}
		if red < minBadWindowEntries {
			continue
		}
		out = append(out, types.Alert{
			ID:         PrefixOperationDelays + m.ID,
			Type:       types.AlertWarning,
			Message:    "Atrasos recorrentes em \"" + m.Name + "\" nos últimos sete dias.",
			Suggestion: m.Playbook.ActionIfRed,
		})
	}
	return out
}
