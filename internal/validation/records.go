package validation

import (
	"time"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/types"
)

// Field length limits for free text.
const (
	MaxNameLength        = 120
	MaxTextLength        = 2000
	MaxProjectsPerWeek   = 20
	MaxImpactItemsPerDay = 50
)

// ValidateDailyCheck validates a complete daily check.
func ValidateDailyCheck(c types.DailyCheck) []ValidationError {
	var v Collector

	v.Add(ValidateDate("date", c.Date))
	v.Add(ValidateEnum("operationStatus", c.OperationStatus,
		types.StatusGreen, types.StatusYellow, types.StatusRed))
	v.Add(ValidateEnum("contentStatus", c.ContentStatus,
		types.ContentFulfilled, types.ContentAtRisk, types.ContentNotPriority))
	v.Add(ValidateEnum("commercialAlignment", c.CommercialAlignment,
		types.AlignmentAligned, types.AlignmentPartial, types.AlignmentMisaligned))
	v.Add(ValidateEnum("tomorrowTrend", c.TomorrowTrend,
		types.TrendBetter, types.TrendSame, types.TrendWorse))
	v.Add(ValidateText("bottleneckDescription", c.BottleneckDescription))
	v.Add(ValidateMaxLength("bottleneckDescription", c.BottleneckDescription, types.MaxBottleneckLength))

	return v.Errors()
}

// ValidateWeeklyPlan validates a weekly plan. WeekStart must be a Monday.
func ValidateWeeklyPlan(p types.WeeklyPlan) []ValidationError {
	var v Collector

	if err := ValidateDate("weekStart", p.WeekStart); err != nil {
		v.Add(err)
	} else if t, _ := time.Parse(dates.Layout, p.WeekStart); dates.WeekStart(t) != p.WeekStart {
		v.Add(&ValidationError{Field: "weekStart", Message: "must be a Monday"})
	}

	v.Add(ValidateText("centerOfWeek", p.CenterOfWeek))
	v.Add(ValidateMaxLength("centerOfWeek", p.CenterOfWeek, MaxNameLength))
	v.Add(ValidateText("content.theme", p.Content.Theme))
	v.Add(ValidateMaxLength("content.theme", p.Content.Theme, MaxNameLength))
	if p.Content.Purpose != "" {
		v.Add(ValidateEnum("content.purpose", p.Content.Purpose,
			types.PurposeGrow, types.PurposeWarm, types.PurposeSell))
	}

	if len(p.Projects) > MaxProjectsPerWeek {
		v.Add(&ValidationError{Field: "projects", Message: "too many projects"})
	}
	for _, pr := range p.Projects {
		v.Add(ValidateRequired("projects.name", pr.Name))
		v.Add(ValidateMaxLength("projects.name", pr.Name, MaxNameLength))
		v.Add(ValidateEnum("projects.dependsOn", pr.DependsOn, types.DependsOnMe, types.DependsOnOthers))
	}

	return v.Errors()
}

// ValidateImpactLog validates an impact log.
func ValidateImpactLog(l types.ImpactLog) []ValidationError {
	var v Collector

	v.Add(ValidateDate("date", l.Date))
	v.Add(ValidateText("reflection", l.Reflection))
	v.Add(ValidateMaxLength("reflection", l.Reflection, MaxTextLength))

	for field, items := range map[string][]string{
		"operation":  l.Operation,
		"content":    l.Content,
		"commercial": l.Commercial,
	} {
		if len(items) > MaxImpactItemsPerDay {
			v.Add(&ValidationError{Field: field, Message: "too many items"})
		}
		for _, it := range items {
			v.Add(ValidateText(field, it))
			v.Add(ValidateMaxLength(field, it, MaxTextLength))
		}
	}

	return v.Errors()
}

// ValidateMetricEntry validates an entry as submitted. Status and UpdatedAt
// are derived by the server and are not checked.
func ValidateMetricEntry(e types.MetricEntry) []ValidationError {
	var v Collector

	v.Add(ValidateRequired("metricId", e.MetricID))
	v.Add(ValidateDate("date", e.Date))
	v.Add(ValidateFinite("value", e.Value))

	return v.Errors()
}

// ValidateAnchorMetric validates a metric definition including guardrail
// ordering.
func ValidateAnchorMetric(m types.AnchorMetric) []ValidationError {
	var v Collector

	v.Add(ValidateRequired("name", m.Name))
	v.Add(ValidateText("name", m.Name))
	v.Add(ValidateMaxLength("name", m.Name, MaxNameLength))
	v.Add(ValidateEnum("category", m.Category,
		types.CategoryOperation, types.CategoryContent, types.CategoryCommercial))
	v.Add(ValidateEnum("frequency", m.Frequency, types.FrequencyDaily, types.FrequencyWeekly))
	v.Add(ValidateEnum("direction", m.Direction, types.HigherBetter, types.LowerBetter))
	v.Add(ValidateMaxLength("unit", m.Unit, MaxNameLength))
	v.Add(ValidateMaxLength("sourceNote", m.SourceNote, MaxTextLength))
	v.Add(ValidateMaxLength("playbook.actionIfYellow", m.Playbook.ActionIfYellow, MaxTextLength))
	v.Add(ValidateMaxLength("playbook.actionIfRed", m.Playbook.ActionIfRed, MaxTextLength))

	for _, err := range ValidateGuardrails(m.Direction, m.Guardrails) {
		v.Add(&err)
	}

	return v.Errors()
}

// ValidateGuardrails checks that green is at least as strict as yellow, and
// yellow at least as strict as red, for the metric's direction. Undefined
// bounds are not compared.
func ValidateGuardrails(d types.Direction, g types.Guardrails) []ValidationError {
	var v Collector

	for _, b := range []struct {
		field string
		value *float64
	}{
		{"guardrails.green.min", g.Green.Min}, {"guardrails.green.max", g.Green.Max},
		{"guardrails.yellow.min", g.Yellow.Min}, {"guardrails.yellow.max", g.Yellow.Max},
		{"guardrails.red.min", g.Red.Min}, {"guardrails.red.max", g.Red.Max},
	} {
		if b.value != nil {
			v.Add(ValidateFinite(b.field, *b.value))
		}
	}

	// atLeast reports a failure when both bounds exist and a < b.
	atLeast := func(field string, a, b *float64, msg string) {
		if a != nil && b != nil && *a < *b {
			v.Add(&ValidationError{Field: field, Message: msg})
		}
	}

	switch d {
	case types.LowerBetter:
		atLeast("guardrails.yellow.max", g.Yellow.Max, g.Green.Max, "must be greater than or equal to green.max")
		atLeast("guardrails.red.min", g.Red.Min, g.Yellow.Max, "must be greater than or equal to yellow.max")
		atLeast("guardrails.red.min", g.Red.Min, g.Green.Max, "must be greater than or equal to green.max")
	default:
		atLeast("guardrails.green.min", g.Green.Min, g.Yellow.Min, "must be greater than or equal to yellow.min")
		atLeast("guardrails.yellow.min", g.Yellow.Min, g.Red.Max, "must be greater than or equal to red.max")
		atLeast("guardrails.green.min", g.Green.Min, g.Red.Max, "must be greater than or equal to red.max")
	}

	return v.Errors()
}
