// Package metrics evaluates anchor metric observations against their
// guardrails. Every function here is pure.
package metrics

import (
	"sort"

	"github.com/hyperengineering/opsdash/internal/types"
)

// DefaultTrendWindow is the number of recent entries GetTrend considers.
const DefaultTrendWindow = 7

// Trend classifies the recent direction of a metric.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

const (
	minTrendEntries = 3
	trendRate       = 0.6
)

// CalculateStatus evaluates value against the metric's guardrails in strict
// order green, yellow, red. A tier whose bound is undefined is skipped, so a
// metric without bounds is always red.
func CalculateStatus(value float64, metric types.AnchorMetric) types.Status {
	g := metric.Guardrails

	if metric.Direction == types.LowerBetter {
		if g.Green.Max != nil && value <= *g.Green.Max {
			return types.StatusGreen
		}
		if g.Yellow.Max != nil && value <= *g.Yellow.Max {
			return types.StatusYellow
		}
		return types.StatusRed
	}

	if g.Green.Min != nil && value >= *g.Green.Min {
		return types.StatusGreen
	}
	if g.Yellow.Min != nil && value >= *g.Yellow.Min {
		return types.StatusYellow
	}
	return types.StatusRed
}

// GetRedAlerts returns one radar item per red entry on date whose metric is
// active. Entries of unknown or inactive metrics are ignored.
func GetRedAlerts(date string, metrics []types.AnchorMetric, entries []types.MetricEntry) []types.RedAlert {
	byID := make(map[string]types.AnchorMetric, len(metrics))
	for _, m := range metrics {
		byID[m.ID] = m
	}

	alerts := []types.RedAlert{}
	for _, e := range entries {
		if e.Date != date || e.Status != types.StatusRed {
			continue
		}
		m, ok := byID[e.MetricID]
		if !ok || !m.IsActive {
			continue
		}
		alerts = append(alerts, types.RedAlert{
			MetricID:   m.ID,
			MetricName: m.Name,
			Value:      e.Value,
			Unit:       m.Unit,
			Action:     m.Playbook.ActionIfRed,
			Addressed:  e.IsAddressed(),
		})
	}
	return alerts
}

// GetTrend classifies the most recent windowDays entries of metricID.
// Fewer than three entries is always stable.
func GetTrend(metricID string, entries []types.MetricEntry, windowDays int) Trend {
	if windowDays <= 0 {
		windowDays = DefaultTrendWindow
	}

	recent := RecentEntries(metricID, entries, windowDays)
	if len(recent) < minTrendEntries {
		return TrendStable
	}

	var green, red int
	for _, e := range recent {
		switch e.Status {
		case types.StatusGreen:
			green++
		case types.StatusRed:
			red++
		}
	}

	total := float64(len(recent))
	switch {
	case float64(green)/total >= trendRate:
		return TrendImproving
	case float64(red)/total >= trendRate:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// RecentEntries returns up to n entries of metricID, newest first.
func RecentEntries(metricID string, entries []types.MetricEntry, n int) []types.MetricEntry {
	var out []types.MetricEntry
	for _, e := range entries {
		if e.MetricID == metricID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
