package sync

import (
	"encoding/json"
	"time"
)

// Table describes one remote sync table. Every table is keyed by user_id
// plus its natural key columns.
type Table struct {
	Name       string
	KeyColumns []string
	// HasPayload is false for tables that store only their key, such as
	// dismissed alert ids.
	HasPayload bool
}

// Remote sync tables, in push and pull order.
var (
	DailyChecks = Table{Name: "daily_checks", KeyColumns: []string{"date"}, HasPayload: true}
	WeeklyPlans = Table{Name: "weekly_plans", KeyColumns: []string{"week_start"}, HasPayload: true}
	ImpactLogs  = Table{Name: "impact_logs", KeyColumns: []string{"date"}, HasPayload: true}
	// DismissedAlerts carries alert ids only.
	DismissedAlerts = Table{Name: "dismissed_alerts", KeyColumns: []string{"alert_id"}}
	AnchorMetrics   = Table{Name: "anchor_metrics", KeyColumns: []string{"metric_id"}, HasPayload: true}
	MetricEntries   = Table{Name: "metric_entries", KeyColumns: []string{"metric_id", "date"}, HasPayload: true}
)

// Tables lists every synchronized table.
var Tables = []Table{DailyChecks, WeeklyPlans, ImpactLogs, DismissedAlerts, AnchorMetrics, MetricEntries}

// Row is one remote record. Keys holds the natural key values in the order of
// Table.KeyColumns.
type Row struct {
	UserID    string          `json:"user_id"`
	Keys      []string        `json:"keys"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Direction selects which way a sync moves data.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// ParseDirection validates s, defaulting an empty value to both.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "":
		return DirectionBoth, nil
	case DirectionPush, DirectionPull, DirectionBoth:
		return Direction(s), nil
	default:
		return "", ErrInvalidDirection
	}
}

// CollectionResult is the outcome of one table in one direction.
type CollectionResult struct {
	Table     string    `json:"table"`
	Direction Direction `json:"direction"`
	Items     int       `json:"items"`
	Attempts  int       `json:"attempts"`
	Skipped   bool      `json:"skipped,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Report summarizes a sync run. Failed collections are reported here, never
// as an error from the engine.
type Report struct {
	UserID     string             `json:"user_id"`
	Direction  Direction          `json:"direction"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []CollectionResult `json:"results"`
}

// Failed returns the number of collections that exhausted their retries.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Error != "" {
			n++
		}
	}
	return n
}
