package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/opsdash/internal/dates"
	"github.com/hyperengineering/opsdash/internal/metrics"
	"github.com/hyperengineering/opsdash/internal/types"
	"github.com/hyperengineering/opsdash/internal/validation"
)

// ErrMetricNotFound is returned when no metric name matches a metric command.
var ErrMetricNotFound = errors.New("metric not found")

// InvalidError reports a command whose resulting record fails validation.
type InvalidError struct {
	Action string
	Errors []validation.ValidationError
}

func (e *InvalidError) Error() string {
	fields := make([]string, len(e.Errors))
	for i, v := range e.Errors {
		fields[i] = v.Field + " " + v.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Action, strings.Join(fields, "; "))
}

// Store is the local store surface used by the executor.
type Store interface {
	Now() time.Time
	GetDailyCheck(ctx context.Context, date string) (types.DailyCheck, bool)
	SaveDailyCheck(ctx context.Context, check types.DailyCheck)
	GetAnchorMetrics(ctx context.Context) []types.AnchorMetric
	SaveMetricEntry(ctx context.Context, entry types.MetricEntry)
	GetWeeklyPlan(ctx context.Context, weekStart string) (types.WeeklyPlan, bool)
	SaveWeeklyPlan(ctx context.Context, plan types.WeeklyPlan)
	GetImpactLog(ctx context.Context, date string) (types.ImpactLog, bool)
	SaveImpactLog(ctx context.Context, log types.ImpactLog)
}

// Notifier is told after every successful mutation. The local store has no
// change feed of its own.
type Notifier interface {
	Notify()
}

// Result describes an applied command.
type Result struct {
	Action  string `json:"action"`
	Summary string `json:"summary"`
}

// Executor applies commands through the same derivation and validation
// rules as the HTTP surface.
type Executor struct {
	store    Store
	notifier Notifier
}

// NewExecutor creates an executor. notifier may be nil.
func NewExecutor(s Store, n Notifier) *Executor {
	return &Executor{store: s, notifier: n}
}

// Execute applies cmd. Unknown actions are logged and ignored, returning a
// nil result and nil error.
func (x *Executor) Execute(ctx context.Context, cmd *Command) (*Result, error) {
	if cmd == nil {
		return nil, nil
	}

	var (
		res *Result
		err error
	)
	switch cmd.Action {
	case ActionUpdateDailyCheck:
		res, err = x.updateDailyCheck(ctx, cmd.Data)
	case ActionUpdateMetricEntry:
		res, err = x.updateMetricEntry(ctx, cmd.Data)
	case ActionUpdateWeeklyPlan:
		res, err = x.updateWeeklyPlan(ctx, cmd.Data)
	case ActionAddImpactLog:
		res, err = x.addImpactLog(ctx, cmd.Data)
	default:
		slog.Warn("ignoring unknown command",
			"component", "command",
			"action", cmd.Action,
		)
		return nil, nil
	}

	if err != nil {
		slog.Error("command failed",
			"component", "command",
			"action", cmd.Action,
			"error", err,
		)
		return nil, err
	}

	slog.Info("command applied",
		"component", "command",
		"action", cmd.Action,
		"summary", res.Summary,
	)
	if x.notifier != nil {
		x.notifier.Notify()
	}
	return res, nil
}

func decode(action string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decode %s data: %v", ErrMalformedBlock, action, err)
	}
	return nil
}

type dailyCheckPatch struct {
	OperationStatus       *types.Status              `json:"operationStatus"`
	ContentStatus         *types.ContentStatus       `json:"contentStatus"`
	CommercialAlignment   *types.CommercialAlignment `json:"commercialAlignment"`
	HasBottleneck         *bool                      `json:"hasBottleneck"`
	BottleneckDescription *string                    `json:"bottleneckDescription"`
	TomorrowTrend         *types.Trend               `json:"tomorrowTrend"`
}

func (x *Executor) updateDailyCheck(ctx context.Context, data json.RawMessage) (*Result, error) {
	var patch dailyCheckPatch
	if err := decode(ActionUpdateDailyCheck, data, &patch); err != nil {
		return nil, err
	}

	today := dates.Today(x.store.Now())
	check, ok := x.store.GetDailyCheck(ctx, today)
	if !ok {
		check = types.DailyCheck{
			Date:                today,
			OperationStatus:     types.StatusGreen,
			ContentStatus:       types.ContentFulfilled,
			CommercialAlignment: types.AlignmentAligned,
			TomorrowTrend:       types.TrendSame,
		}
	}

	if patch.OperationStatus != nil {
		check.OperationStatus = *patch.OperationStatus
	}
	if patch.ContentStatus != nil {
		check.ContentStatus = *patch.ContentStatus
	}
	if patch.CommercialAlignment != nil {
		check.CommercialAlignment = *patch.CommercialAlignment
	}
	if patch.HasBottleneck != nil {
		check.HasBottleneck = *patch.HasBottleneck
	}
	if patch.BottleneckDescription != nil {
		check.BottleneckDescription = *patch.BottleneckDescription
	}
	if patch.TomorrowTrend != nil {
		check.TomorrowTrend = *patch.TomorrowTrend
	}
	if !check.HasBottleneck {
		check.BottleneckDescription = ""
	}

	if errs := validation.ValidateDailyCheck(check); len(errs) > 0 {
		return nil, &InvalidError{Action: ActionUpdateDailyCheck, Errors: errs}
	}

	x.store.SaveDailyCheck(ctx, check)
	return &Result{Action: ActionUpdateDailyCheck, Summary: "daily check " + today + " updated"}, nil
}

type metricEntryData struct {
	MetricName string   `json:"metricName"`
	Value      *float64 `json:"value"`
	Date       string   `json:"date"`
}

func (x *Executor) updateMetricEntry(ctx context.Context, data json.RawMessage) (*Result, error) {
	var in metricEntryData
	if err := decode(ActionUpdateMetricEntry, data, &in); err != nil {
		return nil, err
	}
	if in.Value == nil {
		return nil, &InvalidError{
			Action: ActionUpdateMetricEntry,
			Errors: []validation.ValidationError{{Field: "value", Message: "is required"}},
		}
	}

	metric, ok := MatchMetric(in.MetricName, x.store.GetAnchorMetrics(ctx))
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMetricNotFound, in.MetricName)
	}

	now := x.store.Now()
	if in.Date == "" {
		in.Date = dates.Today(now)
	}

	entry := types.MetricEntry{
		MetricID:  metric.ID,
		Date:      in.Date,
		Value:     *in.Value,
		Status:    metrics.CalculateStatus(*in.Value, metric),
		UpdatedAt: now.UTC(),
	}
	if errs := validation.ValidateMetricEntry(entry); len(errs) > 0 {
		return nil, &InvalidError{Action: ActionUpdateMetricEntry, Errors: errs}
	}

	x.store.SaveMetricEntry(ctx, entry)
	return &Result{
		Action:  ActionUpdateMetricEntry,
		Summary: fmt.Sprintf("%s = %g (%s) on %s", metric.Name, entry.Value, entry.Status, entry.Date),
	}, nil
}

// MatchMetric finds a metric by name: an exact case-insensitive match wins,
// otherwise the first metric whose name contains name.
func MatchMetric(name string, all []types.AnchorMetric) (types.AnchorMetric, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return types.AnchorMetric{}, false
	}

	for _, m := range all {
		if strings.ToLower(m.Name) == needle {
			return m, true
		}
	}
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Name), needle) {
			return m, true
		}
	}
	return types.AnchorMetric{}, false
}

type weeklyPlanPatch struct {
	CenterOfWeek *string                 `json:"centerOfWeek"`
	Projects     []types.Project         `json:"projects"`
	Content      *types.WeeklyContent    `json:"content"`
	Commercial   *types.WeeklyCommercial `json:"commercial"`
}

func (x *Executor) updateWeeklyPlan(ctx context.Context, data json.RawMessage) (*Result, error) {
	var patch weeklyPlanPatch
	if err := decode(ActionUpdateWeeklyPlan, data, &patch); err != nil {
		return nil, err
	}

	weekStart := dates.WeekStart(x.store.Now())
	plan, ok := x.store.GetWeeklyPlan(ctx, weekStart)
	if !ok {
		plan = types.WeeklyPlan{WeekStart: weekStart, Projects: []types.Project{}}
	}

	if patch.CenterOfWeek != nil {
		plan.CenterOfWeek = *patch.CenterOfWeek
	}
	if patch.Projects != nil {
		for i := range patch.Projects {
			if patch.Projects[i].ID == "" {
				patch.Projects[i].ID = ulid.Make().String()
			}
			if patch.Projects[i].DependsOn == "" {
				patch.Projects[i].DependsOn = types.DependsOnMe
			}
		}
		plan.Projects = patch.Projects
	}
	if patch.Content != nil {
		plan.Content = *patch.Content
	}
	if patch.Commercial != nil {
		plan.Commercial = *patch.Commercial
	}

	if errs := validation.ValidateWeeklyPlan(plan); len(errs) > 0 {
		return nil, &InvalidError{Action: ActionUpdateWeeklyPlan, Errors: errs}
	}

	x.store.SaveWeeklyPlan(ctx, plan)
	return &Result{Action: ActionUpdateWeeklyPlan, Summary: "weekly plan " + weekStart + " updated"}, nil
}

type impactLogData struct {
	Category   string `json:"category"`
	Reflection string `json:"reflection"`
	Text       string `json:"text"`
}

// impactCategory maps the accepted category spellings to a log area.
func impactCategory(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "operation", "operação", "operacao":
		return "operation", true
	case "content", "conteúdo", "conteudo":
		return "content", true
	case "commercial", "comercial":
		return "commercial", true
	}
	return "", false
}

func (x *Executor) addImpactLog(ctx context.Context, data json.RawMessage) (*Result, error) {
	var in impactLogData
	if err := decode(ActionAddImpactLog, data, &in); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(in.Reflection)
	if text == "" {
		text = strings.TrimSpace(in.Text)
	}
	area, ok := impactCategory(in.Category)

	var v validation.Collector
	v.Add(validation.ValidateRequired("reflection", text))
	if !ok {
		v.Add(&validation.ValidationError{Field: "category", Message: "must be one of: operation, content, commercial"})
	}
	if v.HasErrors() {
		return nil, &InvalidError{Action: ActionAddImpactLog, Errors: v.Errors()}
	}

	today := dates.Today(x.store.Now())
	log, found := x.store.GetImpactLog(ctx, today)
	if !found {
		log = types.ImpactLog{Date: today, Operation: []string{}, Content: []string{}, Commercial: []string{}}
	}

	switch area {
	case "operation":
		log.Operation = append(log.Operation, text)
	case "content":
		log.Content = append(log.Content, text)
	case "commercial":
		log.Commercial = append(log.Commercial, text)
	}

	if errs := validation.ValidateImpactLog(log); len(errs) > 0 {
		return nil, &InvalidError{Action: ActionAddImpactLog, Errors: errs}
	}

	x.store.SaveImpactLog(ctx, log)
	return &Result{Action: ActionAddImpactLog, Summary: area + " impact logged for " + today}, nil
}
