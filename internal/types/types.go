package types

import "time"

// Status is the traffic-light state shared by daily checks and metric entries.
type Status string

const (
	StatusGreen  Status = "green"
	StatusYellow Status = "yellow"
	StatusRed    Status = "red"
)

// ContentStatus describes how content commitments went on a given day.
type ContentStatus string

const (
	ContentFulfilled   ContentStatus = "fulfilled"
	ContentAtRisk      ContentStatus = "at-risk"
	ContentNotPriority ContentStatus = "not-priority"
)

// CommercialAlignment describes how well the day matched the commercial focus.
type CommercialAlignment string

const (
	AlignmentAligned    CommercialAlignment = "aligned"
	AlignmentPartial    CommercialAlignment = "partial"
	AlignmentMisaligned CommercialAlignment = "misaligned"
)

// Trend is the forward-looking sentiment recorded in a daily check.
type Trend string

const (
	TrendBetter Trend = "better"
	TrendSame   Trend = "same"
	TrendWorse  Trend = "worse"
)

// ContentPurpose is the intent of the week's content theme.
type ContentPurpose string

const (
	PurposeGrow ContentPurpose = "grow"
	PurposeWarm ContentPurpose = "warm"
	PurposeSell ContentPurpose = "sell"
)

// Dependency records who a project is waiting on.
type Dependency string

const (
	DependsOnMe     Dependency = "me"
	DependsOnOthers Dependency = "others"
)

// MetricCategory groups anchor metrics by business area.
type MetricCategory string

const (
	CategoryOperation  MetricCategory = "Operação"
	CategoryContent    MetricCategory = "Conteúdo"
	CategoryCommercial MetricCategory = "Comercial"
)

// Frequency is how often a metric is expected to be recorded.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Direction tells the metrics engine which way is "better".
type Direction string

const (
	HigherBetter Direction = "higher_better"
	LowerBetter  Direction = "lower_better"
)

// AlertType is the severity bucket of a derived alert.
type AlertType string

const (
	AlertWarning AlertType = "warning"
	AlertInfo    AlertType = "info"
	AlertCaution AlertType = "caution"
)

// MaxBottleneckLength is the limit for DailyCheck.BottleneckDescription, in characters.
const MaxBottleneckLength = 140

// DailyCheck is the once-per-day structured self-report. Unique per Date.
type DailyCheck struct {
	Date                  string              `json:"date"`
	OperationStatus       Status              `json:"operationStatus"`
	ContentStatus         ContentStatus       `json:"contentStatus"`
	CommercialAlignment   CommercialAlignment `json:"commercialAlignment"`
	HasBottleneck         bool                `json:"hasBottleneck"`
	BottleneckDescription string              `json:"bottleneckDescription,omitempty"`
	TomorrowTrend         Trend               `json:"tomorrowTrend"`
}

// Project is nested inside a WeeklyPlan and has no lifecycle of its own.
type Project struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	IsAdvancing   bool       `json:"isAdvancing"`
	DependsOn     Dependency `json:"dependsOn"`
	NextStepClear bool       `json:"nextStepClear"`
}

// WeeklyContent is the content posture of a week.
type WeeklyContent struct {
	Theme   string         `json:"theme"`
	Purpose ContentPurpose `json:"purpose"`
}

// WeeklyCommercial is the commercial posture of a week.
type WeeklyCommercial struct {
	FocusClear       bool `json:"focusClear"`
	HasActiveActions bool `json:"hasActiveActions"`
}

// WeeklyPlan is keyed by WeekStart, the ISO date of the week's Monday.
type WeeklyPlan struct {
	WeekStart    string           `json:"weekStart"`
	CenterOfWeek string           `json:"centerOfWeek"`
	Projects     []Project        `json:"projects"`
	Content      WeeklyContent    `json:"content"`
	Commercial   WeeklyCommercial `json:"commercial"`
}

// ImpactLog collects the day's impact notes per area. Unique per Date.
type ImpactLog struct {
	Date       string   `json:"date"`
	Operation  []string `json:"operation"`
	Content    []string `json:"content"`
	Commercial []string `json:"commercial"`
	Reflection string   `json:"reflection"`
}

// Bound is one edge of a guardrail tier. Nil fields are undefined.
type Bound struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Guardrails holds the three status tiers of a metric.
type Guardrails struct {
	Green  Bound `json:"green"`
	Yellow Bound `json:"yellow"`
	Red    Bound `json:"red"`
}

// Playbook is the action to take when a metric leaves green.
type Playbook struct {
	ActionIfYellow string `json:"actionIfYellow"`
	ActionIfRed    string `json:"actionIfRed"`
}

// AnchorMetric is a user-defined KPI evaluated against guardrails.
type AnchorMetric struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Category   MetricCategory `json:"category"`
	Frequency  Frequency      `json:"frequency"`
	Direction  Direction      `json:"direction"`
	Unit       string         `json:"unit"`
	SourceNote string         `json:"sourceNote"`
	Guardrails Guardrails     `json:"guardrails"`
	Playbook   Playbook       `json:"playbook"`
	IsActive   bool           `json:"isActive"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// MetricEntry is one observation of a metric. Unique per (MetricID, Date).
// Status is derived when the entry is written.
type MetricEntry struct {
	MetricID  string    `json:"metricId"`
	Date      string    `json:"date"`
	Value     float64   `json:"value"`
	Status    Status    `json:"status"`
	Addressed *bool     `json:"addressed,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAddressed reports the optional Addressed flag, defaulting to false.
func (e MetricEntry) IsAddressed() bool {
	return e.Addressed != nil && *e.Addressed
}

// Alert is derived on every read and never persisted.
type Alert struct {
	ID         string    `json:"id"`
	Type       AlertType `json:"type"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RedAlert is one entry of the red radar for a date.
type RedAlert struct {
	MetricID   string  `json:"metricId"`
	MetricName string  `json:"metricName"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Action     string  `json:"action"`
	Addressed  bool    `json:"addressed"`
}

// Preferences is the per-user singleton of UI settings.
type Preferences struct {
	OnboardingCompleted bool   `json:"onboardingCompleted"`
	DisplayName         string `json:"displayName,omitempty"`
	Theme               string `json:"theme,omitempty"`
}

// ExportDocument is the file format produced by export and accepted by import.
type ExportDocument struct {
	DailyChecks   []DailyCheck   `json:"dailyChecks"`
	WeeklyPlans   []WeeklyPlan   `json:"weeklyPlans"`
	ImpactLogs    []ImpactLog    `json:"impactLogs"`
	AnchorMetrics []AnchorMetric `json:"anchorMetrics"`
	MetricEntries []MetricEntry  `json:"metricEntries"`
	ExportedAt    time.Time      `json:"exportedAt"`
}

// Float returns a pointer to v, for building guardrail bounds.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
