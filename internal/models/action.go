package models

// Priority is the ranked urgency label assigned by the prioritizer.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
	PriorityNone     Priority = "NONE"
)

// Confidence is the coarse confidence label attached to an ActionItem.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// ActionType is the recommended next step derived from priority and
// days-to-critical.
type ActionType string

const (
	ActionStopImmediately   ActionType = "STOP_IMMEDIATELY"
	ActionInspect           ActionType = "INSPECT"
	ActionScheduleToday     ActionType = "SCHEDULE_TODAY"
	ActionScheduleThisWeek  ActionType = "SCHEDULE_THIS_WEEK"
	ActionScheduleThisMonth ActionType = "SCHEDULE_THIS_MONTH"
	ActionMonitor           ActionType = "MONITOR"
	ActionNone              ActionType = "NO_ACTION"
)

// FleetWideTruckID is the sentinel truck_id used by fleet-level items rather
// than a single truck's.
const FleetWideTruckID = "FLEET"

// CostRange is the parsed form of a display-string cost estimate. The core
// stores the parsed range and renders the display string only at the edge,
// resolving the source data's numeric/string drift on ingress.
type CostRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// ActionItem is a prioritizable recommendation synthesized from detector
// signals, possibly merged with duplicates, and never mutated after
// emission into a snapshot.
type ActionItem struct {
	ID       string   `json:"id"`
	TruckID  string   `json:"truck_id"`
	Priority Priority `json:"priority"`
	PriorityScore float64 `json:"priority_score"`

	Category  string `json:"category"`
	Component string `json:"component"`

	Title       string `json:"title"`
	Description string `json:"description"`

	DaysToCritical *float64   `json:"days_to_critical,omitempty"`
	CostIfIgnored  *CostRange `json:"cost_if_ignored,omitempty"`

	CurrentValue *string `json:"current_value,omitempty"`
	Trend        *string `json:"trend,omitempty"`
	Threshold    *string `json:"threshold,omitempty"`

	Confidence Confidence `json:"confidence"`
	ActionType ActionType `json:"action_type"`

	ActionSteps []string `json:"action_steps,omitempty"`
	Icon        string   `json:"icon"`
	Sources     []string `json:"sources"`
}

// RiskLevel is the coarse label derived from TruckRiskScore.RiskScore.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// TruckRiskScore is the per-truck aggregate recomputed each snapshot cycle.
type TruckRiskScore struct {
	TruckID                string    `json:"truck_id"`
	RiskScore               float64   `json:"risk_score"`
	RiskLevel               RiskLevel `json:"risk_level"`
	ContributingFactors     []string  `json:"contributing_factors"`
	DaysSinceLastMaintenance *float64 `json:"days_since_last_maintenance,omitempty"`
	ActiveIssuesCount       int       `json:"active_issues_count"`
	PredictedFailureDays    *float64  `json:"predicted_failure_days,omitempty"`
}

// UrgencySummary counts action items by priority for one snapshot cycle.
type UrgencySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// HealthTrend classifies the short-term direction of fleet_health_score.
type HealthTrend string

const (
	HealthImproving HealthTrend = "improving"
	HealthStable    HealthTrend = "stable"
	HealthDeclining HealthTrend = "declining"
)

// FleetHealthSnapshot is one append-only entry in the bounded trend ring.
type FleetHealthSnapshot struct {
	Timestamp      string         `json:"timestamp"`
	Score          float64        `json:"score"`
	Status         string         `json:"status"`
	Trend          HealthTrend    `json:"trend"`
	Description    string         `json:"description"`
	UrgencySummary UrgencySummary `json:"urgency_summary"`
	TotalTrucks    int            `json:"total_trucks"`
	ActiveTrucks   int            `json:"active_trucks"`
}

// SensorPredicate is one activation condition within a FailurePattern: the
// named sensor must sit on the configured side of threshold, persistently,
// for at least minReadings consecutive buffered samples.
type SensorPredicate struct {
	Sensor      string  `json:"sensor"`
	Threshold   float64 `json:"threshold"`
	Above       bool    `json:"above"`
	MinReadings int     `json:"min_readings"`
}

// FailurePattern is configuration, not state: a named multi-sensor
// correlation rule consumed by the correlation engine.
type FailurePattern struct {
	Name                string             `json:"name"`
	PrimarySensor        string             `json:"primary_sensor"`
	CorrelatedSensors     []SensorPredicate  `json:"correlated_sensors"`
	PredictedComponent   string             `json:"predicted_component"`
	RecommendedAction    string             `json:"recommended_action"`
	ConfidenceScore      float64            `json:"confidence_score"`
}
