// Package actions turns every upstream detector signal
// into a normalized ActionItem, using the component-normalization and cost
// tables from configuration.
package actions

import (
	"fmt"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/correlation"
	"github.com/fleetops/fuelcore/internal/forecast"
	"github.com/fleetops/fuelcore/internal/idle"
	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/voltage"
)

// sensorComponent maps a raw sensor name to its canonical component key in
// config.Components.
var sensorComponent = map[string]string{
	"oil_pressure":    "oil_system",
	"oil_temp":        "oil_system",
	"coolant_temp":    "cooling_system",
	"trans_temp":      "transmission",
	"trans_t":         "transmission",
	"battery_voltage": "electrical",
	"fuel_rate_lph":   "fuel_system",
	"gps_quality":     "gps",
}

func componentFor(sensor string) string {
	if c, ok := sensorComponent[sensor]; ok {
		return c
	}
	return "sensors"
}

// build assembles an ActionItem from a component key, confidence source
// name, and the fields every synthesis path must set before priority
// scoring runs.
func build(cfg *config.Config, truckID, componentKey, title, description string, daysToCritical *float64, sourceName string) models.ActionItem {
	info, ok := cfg.Components[componentKey]
	if !ok {
		info = config.ComponentInfo{Canonical: componentKey, Category: "sensor", Icon: "📟", ActionSteps: []string{"Inspect and diagnose"}}
	}

	cost := &models.CostRange{Min: info.Cost.Min, Max: info.Cost.Max, Avg: (info.Cost.Min + info.Cost.Max) / 2}
	if info.Cost.Min == 0 && info.Cost.Max == 0 {
		cost = nil
	}

	return models.ActionItem{
		TruckID:        truckID,
		Category:       info.Category,
		Component:      info.Canonical,
		Title:          title,
		Description:    description,
		DaysToCritical: daysToCritical,
		CostIfIgnored:  cost,
		Confidence:     confidenceFromWeight(cfg.SourceWeights[sourceName]),
		ActionSteps:    info.ActionSteps,
		Icon:           info.Icon,
		Sources:        []string{sourceName},
	}
}

func confidenceFromWeight(weight float64) models.Confidence {
	switch {
	case weight >= 75:
		return models.ConfidenceHigh
	case weight >= 50:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// FromAnomaly synthesizes an ActionItem from an EWMA/CUSUM/THRESHOLD
// anomaly event.
func FromAnomaly(cfg *config.Config, a models.Anomaly) models.ActionItem {
	componentKey := componentFor(a.Sensor)
	title := fmt.Sprintf("%s anomaly on %s", a.Type, a.Sensor)
	description := fmt.Sprintf("%s reading %.2f deviates from expected baseline (z=%.2f)", a.Sensor, a.SensorValue, a.ZScore)

	source := "ML Anomaly Detection"
	if a.Type == models.AnomalyThreshold {
		source = "Sensor Health"
	}

	item := build(cfg, a.TruckID, componentKey, title, description, nil, source)
	item.CurrentValue = ptrStr(fmt.Sprintf("%.2f", a.SensorValue))
	return item
}

// FromForecast synthesizes an ActionItem from a days-to-failure forecast
// whose urgency is non-NONE.
func FromForecast(cfg *config.Config, truckID string, f forecast.Forecast) (models.ActionItem, bool) {
	if f.Urgency == forecast.UrgencyNone {
		return models.ActionItem{}, false
	}

	componentKey := componentFor(f.Sensor)
	title := fmt.Sprintf("%s trending toward failure", f.Sensor)
	description := f.Recommendation

	var days *float64
	if f.DaysToCritical != nil {
		days = f.DaysToCritical
	} else if f.DaysToWarning != nil {
		days = f.DaysToWarning
	}

	item := build(cfg, truckID, componentKey, title, description, days, "Predictive Maintenance Engine")
	item.CurrentValue = ptrStr(fmt.Sprintf("%.2f", f.Current))
	trend := string(f.TrendDirection)
	item.Trend = &trend
	threshold := fmt.Sprintf("warn %.1f / crit %.1f", f.WarningThreshold, f.CriticalThreshold)
	item.Threshold = &threshold
	return item, true
}

// FromCorrelation synthesizes an ActionItem from a correlation event.
func FromCorrelation(cfg *config.Config, ev correlation.Event) models.ActionItem {
	title := fmt.Sprintf("%s detected", ev.PatternName)
	description := ev.RecommendedAction

	// A matched multi-sensor pattern means the failure is in progress, not
	// forecast: days-to-critical is pinned at the floor.
	days := 0.5
	item := build(cfg, ev.TruckID, ev.PredictedComponent, title, description, &days, "Failure Correlation")
	item.Confidence = confidenceFromWeight(cfg.SourceWeights["Failure Correlation"])
	if ev.Confidence >= 0.8 {
		item.Confidence = models.ConfidenceHigh
	}
	return item
}

// FromDTC synthesizes an ActionItem from one active diagnostic trouble
// code.
func FromDTC(cfg *config.Config, truckID string, dtc models.DTC) models.ActionItem {
	title := fmt.Sprintf("Active DTC %s", dtc.Code)
	description := dtc.Description
	if description == "" {
		description = fmt.Sprintf("ECU reported trouble code %s", dtc.Code)
	}
	return build(cfg, truckID, "sensors", title, description, nil, "DTC Analysis")
}

// FromIdleValidation synthesizes an ActionItem when the idle validation
// flags needs_investigation.
func FromIdleValidation(cfg *config.Config, truckID string, result idle.ValidationResult) (models.ActionItem, bool) {
	if !result.NeedsInvestigation {
		return models.ActionItem{}, false
	}
	title := "Idle/engine hour mismatch"
	description := fmt.Sprintf("calculated idle hours deviate %.1f%% from ECU-reported ratio", result.DeviationPct)
	item := build(cfg, truckID, "sensors", title, description, nil, "Sensor Health")
	return item, true
}

// FromVoltage synthesizes an ActionItem from an electrical-system analysis
// whose severity is HIGH or CRITICAL.
func FromVoltage(cfg *config.Config, a voltage.Analysis) (models.ActionItem, bool) {
	if a.Severity != models.SeverityCritical && a.Severity != models.SeverityHigh {
		return models.ActionItem{}, false
	}
	description := a.Message
	if a.Action != "" {
		description += ". " + a.Action
	}
	item := build(cfg, a.TruckID, "electrical", "Electrical system issue", description, nil, "Sensor Health")
	item.CurrentValue = ptrStr(fmt.Sprintf("%.1fV", a.Voltage))
	if a.Severity == models.SeverityCritical {
		days := 0.5
		item.DaysToCritical = &days
	}
	return item, true
}

// FromDEFLevel synthesizes an ActionItem when the DEF tank drops below the
// configured warning or critical percentage; below critical the engine
// derates.
func FromDEFLevel(cfg *config.Config, truckID string, defPct float64) (models.ActionItem, bool) {
	switch {
	case defPct <= cfg.DEF.CriticalPct:
		days := 0.5
		item := build(cfg, truckID, "def_system",
			"DEF crítico",
			fmt.Sprintf("DEF al %.0f%%: derate inminente, rellenar de inmediato", defPct),
			&days, "Sensor Health")
		item.CurrentValue = ptrStr(fmt.Sprintf("%.0f%%", defPct))
		return item, true
	case defPct <= cfg.DEF.WarningPct:
		item := build(cfg, truckID, "def_system",
			"DEF bajo",
			fmt.Sprintf("DEF al %.0f%%: programar rellenado", defPct),
			nil, "Sensor Health")
		item.CurrentValue = ptrStr(fmt.Sprintf("%.0f%%", defPct))
		return item, true
	default:
		return models.ActionItem{}, false
	}
}

// FromOfflineTruck synthesizes an ActionItem for a truck that has not
// reported telemetry within the configured offline window.
func FromOfflineTruck(cfg *config.Config, truckID string, hoursSinceLastSeen float64) models.ActionItem {
	title := "Truck offline"
	description := fmt.Sprintf("no telemetry received for %.1f hours", hoursSinceLastSeen)
	item := build(cfg, truckID, "gps", title, description, nil, "Sensor Health")
	return item
}

func ptrStr(s string) *string { return &s }
