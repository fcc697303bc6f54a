package actions

import (
	"strings"
	"testing"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/correlation"
	"github.com/fleetops/fuelcore/internal/forecast"
	"github.com/fleetops/fuelcore/internal/idle"
	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/voltage"
)

func f64(v float64) *float64 { return &v }

func TestFromAnomaly_ComponentNormalization(t *testing.T) {
	cfg := config.DefaultConfig()

	item := FromAnomaly(cfg, models.Anomaly{
		TruckID: "T001", Sensor: "coolant_temp", Timestamp: time.Now(),
		Type: models.AnomalyEWMA, Severity: models.SeverityHigh,
		SensorValue: 244, ZScore: 3.2,
	})

	if item.Component != "cooling_system" {
		t.Errorf("coolant_temp must normalize to cooling_system, got %s", item.Component)
	}
	if item.Category != "engine" {
		t.Errorf("expected engine category, got %s", item.Category)
	}
	if item.CostIfIgnored == nil || item.CostIfIgnored.Min != 8000 {
		t.Errorf("expected the cooling cost range attached, got %v", item.CostIfIgnored)
	}
	if len(item.ActionSteps) == 0 || item.Icon == "" {
		t.Error("expected action steps and an icon from the component table")
	}
	if len(item.Sources) != 1 || item.Sources[0] != "ML Anomaly Detection" {
		t.Errorf("unexpected sources %v", item.Sources)
	}
}

func TestFromAnomaly_ThresholdUsesSensorHealthSource(t *testing.T) {
	cfg := config.DefaultConfig()
	item := FromAnomaly(cfg, models.Anomaly{
		TruckID: "T001", Sensor: "battery_voltage",
		Type: models.AnomalyThreshold, SensorValue: 11.5,
	})
	if item.Sources[0] != "Sensor Health" {
		t.Errorf("threshold anomalies come from Sensor Health, got %v", item.Sources)
	}
	if item.Component != "electrical" {
		t.Errorf("battery_voltage must normalize to electrical, got %s", item.Component)
	}
}

func TestFromForecast_NoneUrgencyProducesNothing(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, ok := FromForecast(cfg, "T001", forecast.Forecast{Urgency: forecast.UrgencyNone}); ok {
		t.Error("a NONE forecast must not synthesize an item")
	}
}

func TestFromForecast_CarriesDaysAndTrend(t *testing.T) {
	cfg := config.DefaultConfig()
	f := forecast.Forecast{
		Sensor: "trans_temp", Current: 228, WarningThreshold: 215, CriticalThreshold: 230,
		TrendSlopePerDay: 1.5, TrendDirection: forecast.TrendDegrading,
		DaysToCritical: f64(4), Urgency: forecast.UrgencyCritical,
		Recommendation: "schedule immediate inspection of trans_temp",
	}

	item, ok := FromForecast(cfg, "T001", f)
	if !ok {
		t.Fatal("expected an item")
	}
	if item.Component != "transmission" {
		t.Errorf("expected transmission, got %s", item.Component)
	}
	if item.DaysToCritical == nil || *item.DaysToCritical != 4 {
		t.Errorf("expected days 4, got %v", item.DaysToCritical)
	}
	if item.Trend == nil || *item.Trend != "DEGRADING" {
		t.Errorf("expected DEGRADING trend, got %v", item.Trend)
	}
	if item.Sources[0] != "Predictive Maintenance Engine" {
		t.Errorf("unexpected source %v", item.Sources)
	}
}

func TestFromCorrelation_ImminentDays(t *testing.T) {
	cfg := config.DefaultConfig()
	item := FromCorrelation(cfg, correlation.Event{
		PatternName:        "overheating_syndrome",
		TruckID:            "T001",
		Confidence:         0.9,
		PredictedComponent: "cooling_system",
		RecommendedAction:  "Stop and inspect cooling system immediately",
	})

	if item.Component != "cooling_system" {
		t.Errorf("expected cooling_system, got %s", item.Component)
	}
	if item.DaysToCritical == nil || *item.DaysToCritical != 0.5 {
		t.Errorf("an active correlation is imminent, expected days 0.5, got %v", item.DaysToCritical)
	}
	if item.Confidence != models.ConfidenceHigh {
		t.Errorf("0.9 pattern confidence should read HIGH, got %s", item.Confidence)
	}
	if !strings.Contains(item.Title, "overheating_syndrome") {
		t.Errorf("title should name the pattern, got %q", item.Title)
	}
}

func TestFromDTC_FallsBackToGenericDescription(t *testing.T) {
	cfg := config.DefaultConfig()
	item := FromDTC(cfg, "T001", models.DTC{Code: "P0217"})
	if !strings.Contains(item.Description, "P0217") {
		t.Errorf("description should mention the code, got %q", item.Description)
	}
	if item.Sources[0] != "DTC Analysis" {
		t.Errorf("unexpected source %v", item.Sources)
	}
}

func TestFromIdleValidation_OnlyOnInvestigation(t *testing.T) {
	cfg := config.DefaultConfig()

	if _, ok := FromIdleValidation(cfg, "T001", idle.ValidationResult{IsValid: true}); ok {
		t.Error("a clean validation must not synthesize an item")
	}

	item, ok := FromIdleValidation(cfg, "T001", idle.ValidationResult{
		IsValid: false, NeedsInvestigation: true, DeviationPct: 42.5,
	})
	if !ok {
		t.Fatal("expected an item for a flagged validation")
	}
	if !strings.Contains(item.Description, "42.5") {
		t.Errorf("description should carry the deviation, got %q", item.Description)
	}
}

func TestFromOfflineTruck(t *testing.T) {
	cfg := config.DefaultConfig()
	item := FromOfflineTruck(cfg, "T001", 4.2)
	if !strings.Contains(item.Description, "4.2") {
		t.Errorf("description should carry the silence duration, got %q", item.Description)
	}
	if item.TruckID != "T001" {
		t.Errorf("unexpected truck %s", item.TruckID)
	}
}

func TestFromVoltage_OnlySevereAnalysesSynthesize(t *testing.T) {
	cfg := config.DefaultConfig()

	if _, ok := FromVoltage(cfg, voltage.Analysis{TruckID: "T001", Severity: models.SeverityLow}); ok {
		t.Error("a healthy voltage reading must not synthesize an item")
	}

	item, ok := FromVoltage(cfg, voltage.Analysis{
		TruckID:  "T001",
		Voltage:  11.2,
		Status:   voltage.StatusCriticalLow,
		Severity: models.SeverityCritical,
		Message:  "Batería muerta (11.2V), no va a arrancar",
		Action:   "Cargar batería o jump start inmediatamente",
	})
	if !ok {
		t.Fatal("a critical analysis must synthesize an item")
	}
	if item.Component != "electrical" {
		t.Errorf("expected electrical, got %s", item.Component)
	}
	if item.DaysToCritical == nil || *item.DaysToCritical != 0.5 {
		t.Errorf("critical electrical failure is imminent, got %v", item.DaysToCritical)
	}
	if item.CurrentValue == nil || *item.CurrentValue != "11.2V" {
		t.Errorf("expected the reading on the item, got %v", item.CurrentValue)
	}
}

func TestFromDEFLevel_Bands(t *testing.T) {
	cfg := config.DefaultConfig() // warning 15%, critical 5%

	if _, ok := FromDEFLevel(cfg, "T001", 60); ok {
		t.Error("a full DEF tank must not synthesize an item")
	}

	warn, ok := FromDEFLevel(cfg, "T001", 12)
	if !ok {
		t.Fatal("12% should trip the warning band")
	}
	if warn.Component != "def_system" || warn.DaysToCritical != nil {
		t.Errorf("unexpected warning item: %+v", warn)
	}

	crit, ok := FromDEFLevel(cfg, "T001", 4)
	if !ok {
		t.Fatal("4% should trip the critical band")
	}
	if crit.DaysToCritical == nil || *crit.DaysToCritical != 0.5 {
		t.Errorf("critical DEF means derate is imminent, got %v", crit.DaysToCritical)
	}
	if !strings.Contains(crit.Description, "derate") {
		t.Errorf("critical description should warn about derate, got %q", crit.Description)
	}
}

func TestBuild_UnknownComponentGetsFallback(t *testing.T) {
	cfg := config.DefaultConfig()
	item := build(cfg, "T001", "flux_capacitor", "title", "desc", nil, "Sensor Health")
	if item.Component != "flux_capacitor" {
		t.Errorf("unknown component keeps its key, got %s", item.Component)
	}
	if item.CostIfIgnored != nil {
		t.Error("unknown component has no cost range")
	}
	if len(item.ActionSteps) == 0 {
		t.Error("fallback must still provide a generic action step")
	}
}
