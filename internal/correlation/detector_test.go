package correlation

import (
	"math"
	"testing"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/sensorstate"
)

func overheatingPattern() models.FailurePattern {
	return models.FailurePattern{
		Name:          "overheating_syndrome",
		PrimarySensor: "coolant_temp",
		CorrelatedSensors: []models.SensorPredicate{
			{Sensor: "coolant_temp", Threshold: 235, Above: true, MinReadings: 3},
			{Sensor: "oil_temp", Threshold: 250, Above: true, MinReadings: 3},
			{Sensor: "trans_temp", Threshold: 225, Above: true, MinReadings: 3},
		},
		PredictedComponent: "cooling_system",
		RecommendedAction:  "Stop and inspect cooling system immediately",
		ConfidenceScore:    0.9,
	}
}

func feed(store *sensorstate.Store, truckID, sensor string, values []float64, start time.Time) {
	for n, v := range values {
		store.Observe(truckID, sensor, v, start.Add(time.Duration(n)*20*time.Second))
	}
}

func TestEvaluateTruck_OverheatingSyndrome(t *testing.T) {
	// Four consecutive samples with coolant 245, oil 260, trans 235: every
	// predicate is persistently satisfied, so exactly one event fires.
	store := sensorstate.NewStore(config.DefaultConfig())
	now := time.Now()
	feed(store, "T001", "coolant_temp", []float64{245, 245, 245, 245}, now)
	feed(store, "T001", "oil_temp", []float64{260, 260, 260, 260}, now)
	feed(store, "T001", "trans_temp", []float64{235, 235, 235, 235}, now)

	events := EvaluateTruck([]models.FailurePattern{overheatingPattern()}, store, "T001", now)
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 correlation event, got %d", len(events))
	}
	ev := events[0]
	if ev.PatternName != "overheating_syndrome" {
		t.Errorf("unexpected pattern name %s", ev.PatternName)
	}
	if ev.PredictedComponent != "cooling_system" {
		t.Errorf("unexpected component %s", ev.PredictedComponent)
	}
	if math.Abs(ev.Confidence-0.9) > 1e-9 {
		t.Errorf("expected confidence 0.9, got %f", ev.Confidence)
	}
	if len(ev.CorroboratingSensors) != 3 {
		t.Errorf("expected 3 corroborating sensors, got %v", ev.CorroboratingSensors)
	}
	if ev.ID == "" {
		t.Error("event must carry an ID")
	}
}

func TestEvaluateTruck_PartialMatchDoesNotFire(t *testing.T) {
	// Transmission temperature stays healthy: two of three predicates is
	// not enough.
	store := sensorstate.NewStore(config.DefaultConfig())
	now := time.Now()
	feed(store, "T001", "coolant_temp", []float64{245, 245, 245}, now)
	feed(store, "T001", "oil_temp", []float64{260, 260, 260}, now)
	feed(store, "T001", "trans_temp", []float64{180, 180, 180}, now)

	events := EvaluateTruck([]models.FailurePattern{overheatingPattern()}, store, "T001", now)
	if len(events) != 0 {
		t.Fatalf("expected no events on a partial match, got %d", len(events))
	}
}

func TestEvaluateTruck_TransientSpikeSuppressed(t *testing.T) {
	// One hot reading among cool ones fails the persistence gate.
	store := sensorstate.NewStore(config.DefaultConfig())
	now := time.Now()
	feed(store, "T001", "coolant_temp", []float64{200, 245, 200}, now)
	feed(store, "T001", "oil_temp", []float64{260, 260, 260}, now)
	feed(store, "T001", "trans_temp", []float64{235, 235, 235}, now)

	events := EvaluateTruck([]models.FailurePattern{overheatingPattern()}, store, "T001", now)
	if len(events) != 0 {
		t.Fatalf("expected transient spike to be suppressed, got %d events", len(events))
	}
}

func TestEvaluateFleet_SharedPatternSurfaces(t *testing.T) {
	perTruck := map[string][]Event{
		"T001": {{PatternName: "overheating_syndrome", TruckID: "T001", PredictedComponent: "cooling_system"}},
		"T002": {{PatternName: "overheating_syndrome", TruckID: "T002", PredictedComponent: "cooling_system"}},
		"T003": {{PatternName: "overheating_syndrome", TruckID: "T003", PredictedComponent: "cooling_system"}},
	}

	insights := EvaluateFleet(perTruck, 10, 0.3, 2)
	if len(insights) != 1 {
		t.Fatalf("expected 1 fleet insight, got %d", len(insights))
	}
	in := insights[0]
	if in.Component != "cooling_system" {
		t.Errorf("unexpected component %s", in.Component)
	}
	if len(in.TruckIDs) != 3 || math.Abs(in.Fraction-0.3) > 1e-9 {
		t.Errorf("unexpected trucks/fraction: %v / %f", in.TruckIDs, in.Fraction)
	}
}

func TestEvaluateFleet_BelowThresholdsStaysQuiet(t *testing.T) {
	perTruck := map[string][]Event{
		"T001": {{PatternName: "overheating_syndrome", TruckID: "T001", PredictedComponent: "cooling_system"}},
	}

	// One truck of ten: below both min_trucks and the fleet-wide fraction.
	if insights := EvaluateFleet(perTruck, 10, 0.3, 2); len(insights) != 0 {
		t.Fatalf("expected no insights, got %d", len(insights))
	}
}
