package refuel

import (
	"math"
	"testing"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

func f64(v float64) *float64 { return &v }

func fuelSample(truckID string, ts time.Time, pct float64, status models.TruckStatus) *models.TelemetrySample {
	return &models.TelemetrySample{
		TruckID:     truckID,
		Timestamp:   ts,
		Status:      status,
		FuelPercent: f64(pct),
	}
}

func TestDetect_StepRefuelRoundTrip(t *testing.T) {
	// A +25% step on a 150 gal tank yields exactly one event with 37.5
	// gallons and confidence at least 0.8.
	now := time.Now()
	prev := fuelSample("T001", now.Add(-20*time.Second), 40, models.StatusStopped)
	cur := fuelSample("T001", now, 65, models.StatusStopped)

	event, ok := Detect(cur, prev, 150, nil)
	if !ok {
		t.Fatal("expected a refuel event")
	}
	if math.Abs(event.GallonsAdded-37.5) > 1e-9 {
		t.Errorf("expected 37.5 gal, got %f", event.GallonsAdded)
	}
	if event.Confidence < 0.8 {
		t.Errorf("expected confidence >= 0.8, got %f", event.Confidence)
	}
	if event.Method != models.RefuelPctJump {
		t.Errorf("expected PCT_JUMP, got %s", event.Method)
	}
	if event.FuelPctBefore != 40 || event.FuelPctAfter != 65 {
		t.Errorf("unexpected before/after: %f / %f", event.FuelPctBefore, event.FuelPctAfter)
	}
}

func TestDetect_BelowThresholdIgnored(t *testing.T) {
	now := time.Now()
	prev := fuelSample("T001", now.Add(-20*time.Second), 40, models.StatusStopped)
	cur := fuelSample("T001", now, 45, models.StatusStopped)

	if _, ok := Detect(cur, prev, 150, nil); ok {
		t.Error("a 5% rise below the default 8% threshold must not detect")
	}
}

func TestDetect_ECUCounterConfidence(t *testing.T) {
	now := time.Now()
	prev := fuelSample("T001", now.Add(-20*time.Second), 40, models.StatusStopped)
	prev.TotalFuelAddedGal = f64(500)
	cur := fuelSample("T001", now, 60, models.StatusStopped)
	cur.TotalFuelAddedGal = f64(530) // matches the 30 gal pct-derived rise

	event, ok := Detect(cur, prev, 150, nil)
	if !ok {
		t.Fatal("expected a refuel event")
	}
	if event.Method != models.RefuelECUCounter {
		t.Errorf("expected ECU_COUNTER, got %s", event.Method)
	}
	if event.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %f", event.Confidence)
	}
}

func TestDetect_AdaptiveThresholdApplies(t *testing.T) {
	now := time.Now()
	prev := fuelSample("T001", now.Add(-20*time.Second), 40, models.StatusStopped)
	cur := fuelSample("T001", now, 50, models.StatusStopped)

	tight := &models.AdaptiveThreshold{TruckID: "T001", MinPct: 12, MinGal: 10}
	if _, ok := Detect(cur, prev, 150, tight); ok {
		t.Error("a 10% rise must not clear a learned 12% threshold")
	}

	loose := &models.AdaptiveThreshold{TruckID: "T001", MinPct: 8, MinGal: 3}
	if _, ok := Detect(cur, prev, 150, loose); !ok {
		t.Error("a 10% rise should clear an 8% threshold")
	}
}

func TestLearner_AdaptsAfterConfirmedRefuels(t *testing.T) {
	// Five refuels around +10% on a 40 gal tank: after the third the
	// learner starts blending, and after the fifth the thresholds sit
	// slightly above the defaults.
	cfg := config.DefaultConfig()
	learner := NewLearner()
	now := time.Now()

	increases := []float64{10, 11, 9.5, 10, 10.5}
	var last models.AdaptiveThreshold
	for n, pct := range increases {
		gal := pct / 100 * 40
		last = learner.Observe(cfg, "T001", pct, gal, 1.0, nil, now)
		if n < 2 {
			if last.MinPct != DefaultMinPct || last.MinGal != DefaultMinGal {
				t.Errorf("refuel %d: thresholds must stay at defaults before 3 confirmations, got %+v", n+1, last)
			}
		}
	}

	if last.ConfirmedRefuels != 5 {
		t.Errorf("expected 5 confirmed refuels, got %d", last.ConfirmedRefuels)
	}
	if last.MinPct < 8.2 || last.MinPct > 9.0 {
		t.Errorf("expected min_pct in [8.2, 9.0], got %f", last.MinPct)
	}
	if last.MinGal < 3.1 || last.MinGal > 4.0 {
		t.Errorf("expected min_gal in [3.1, 4.0], got %f", last.MinGal)
	}
}

func TestLearner_ClampsToFloorAndCeiling(t *testing.T) {
	cfg := config.DefaultConfig()
	learner := NewLearner()
	now := time.Now()

	// Huge observed increases with a noisy sensor cannot push past the
	// ceiling.
	var last models.AdaptiveThreshold
	for range 5 {
		last = learner.Observe(cfg, "T002", 90, 120, 10.0, nil, now)
	}
	if last.MinPct > cfg.ThresholdFloorCeiling.MinPctCeiling {
		t.Errorf("min_pct %f exceeds ceiling", last.MinPct)
	}
	if last.MinGal > cfg.ThresholdFloorCeiling.MinGalCeiling {
		t.Errorf("min_gal %f exceeds ceiling", last.MinGal)
	}

	// Tiny increases with a very quiet sensor cannot fall through the
	// floor.
	learner2 := NewLearner()
	for range 5 {
		last = learner2.Observe(cfg, "T003", 0.5, 0.2, 0.1, nil, now)
	}
	if last.MinPct < cfg.ThresholdFloorCeiling.MinPctFloor {
		t.Errorf("min_pct %f below floor", last.MinPct)
	}
	if last.MinGal < cfg.ThresholdFloorCeiling.MinGalFloor {
		t.Errorf("min_gal %f below floor", last.MinGal)
	}
}

func TestPercentile10(t *testing.T) {
	values := []float64{9.5, 10, 10, 10.5, 11}
	got := percentile10(values)
	if math.Abs(got-9.7) > 1e-9 {
		t.Errorf("expected 9.7, got %f", got)
	}

	if got := percentile10([]float64{5}); got != 5 {
		t.Errorf("single value should return itself, got %f", got)
	}
	if got := percentile10(nil); got != 0 {
		t.Errorf("empty input should return 0, got %f", got)
	}
}
