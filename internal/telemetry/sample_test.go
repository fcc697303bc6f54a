package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

func f64(v float64) *float64 { return &v }

func TestValidate_OutOfRangeFieldNulledNotRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	v := NewValidator()

	s := &models.TelemetrySample{
		TruckID:        "T001",
		Timestamp:      time.Now(),
		Status:         models.StatusMoving,
		OilPressurePSI: f64(300), // above the 150 psi ceiling
		CoolantTempF:   f64(200), // in range
	}

	out, ok := v.Validate(cfg, s)
	if !ok {
		t.Fatal("a sample with one bad field must not be rejected wholesale")
	}
	if out.OilPressurePSI != nil {
		t.Error("out-of-range oil pressure must be nulled")
	}
	if out.CoolantTempF == nil || *out.CoolantTempF != 200 {
		t.Error("in-range coolant temp must survive")
	}
}

func TestValidate_NaNAndInfCoerceToNull(t *testing.T) {
	cfg := config.DefaultConfig()
	v := NewValidator()

	s := &models.TelemetrySample{
		TruckID:      "T001",
		Timestamp:    time.Now(),
		FuelPercent:  f64(math.NaN()),
		AmbientTempF: f64(math.Inf(1)),
		CoolantTempF: f64(math.Inf(-1)),
	}

	out, ok := v.Validate(cfg, s)
	if !ok {
		t.Fatal("sample should survive")
	}
	if out.FuelPercent != nil || out.AmbientTempF != nil || out.CoolantTempF != nil {
		t.Error("non-finite values must coerce to null")
	}
}

func TestValidate_LateSampleDropped(t *testing.T) {
	cfg := config.DefaultConfig()
	v := NewValidator()
	now := time.Now()

	first := &models.TelemetrySample{TruckID: "T001", Timestamp: now}
	if _, ok := v.Validate(cfg, first); !ok {
		t.Fatal("first sample should be accepted")
	}

	// Same timestamp: duplicate, dropped.
	dup := &models.TelemetrySample{TruckID: "T001", Timestamp: now}
	if _, ok := v.Validate(cfg, dup); ok {
		t.Error("duplicate timestamp must be dropped")
	}

	// Earlier timestamp: late, dropped.
	late := &models.TelemetrySample{TruckID: "T001", Timestamp: now.Add(-time.Minute)}
	if _, ok := v.Validate(cfg, late); ok {
		t.Error("late sample must be dropped")
	}

	// Strictly newer: accepted.
	next := &models.TelemetrySample{TruckID: "T001", Timestamp: now.Add(20 * time.Second)}
	if _, ok := v.Validate(cfg, next); !ok {
		t.Error("strictly newer sample must be accepted")
	}
}

func TestValidate_PerTruckMonotonicity(t *testing.T) {
	cfg := config.DefaultConfig()
	v := NewValidator()
	now := time.Now()

	a := &models.TelemetrySample{TruckID: "T001", Timestamp: now}
	b := &models.TelemetrySample{TruckID: "T002", Timestamp: now}
	if _, ok := v.Validate(cfg, a); !ok {
		t.Fatal("T001 sample rejected")
	}
	if _, ok := v.Validate(cfg, b); !ok {
		t.Error("monotonicity is per truck; T002's first sample must pass")
	}
}

func TestValidate_MissingTruckIDRejected(t *testing.T) {
	cfg := config.DefaultConfig()
	v := NewValidator()

	if _, ok := v.Validate(cfg, &models.TelemetrySample{Timestamp: time.Now()}); ok {
		t.Error("a sample without a truck_id must be rejected")
	}
	if _, ok := v.Validate(cfg, nil); ok {
		t.Error("nil sample must be rejected")
	}
}

func TestValidate_DoesNotMutateInput(t *testing.T) {
	cfg := config.DefaultConfig()
	v := NewValidator()

	original := f64(300)
	s := &models.TelemetrySample{TruckID: "T001", Timestamp: time.Now(), OilPressurePSI: original}
	out, _ := v.Validate(cfg, s)

	if s.OilPressurePSI != original {
		t.Error("validation must operate on a copy, not the caller's sample")
	}
	if out == s {
		t.Error("expected a distinct output sample")
	}
}
