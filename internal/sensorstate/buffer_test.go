package sensorstate

import (
	"math"
	"testing"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
)

func TestObserve_WelfordStatistics(t *testing.T) {
	store := NewStore(config.DefaultConfig())
	now := time.Now()

	values := []float64{48, 49, 50, 51, 52}
	for n, v := range values {
		store.Observe("T001", "oil_pressure", v, now.Add(time.Duration(n)*time.Second))
	}

	baseline, ok := store.GetBaseline("T001", "oil_pressure")
	if !ok {
		t.Fatal("baseline not found")
	}
	if math.Abs(baseline.Mean-50) > 1e-9 {
		t.Errorf("expected mean 50, got %f", baseline.Mean)
	}
	// Sample stddev of {48..52} is sqrt(2.5).
	if math.Abs(baseline.StdDev-math.Sqrt(2.5)) > 1e-9 {
		t.Errorf("expected stddev %f, got %f", math.Sqrt(2.5), baseline.StdDev)
	}
	if baseline.SampleCount != 5 {
		t.Errorf("expected 5 samples, got %d", baseline.SampleCount)
	}
}

func TestObserve_CountMonotonic(t *testing.T) {
	store := NewStore(config.DefaultConfig())
	now := time.Now()

	var prev int64
	for n := range 120 {
		b := store.Observe("T001", "coolant_temp", float64(200+n%5), now.Add(time.Duration(n)*time.Second))
		if b.SampleCount <= prev {
			t.Fatalf("sample count must keep increasing past the ring capacity, got %d after %d", b.SampleCount, prev)
		}
		prev = b.SampleCount
	}
}

func TestHasPersistentCriticalReading_AllAbove(t *testing.T) {
	store := NewStore(config.DefaultConfig())
	now := time.Now()

	for n, v := range []float64{200, 245, 246, 247} {
		store.Observe("T001", "coolant_temp", v, now.Add(time.Duration(n)*time.Second))
	}

	ok, count := store.HasPersistentCriticalReading("T001", "coolant_temp", 240, true, 3)
	if !ok || count != 3 {
		t.Errorf("expected persistent reading (3/3), got %v %d", ok, count)
	}
}

func TestHasPersistentCriticalReading_SingleSpikeSuppressed(t *testing.T) {
	store := NewStore(config.DefaultConfig())
	now := time.Now()

	for n, v := range []float64{200, 246, 201} {
		store.Observe("T001", "coolant_temp", v, now.Add(time.Duration(n)*time.Second))
	}

	if ok, _ := store.HasPersistentCriticalReading("T001", "coolant_temp", 240, true, 3); ok {
		t.Error("one spike among normal readings must not count as persistent")
	}
}

func TestHasPersistentCriticalReading_BelowDirection(t *testing.T) {
	store := NewStore(config.DefaultConfig())
	now := time.Now()

	for n, v := range []float64{14, 13, 12} {
		store.Observe("T001", "oil_pressure", v, now.Add(time.Duration(n)*time.Second))
	}

	ok, _ := store.HasPersistentCriticalReading("T001", "oil_pressure", 15, false, 3)
	if !ok {
		t.Error("three readings below threshold should be persistent")
	}
}

func TestHasPersistentCriticalReading_InsufficientHistory(t *testing.T) {
	store := NewStore(config.DefaultConfig())
	store.Observe("T001", "coolant_temp", 250, time.Now())

	ok, count := store.HasPersistentCriticalReading("T001", "coolant_temp", 240, true, 3)
	if ok {
		t.Error("one buffered value cannot satisfy a 3-reading gate")
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	if ok, count := store.HasPersistentCriticalReading("T999", "coolant_temp", 240, true, 3); ok || count != 0 {
		t.Errorf("unknown truck should report (false, 0), got %v %d", ok, count)
	}
}

func TestRingBufferEviction(t *testing.T) {
	// Fill past the default 50-slot window with lows, then three highs: the
	// persistence gate sees only the most recent values.
	store := NewStore(config.DefaultConfig())
	now := time.Now()

	for n := range 60 {
		store.Observe("T001", "coolant_temp", 200, now.Add(time.Duration(n)*time.Second))
	}
	for n := range 3 {
		store.Observe("T001", "coolant_temp", 250, now.Add(time.Duration(60+n)*time.Second))
	}

	if ok, _ := store.HasPersistentCriticalReading("T001", "coolant_temp", 240, true, 3); !ok {
		t.Error("the last 3 readings are all above threshold, gate should pass")
	}
}
