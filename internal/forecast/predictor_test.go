package forecast

import (
	"math"
	"testing"
	"time"
)

func history(start time.Time, stepDays float64, values ...float64) []Point {
	points := make([]Point, len(values))
	for n, v := range values {
		points[n] = Point{Timestamp: start.Add(time.Duration(float64(n) * stepDays * 24 * float64(time.Hour))), Value: v}
	}
	return points
}

func TestPredict_FlatHistoryIsStable(t *testing.T) {
	f := Predict("coolant_temp", history(time.Now(), 1, 200, 200, 200, 200, 200), 230, 245, true)
	if f.Urgency != UrgencyNone {
		t.Errorf("expected NONE urgency, got %s", f.Urgency)
	}
	if f.TrendDirection != TrendStable {
		t.Errorf("expected STABLE, got %s", f.TrendDirection)
	}
	if f.DaysToWarning != nil || f.DaysToCritical != nil {
		t.Error("flat history must not produce day estimates")
	}
}

func TestPredict_DegradingHigherIsWorse(t *testing.T) {
	// +5°F per day from 220: warning 230 in 2 days, critical 245 in 5.
	f := Predict("coolant_temp", history(time.Now(), 1, 200, 205, 210, 215, 220), 230, 245, true)
	if f.TrendDirection != TrendDegrading {
		t.Fatalf("expected DEGRADING, got %s", f.TrendDirection)
	}
	if math.Abs(f.TrendSlopePerDay-5) > 1e-6 {
		t.Errorf("expected slope 5/day, got %f", f.TrendSlopePerDay)
	}
	if f.DaysToWarning == nil || math.Abs(*f.DaysToWarning-2) > 1e-6 {
		t.Errorf("expected days_to_warning 2, got %v", f.DaysToWarning)
	}
	if f.DaysToCritical == nil || math.Abs(*f.DaysToCritical-5) > 1e-6 {
		t.Errorf("expected days_to_critical 5, got %v", f.DaysToCritical)
	}
	if f.Urgency != UrgencyCritical {
		t.Errorf("expected CRITICAL urgency for days_to_critical < 7, got %s", f.Urgency)
	}
}

func TestPredict_DegradingLowerIsWorse(t *testing.T) {
	// Oil pressure falling 2 psi/day from 35: warning 25 in 5 days.
	f := Predict("oil_pressure", history(time.Now(), 1, 43, 41, 39, 37, 35), 25, 15, false)
	if f.TrendDirection != TrendDegrading {
		t.Fatalf("expected DEGRADING, got %s", f.TrendDirection)
	}
	if f.DaysToWarning == nil || math.Abs(*f.DaysToWarning-5) > 1e-6 {
		t.Errorf("expected days_to_warning 5, got %v", f.DaysToWarning)
	}
	if f.Urgency != UrgencyHigh {
		t.Errorf("expected HIGH (warning < 7, critical 10), got %s", f.Urgency)
	}
}

func TestPredict_AlreadyPastThresholdReturnsMinDays(t *testing.T) {
	f := Predict("coolant_temp", history(time.Now(), 1, 240, 243, 246, 249), 230, 245, true)
	if f.DaysToCritical == nil || *f.DaysToCritical != minDays {
		t.Errorf("expected min_days for a value past critical, got %v", f.DaysToCritical)
	}
}

func TestPredict_ImprovingReturnsNoDays(t *testing.T) {
	f := Predict("coolant_temp", history(time.Now(), 1, 230, 225, 220, 215), 230, 245, true)
	if f.TrendDirection != TrendImproving {
		t.Fatalf("expected IMPROVING, got %s", f.TrendDirection)
	}
	if f.DaysToWarning != nil || f.DaysToCritical != nil {
		t.Error("improving trend must not produce day estimates")
	}
	if f.Urgency != UrgencyNone {
		t.Errorf("expected NONE, got %s", f.Urgency)
	}
}

func TestPredict_ClampsToMaxDays(t *testing.T) {
	// 0.01°F/day toward a threshold 30°F away would be 3000 days; clamp to
	// 365.
	f := Predict("coolant_temp", history(time.Now(), 1, 200, 200.01, 200.02, 200.03), 230, 245, true)
	if f.DaysToWarning == nil {
		t.Fatal("expected a clamped days_to_warning")
	}
	if *f.DaysToWarning != maxDays {
		t.Errorf("expected clamp to %f, got %f", maxDays, *f.DaysToWarning)
	}
}

func TestPredict_InsufficientHistory(t *testing.T) {
	f := Predict("coolant_temp", history(time.Now(), 1, 200, 210), 230, 245, true)
	if f.Urgency != UrgencyNone || f.DaysToCritical != nil {
		t.Errorf("two points must not forecast, got %+v", f)
	}
	if f.Current != 210 {
		t.Errorf("current should still reflect the last value, got %f", f.Current)
	}
}
