package voltage

import (
	"testing"

	"github.com/fleetops/fuelcore/internal/models"
)

func f64(v float64) *float64 { return &v }
func rpm(v int) *int         { return &v }

func TestAnalyze_NoVoltageData(t *testing.T) {
	if _, ok := Analyze("T001", nil, rpm(800), DefaultThresholds()); ok {
		t.Error("no voltage reading must yield no analysis")
	}
}

func TestAnalyze_BatteryBands(t *testing.T) {
	cases := []struct {
		volts    float64
		status   Status
		severity models.Severity
		suspect  bool
	}{
		{11.2, StatusCriticalLow, models.SeverityCritical, true},
		{11.9, StatusLow, models.SeverityHigh, true},
		{12.6, StatusNormal, models.SeverityLow, false},
		{13.4, StatusHigh, models.SeverityLow, false},
	}
	for _, tc := range cases {
		// Engine off: RPM nil or 0 selects the battery bands.
		a, ok := Analyze("T001", f64(tc.volts), nil, DefaultThresholds())
		if !ok {
			t.Fatalf("%.1fV: expected an analysis", tc.volts)
		}
		if a.Status != tc.status || a.Severity != tc.severity {
			t.Errorf("%.1fV: expected %s/%s, got %s/%s", tc.volts, tc.status, tc.severity, a.Status, a.Severity)
		}
		if a.MayAffectSensors != tc.suspect {
			t.Errorf("%.1fV: expected may_affect_sensors=%v", tc.volts, tc.suspect)
		}
		if a.IsEngineRunning {
			t.Errorf("%.1fV: engine should read off", tc.volts)
		}
	}
}

func TestAnalyze_ChargingBands(t *testing.T) {
	cases := []struct {
		volts    float64
		status   Status
		severity models.Severity
	}{
		{12.2, StatusCriticalLow, models.SeverityCritical},
		{12.9, StatusLow, models.SeverityHigh},
		{14.1, StatusNormal, models.SeverityLow},
		{15.2, StatusHigh, models.SeverityMedium},
		{15.8, StatusCriticalHigh, models.SeverityCritical},
	}
	for _, tc := range cases {
		a, ok := Analyze("T001", f64(tc.volts), rpm(1200), DefaultThresholds())
		if !ok {
			t.Fatalf("%.1fV: expected an analysis", tc.volts)
		}
		if a.Status != tc.status || a.Severity != tc.severity {
			t.Errorf("%.1fV: expected %s/%s, got %s/%s", tc.volts, tc.status, tc.severity, a.Status, a.Severity)
		}
		if !a.IsEngineRunning {
			t.Errorf("%.1fV: engine should read running at 1200 RPM", tc.volts)
		}
	}
}

func TestAnalyze_IdleRPMUsesBatteryBands(t *testing.T) {
	// 80 RPM is below the running cutoff, so 12.6V is a healthy battery,
	// not a failing alternator.
	a, _ := Analyze("T001", f64(12.6), rpm(80), DefaultThresholds())
	if a.IsEngineRunning {
		t.Error("80 RPM must not count as running")
	}
	if a.Status != StatusNormal {
		t.Errorf("expected NORMAL battery, got %s", a.Status)
	}
}

func TestQualityFactor(t *testing.T) {
	cases := []struct {
		status Status
		want   float64
	}{
		{StatusCriticalLow, 0.5},
		{StatusCriticalHigh, 0.5},
		{StatusLow, 0.8},
		{StatusNormal, 1.0},
		{StatusHigh, 1.0},
	}
	for _, tc := range cases {
		if got := QualityFactor(Analysis{Status: tc.status}); got != tc.want {
			t.Errorf("%s: expected %f, got %f", tc.status, tc.want, got)
		}
	}
}
