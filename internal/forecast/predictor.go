// Package forecast linearly extrapolates a single sensor's recent history
// to its warning and critical thresholds and reports how many days remain.
package forecast

import (
	"math"
	"time"
)

// TrendLabel classifies whether a sensor's trend is moving toward or away
// from its failure thresholds. Distinct from models.TrendDirection's
// UP/DOWN/STABLE, since "degrading" depends on which direction is bad for
// this particular sensor.
type TrendLabel string

const (
	TrendDegrading TrendLabel = "DEGRADING"
	TrendStable    TrendLabel = "STABLE"
	TrendImproving TrendLabel = "IMPROVING"
)

// Urgency is the headline label summarizing how soon action is needed.
type Urgency string

const (
	UrgencyCritical Urgency = "CRITICAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyNone     Urgency = "NONE"
)

const (
	minDays = 0.5
	maxDays = 365.0
)

// Point is one timestamped sensor reading.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Forecast is the full prediction for one (truck, sensor) pair.
type Forecast struct {
	Sensor              string
	Current             float64
	WarningThreshold    float64
	CriticalThreshold   float64
	TrendSlopePerDay    float64
	TrendDirection      TrendLabel
	DaysToWarning       *float64
	DaysToCritical      *float64
	Urgency             Urgency
	Recommendation      string
}

// Predict computes a Forecast from at least 3 history points. Fewer points
// returns a STABLE/NONE forecast with no day estimates.
func Predict(sensor string, history []Point, warningThreshold, criticalThreshold float64, higherIsWorse bool) Forecast {
	f := Forecast{
		Sensor:            sensor,
		WarningThreshold:  warningThreshold,
		CriticalThreshold: criticalThreshold,
		TrendDirection:    TrendStable,
		Urgency:           UrgencyNone,
	}

	if len(history) == 0 {
		return f
	}
	f.Current = history[len(history)-1].Value

	if len(history) < 3 {
		f.Recommendation = "insufficient history for a trend estimate"
		return f
	}

	slope := linearRegressionSlopePerDay(history)
	f.TrendSlopePerDay = slope

	degrading := (higherIsWorse && slope > 0) || (!higherIsWorse && slope < 0)
	switch {
	case degrading:
		f.TrendDirection = TrendDegrading
	case slope == 0:
		f.TrendDirection = TrendStable
	default:
		f.TrendDirection = TrendImproving
	}

	if !degrading {
		f.Recommendation = "trend is stable or improving; continue routine monitoring"
		return f
	}

	f.DaysToWarning = daysTo(f.Current, warningThreshold, slope, higherIsWorse)
	f.DaysToCritical = daysTo(f.Current, criticalThreshold, slope, higherIsWorse)

	f.Urgency = classifyUrgency(f.DaysToWarning, f.DaysToCritical)
	f.Recommendation = recommendationFor(f.Urgency, sensor)
	return f
}

// daysTo returns the clamped days until current reaches threshold along
// slope, or nil if the sensor is moving away from threshold (or slope is
// effectively zero).
func daysTo(current, threshold, slope float64, higherIsWorse bool) *float64 {
	alreadyPast := (higherIsWorse && current >= threshold) || (!higherIsWorse && current <= threshold)
	if alreadyPast {
		d := minDays
		return &d
	}

	if math.Abs(slope) < 1e-9 {
		return nil
	}

	days := (threshold - current) / slope
	if days <= 0 {
		return nil
	}
	if days < minDays {
		days = minDays
	}
	if days > maxDays {
		days = maxDays
	}
	return &days
}

func classifyUrgency(daysToWarning, daysToCritical *float64) Urgency {
	if daysToCritical != nil && *daysToCritical < 7 {
		return UrgencyCritical
	}
	if daysToWarning != nil && *daysToWarning < 7 {
		return UrgencyHigh
	}
	if (daysToCritical != nil && *daysToCritical < 30) || (daysToWarning != nil && *daysToWarning < 30) {
		return UrgencyMedium
	}
	return UrgencyNone
}

func recommendationFor(urgency Urgency, sensor string) string {
	switch urgency {
	case UrgencyCritical:
		return "schedule immediate inspection of " + sensor
	case UrgencyHigh:
		return "schedule inspection of " + sensor + " this week"
	case UrgencyMedium:
		return "monitor " + sensor + " and plan service this month"
	default:
		return "no action needed"
	}
}

// linearRegressionSlopePerDay fits a least-squares line over history and
// returns the slope expressed as change-per-day.
func linearRegressionSlopePerDay(history []Point) float64 {
	n := float64(len(history))
	t0 := history[0].Timestamp

	var sumX, sumY, sumXY, sumXX float64
	for _, p := range history {
		x := p.Timestamp.Sub(t0).Hours() / 24.0
		y := p.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
