// Package idle derives idle fuel-burn (GPH) and operating
// mode from a sample and its predecessor, following a fixed priority order
// of increasingly indirect estimation methods.
package idle

import (
	"time"

	"github.com/fleetops/fuelcore/internal/models"
)

const litersPerGallon = 3.78541

// Estimate derives an IdleReading for cur given the immediately preceding
// sample for the same truck (prev may be nil on a truck's first sample).
// prevIdleGPH is the truck's last non-zero idle GPH, used for the EMA
// smoothing step in the SENSOR_FUEL_RATE rule.
func Estimate(cur, prev *models.TelemetrySample, prevIdleGPH float64) models.IdleReading {
	reading := models.IdleReading{
		TruckID:   cur.TruckID,
		Timestamp: cur.Timestamp,
	}

	if cur.Status != models.StatusStopped {
		reading.Method = models.IdleNotIdle
		reading.Mode = models.IdleModeEngineOff
		return reading
	}

	gph, method, ok := estimateGPH(cur, prev, prevIdleGPH)
	if !ok {
		reading.Method = models.IdleNotIdle
		reading.Mode = models.IdleModeEngineOff
		return reading
	}

	reading.IdleGPH = gph
	reading.Method = method
	reading.Mode = classifyMode(gph)
	return reading
}

func estimateGPH(cur, prev *models.TelemetrySample, prevIdleGPH float64) (float64, models.IdleMethod, bool) {
	// 1. ECU_IDLE_COUNTER
	if prev != nil && cur.TotalIdleFuelGal != nil && prev.TotalIdleFuelGal != nil {
		dt := cur.Timestamp.Sub(prev.Timestamp)
		if dt >= 36*time.Second {
			delta := *cur.TotalIdleFuelGal - *prev.TotalIdleFuelGal
			if delta > 0 && delta < 5 {
				gph := delta / dt.Hours()
				if gph >= 0.1 && gph <= 5.0 {
					return gph, models.IdleECUCounter, true
				}
			}
		}
	}

	// 2. ENGINE_OFF
	validFuelRate := cur.FuelRateLPH != nil && *cur.FuelRateLPH >= 1.5 && *cur.FuelRateLPH <= 12.0
	if cur.RPM != nil && *cur.RPM == 0 && !validFuelRate {
		return 0, models.IdleEngineOff, true
	}

	// 3. SENSOR_FUEL_RATE
	if validFuelRate {
		gph := *cur.FuelRateLPH / litersPerGallon
		if prevIdleGPH > 0 {
			const alpha = 0.3
			gph = alpha*gph + (1-alpha)*prevIdleGPH
		}
		return gph, models.IdleSensorFuelRate, true
	}

	// 4. CALCULATED_DELTA
	if prev != nil && cur.FuelLiters != nil && prev.FuelLiters != nil {
		dt := cur.Timestamp.Sub(prev.Timestamp)
		if dt >= 12*time.Minute {
			consumedL := *prev.FuelLiters - *cur.FuelLiters
			if consumedL > 0 {
				lph := consumedL / dt.Hours()
				if lph >= 0.5 && lph <= 10.0 {
					return lph / litersPerGallon, models.IdleCalculatedDelta, true
				}
			}
		}
	}

	// 5. RPM_ESTIMATE
	if cur.RPM != nil && *cur.RPM > 0 {
		gph := 0.3 + (float64(*cur.RPM)/1000.0)*0.2
		return applyTempFactor(gph, cur.AmbientTempF), models.IdleRPMEstimate, true
	}

	// 6. FALLBACK_CONSENSUS
	return applyTempFactor(0.8, cur.AmbientTempF), models.IdleFallbackConsensus, true
}

// tempFactor returns the multiplier applied to RPM/fallback idle estimates
// based on ambient temperature; unknown temperature applies no adjustment.
func tempFactor(tempF *float64) float64 {
	if tempF == nil {
		return 1.0
	}
	t := *tempF
	switch {
	case t < 32:
		return 1.5
	case t < 60:
		return 1.25
	case t <= 75:
		return 1.0
	case t < 95:
		return 1.3
	default:
		return 1.5
	}
}

func applyTempFactor(gph float64, tempF *float64) float64 {
	return gph * tempFactor(tempF)
}

// classifyMode buckets an idle GPH value into an operating regime.
func classifyMode(gph float64) models.IdleMode {
	switch {
	case gph <= 0:
		return models.IdleModeEngineOff
	case gph <= 1.2:
		return models.IdleModeNormal
	case gph <= 2.5:
		return models.IdleModeReefer
	default:
		return models.IdleModeHeavy
	}
}

// ValidationResult is the outcome of comparing calculated idle hours against
// the ECU's cumulative idle_hours/engine_hours ratio (S6).
type ValidationResult struct {
	IsValid            bool
	NeedsInvestigation bool
	DeviationPct       float64
	Confidence         models.Confidence
}

// Validate compares the calculated daily idle hours (from this truck's idle
// readings over the report window) against the ECU-reported idle/engine
// hour ratio, flagging a >15% deviation for investigation. Idle/engine hour
// values clearly out of physical range force LOW confidence.
func Validate(calculatedIdleHoursPerDay float64, idleHours, engineHours *float64) ValidationResult {
	result := ValidationResult{IsValid: true, Confidence: models.ConfidenceHigh}

	if idleHours == nil || engineHours == nil || *engineHours <= 0 {
		result.Confidence = models.ConfidenceMedium
		return result
	}

	if *idleHours < 0 || *idleHours > 100000 {
		result.Confidence = models.ConfidenceLow
	}

	ecuRatio := *idleHours / *engineHours
	// calculatedIdleHoursPerDay is compared against the ECU ratio expressed
	// as hours/day assuming a 24h reporting window.
	impliedIdleHoursPerDay := ecuRatio * 24

	if impliedIdleHoursPerDay <= 0 {
		return result
	}

	deviation := (calculatedIdleHoursPerDay - impliedIdleHoursPerDay) / impliedIdleHoursPerDay * 100
	result.DeviationPct = deviation
	if abs(deviation) > 15 {
		result.IsValid = false
		result.NeedsInvestigation = true
	}
	return result
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
