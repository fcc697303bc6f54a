// Package telemetry validates one raw TelemetrySample
// against configured per-sensor ranges before it enters the rest of the
// pipeline.
package telemetry

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

var lateSampleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fuelcore_late_sample_total",
	Help: "Samples dropped for a non-monotonic or duplicate timestamp, by truck_id.",
}, []string{"truck_id"})

// Validator tracks the last-accepted timestamp per truck and nulls
// out-of-range sensor fields on each incoming sample.
type Validator struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewValidator returns a Validator with no truck history.
func NewValidator() *Validator {
	return &Validator{lastSeen: make(map[string]time.Time)}
}

// Validate nulls any field outside its configured range, coerces
// NaN/Inf/non-finite values to null, and rejects the sample outright if its
// timestamp is not strictly newer than the last accepted sample for this
// truck. ok is false when the sample was dropped.
func (v *Validator) Validate(cfg *config.Config, s *models.TelemetrySample) (*models.TelemetrySample, bool) {
	if s == nil || s.TruckID == "" {
		return nil, false
	}

	v.mu.Lock()
	last, seen := v.lastSeen[s.TruckID]
	if seen && !s.Timestamp.After(last) {
		v.mu.Unlock()
		lateSampleTotal.WithLabelValues(s.TruckID).Inc()
		log.Warn().Str("truck_id", s.TruckID).Time("timestamp", s.Timestamp).Msg("dropped late or duplicate sample")
		return nil, false
	}
	v.lastSeen[s.TruckID] = s.Timestamp
	v.mu.Unlock()

	out := *s
	clampRange(cfg, "oil_pressure", &out.OilPressurePSI)
	clampRange(cfg, "coolant_temp", &out.CoolantTempF)
	clampRange(cfg, "oil_temp", &out.OilTempF)
	clampRange(cfg, "trans_temp", &out.TransTempF)
	clampRange(cfg, "battery_voltage", &out.BatteryVoltage)
	clampRange(cfg, "fuel_rate_lph", &out.FuelRateLPH)

	sanitize(&out.FuelPercent)
	sanitize(&out.FuelLiters)
	sanitize(&out.OdometerMiles)
	sanitize(&out.EngineHours)
	sanitize(&out.IdleHours)
	sanitize(&out.TotalIdleFuelGal)
	sanitize(&out.TotalFuelAddedGal)
	sanitize(&out.AmbientTempF)
	sanitize(&out.GPSQuality)

	return &out, true
}

// clampRange nulls *field when it falls outside the configured band for
// sensor, or when it is NaN/Inf.
func clampRange(cfg *config.Config, sensor string, field **float64) {
	if *field == nil {
		return
	}
	val := **field
	if !sanitizeValue(val) {
		*field = nil
		return
	}
	rng, ok := cfg.SensorRanges[sensor]
	if !ok {
		return
	}
	if val < rng.Min || val > rng.Max {
		*field = nil
	}
}

func sanitize(field **float64) {
	if *field == nil {
		return
	}
	if !sanitizeValue(**field) {
		*field = nil
	}
}

func sanitizeValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
