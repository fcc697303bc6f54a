// Package refuel detects refuel events from a fuel-level
// jump between consecutive samples, and learning per-truck adaptive
// thresholds from the confirmed refuel history.
package refuel

import (
	"sort"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

// DefaultMinPct and DefaultMinGal are the thresholds used absent any
// AdaptiveThreshold record for a truck.
const (
	DefaultMinPct = 8.0
	DefaultMinGal = 3.0
)

// Detect compares cur against prev and returns a RefuelEvent if the rise in
// fuel percentage and gallons both clear threshold. tankCapacityGal
// converts a percentage rise into gallons added.
func Detect(cur, prev *models.TelemetrySample, tankCapacityGal float64, threshold *models.AdaptiveThreshold) (*models.RefuelEvent, bool) {
	if prev == nil || cur.FuelPercent == nil || prev.FuelPercent == nil {
		return nil, false
	}

	minPct, minGal := DefaultMinPct, DefaultMinGal
	if threshold != nil {
		minPct, minGal = threshold.MinPct, threshold.MinGal
	}

	pctIncrease := *cur.FuelPercent - *prev.FuelPercent
	if pctIncrease < minPct {
		return nil, false
	}

	galIncrease := pctIncrease / 100.0 * tankCapacityGal
	if galIncrease < minGal {
		return nil, false
	}

	method := models.RefuelPctJump
	confidence := confidenceForJump(pctIncrease, cur.Status)

	if cur.TotalFuelAddedGal != nil && prev.TotalFuelAddedGal != nil {
		ecuDelta := *cur.TotalFuelAddedGal - *prev.TotalFuelAddedGal
		if ecuDelta > 0 && closeEnough(ecuDelta, galIncrease, 0.25) {
			method = models.RefuelECUCounter
			confidence = 1.0
		}
	}

	return &models.RefuelEvent{
		TruckID:       cur.TruckID,
		Timestamp:     cur.Timestamp,
		FuelPctBefore: *prev.FuelPercent,
		FuelPctAfter:  *cur.FuelPercent,
		GallonsAdded:  galIncrease,
		Confidence:    confidence,
		Method:        method,
	}, true
}

// confidenceForJump scores a PCT_JUMP refuel 0.7-0.9: larger jumps and a
// stationary truck both raise confidence.
func confidenceForJump(pctIncrease float64, status models.TruckStatus) float64 {
	confidence := 0.7
	if pctIncrease >= 20 {
		confidence += 0.15
	} else if pctIncrease >= 12 {
		confidence += 0.08
	}
	if status == models.StatusStopped {
		confidence += 0.05
	}
	if confidence > 0.9 {
		confidence = 0.9
	}
	return confidence
}

func closeEnough(a, b, tolFrac float64) bool {
	if b == 0 {
		return a == 0
	}
	diff := (a - b) / b
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolFrac
}

// refuelSample is one confirmed refuel's percentage/gallon deltas, retained
// for percentile-based threshold relearning.
type refuelSample struct {
	pct float64
	gal float64
}

// Learner maintains each truck's last-50 confirmed refuel deltas and
// recomputes AdaptiveThreshold records from them.
type Learner struct {
	history map[string][]refuelSample
}

// NewLearner returns an empty Learner.
func NewLearner() *Learner {
	return &Learner{history: make(map[string][]refuelSample)}
}

const maxHistory = 50

// Observe feeds one confirmed refuel's deltas into the truck's history and
// recomputes its AdaptiveThreshold once at least 3 confirmed refuels are on
// record. sensorVariance is the running standard deviation of the truck's
// fuel-percent sensor, used to scale thresholds wider on noisier trucks.
func (l *Learner) Observe(cfg *config.Config, truckID string, pctIncrease, galIncrease, sensorVariance float64, prior *models.AdaptiveThreshold, now time.Time) models.AdaptiveThreshold {
	hist := append(l.history[truckID], refuelSample{pct: pctIncrease, gal: galIncrease})
	if len(hist) > maxHistory {
		hist = hist[len(hist)-maxHistory:]
	}
	l.history[truckID] = hist

	confirmed := len(hist)
	result := models.AdaptiveThreshold{
		TruckID:          truckID,
		MinPct:           DefaultMinPct,
		MinGal:           DefaultMinGal,
		SensorVariance:   sensorVariance,
		ConfirmedRefuels: confirmed,
		UpdatedAt:        now,
	}
	if prior != nil {
		result.MinPct, result.MinGal = prior.MinPct, prior.MinGal
	}

	if confirmed < 3 {
		return result
	}

	observedPct := percentile10(extractPct(hist))
	observedGal := percentile10(extractGal(hist))

	varianceFactor := 1 + 0.5*(sensorVariance-1)
	if varianceFactor < 0.5 {
		varianceFactor = 0.5
	}

	const learningRate = 0.2
	blendedPct := (learningRate*observedPct + (1-learningRate)*DefaultMinPct) * varianceFactor
	blendedGal := (learningRate*observedGal + (1-learningRate)*DefaultMinGal) * varianceFactor

	floorCeil := cfg.ThresholdFloorCeiling
	result.MinPct = clamp(blendedPct, floorCeil.MinPctFloor, floorCeil.MinPctCeiling)
	result.MinGal = clamp(blendedGal, floorCeil.MinGalFloor, floorCeil.MinGalCeiling)

	return result
}

func extractPct(samples []refuelSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.pct
	}
	return out
}

func extractGal(samples []refuelSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.gal
	}
	return out
}

// percentile10 returns the 10th-percentile value via linear interpolation,
// robust to outliers from a handful of unusually large or small refuels.
func percentile10(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := 0.10 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
