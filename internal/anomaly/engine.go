// Package anomaly is the persistent per (truck, sensor) EWMA/CUSUM
// streaming detector: an exponentially weighted mean with z-score severity
// bands combined with a two-sided CUSUM change-point test.
package anomaly

import (
	"math"
	"sync"
	"time"

	"github.com/fleetops/fuelcore/internal/models"
)

// Config parameterizes the EWMA/CUSUM math. Zero values are replaced with
// defaults by NewEngine.
type Config struct {
	Alpha float64 // EWMA smoothing factor, default 0.3
	Drift float64 // CUSUM drift k, also the EWMA drift multiple; 0 uses 1.0
	H     float64 // CUSUM alarm threshold, default 5.0
}

func (c Config) withDefaults() Config {
	if c.Alpha == 0 {
		c.Alpha = 0.3
	}
	if c.H == 0 {
		c.H = 5.0
	}
	if c.Drift == 0 {
		c.Drift = 1.0
	}
	return c
}

type key struct {
	truckID string
	sensor  string
}

// Engine owns AlgorithmState for every supervised (truck, sensor) pair.
type Engine struct {
	cfg Config

	mu     sync.RWMutex
	states map[key]*models.AlgorithmState
}

// NewEngine returns an Engine with cfg's defaults applied.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults(), states: make(map[key]*models.AlgorithmState)}
}

// Seed installs a previously-persisted AlgorithmState, used at startup to
// resume detection without a cold start.
func (e *Engine) Seed(state models.AlgorithmState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := state
	e.states[key{state.TruckID, state.Sensor}] = &s
}

// Update folds one new sensor reading into the truck/sensor's state and
// returns the updated state plus any anomalies the EWMA/CUSUM tests raised
// this sample. target is the value CUSUM treats as the process center
// (configured baseline mean when learned, else the running sensor mean);
// sensorStd is the current running standard deviation, used for the z-score
// reported on CUSUM alarms; the EWMA drift test scales by the EWMA's own
// standard deviation.
func (e *Engine) Update(truckID, sensor string, value, target, sensorStd float64, now time.Time) (models.AlgorithmState, []models.Anomaly) {
	k := key{truckID, sensor}

	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.states[k]
	if !ok {
		s = &models.AlgorithmState{TruckID: truckID, Sensor: sensor, EWMA: value, TrendDirection: models.TrendStable}
		e.states[k] = s
	}

	var anomalies []models.Anomaly

	// EWMA update: running mean and running variance of squared residuals,
	// both via the same exponential smoothing constant.
	residual := value - s.EWMA
	if s.Samples > 0 {
		s.EWMA = e.cfg.Alpha*value + (1-e.cfg.Alpha)*s.EWMA
		s.EWMAVariance = e.cfg.Alpha*residual*residual + (1-e.cfg.Alpha)*s.EWMAVariance
	} else {
		s.EWMA = value
		s.EWMAVariance = 0
	}
	s.Samples++

	ewmaStd := math.Sqrt(s.EWMAVariance)
	if ewmaStd > 0 && math.Abs(value-s.EWMA) > e.cfg.Drift*ewmaStd {
		zScore := zScore(value, s.EWMA, ewmaStd)
		anomalies = append(anomalies, models.Anomaly{
			TruckID: truckID, Sensor: sensor, Timestamp: now,
			Type: models.AnomalyEWMA, Severity: severityForZ(zScore),
			SensorValue: value, EWMAValue: s.EWMA, ZScore: zScore,
		})
	}

	// Two-sided CUSUM against target.
	s.CUSUMPos = math.Max(0, s.CUSUMPos+(value-target)-e.cfg.Drift)
	s.CUSUMNeg = math.Max(0, s.CUSUMNeg-(value-target)-e.cfg.Drift)

	if s.CUSUMPos > e.cfg.H {
		anomalies = append(anomalies, models.Anomaly{
			TruckID: truckID, Sensor: sensor, Timestamp: now,
			Type: models.AnomalyCUSUM, Severity: models.SeverityHigh,
			SensorValue: value, EWMAValue: s.EWMA, CUSUMValue: s.CUSUMPos,
			Threshold: e.cfg.H, ZScore: zScore(value, target, sensorStd),
		})
		s.CUSUMPos = 0
	}
	if s.CUSUMNeg > e.cfg.H {
		anomalies = append(anomalies, models.Anomaly{
			TruckID: truckID, Sensor: sensor, Timestamp: now,
			Type: models.AnomalyCUSUM, Severity: models.SeverityHigh,
			SensorValue: value, EWMAValue: s.EWMA, CUSUMValue: s.CUSUMNeg,
			Threshold: e.cfg.H, ZScore: zScore(value, target, sensorStd),
		})
		s.CUSUMNeg = 0
	}

	s.UpdatedAt = now
	return *s, anomalies
}

// ApplyTrend overwrites the state's trend fields from a slope computed over
// the sensor's recent history (see Trend below), persisting it alongside
// the next checkpoint.
func (e *Engine) ApplyTrend(truckID, sensor string, slopePerDay float64, direction models.TrendDirection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.states[key{truckID, sensor}]; ok {
		s.TrendSlopePerDay = slopePerDay
		s.TrendDirection = direction
	}
}

// State returns the current AlgorithmState for (truckID, sensor).
func (e *Engine) State(truckID, sensor string) (models.AlgorithmState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[key{truckID, sensor}]
	if !ok {
		return models.AlgorithmState{}, false
	}
	return *s, true
}

func zScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

func severityForZ(z float64) models.Severity {
	abs := math.Abs(z)
	switch {
	case abs >= 4.0:
		return models.SeverityCritical
	case abs >= 3.0:
		return models.SeverityHigh
	case abs >= 2.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// HistoryPoint is one timestamped raw reading, used by Trend to compute a
// least-squares slope over real elapsed time.
type HistoryPoint struct {
	Timestamp time.Time
	Value     float64
}

// Trend fits a least-squares line over history and reports the slope
// projected to a per-day rate plus a direction classification. Fewer than 2
// points returns STABLE with a zero slope.
func Trend(history []HistoryPoint) (slopePerDay float64, direction models.TrendDirection) {
	n := len(history)
	if n < 2 {
		return 0, models.TrendStable
	}

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
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0, models.TrendStable
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	mean := sumY / fn
	var sqDiff float64
	for _, p := range history {
		d := p.Value - mean
		sqDiff += d * d
	}
	stdDev := math.Sqrt(sqDiff / fn)

	switch {
	case stdDev > 0 && math.Abs(slope) > 0 && stdDev/math.Max(math.Abs(mean), 1e-9) > 0.5:
		direction = models.TrendStable
	case slope > 0.01:
		direction = models.TrendUp
	case slope < -0.01:
		direction = models.TrendDown
	default:
		direction = models.TrendStable
	}

	return slope, direction
}
