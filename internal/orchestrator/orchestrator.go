// Package orchestrator wires the per-sample pipeline that runs validation
// through alerting in order, sharded by truck so each truck's samples are
// processed sequentially while distinct trucks run in parallel.
package orchestrator

import (
	"context"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fleetops/fuelcore/internal/actions"
	"github.com/fleetops/fuelcore/internal/alertdispatch"
	"github.com/fleetops/fuelcore/internal/anomaly"
	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/correlation"
	"github.com/fleetops/fuelcore/internal/fleethealth"
	"github.com/fleetops/fuelcore/internal/forecast"
	"github.com/fleetops/fuelcore/internal/idle"
	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/persistence"
	"github.com/fleetops/fuelcore/internal/prioritizer"
	"github.com/fleetops/fuelcore/internal/refuel"
	"github.com/fleetops/fuelcore/internal/risk"
	"github.com/fleetops/fuelcore/internal/sensorstate"
	"github.com/fleetops/fuelcore/internal/telemetry"
	"github.com/fleetops/fuelcore/internal/voltage"
)

var (
	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuelcore_pipeline_duration_seconds",
		Help:    "Wall time for one sample's full pipeline pass.",
		Buckets: prometheus.DefBuckets,
	}, []string{"shard"})

	activeTrucks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuelcore_active_trucks",
		Help: "Trucks with at least one sample received today.",
	})
)

// supervisedSensor pairs a sensor name with its failure thresholds for the
// streaming detectors and the days-to-failure predictor.
type supervisedSensor struct {
	name          string
	warn          float64
	crit          float64
	higherIsWorse bool
}

var supervisedSensors = []supervisedSensor{
	{name: "coolant_temp", warn: 230, crit: 245, higherIsWorse: true},
	{name: "oil_temp", warn: 245, crit: 260, higherIsWorse: true},
	{name: "trans_temp", warn: 215, crit: 230, higherIsWorse: true},
	{name: "oil_pressure", warn: 25, crit: 15, higherIsWorse: false},
	{name: "battery_voltage", warn: 12.2, crit: 11.8, higherIsWorse: false},
}

type histKey struct {
	truckID string
	sensor  string
}

// maxSensorHistory bounds the timestamped per (truck, sensor) history kept
// for trend fitting and days-to-failure prediction.
const maxSensorHistory = 50

// Orchestrator wires every component and owns the arenas the command
// center reads from.
type Orchestrator struct {
	watcher *config.Watcher

	validator  *telemetry.Validator
	baselines  *sensorstate.Store
	engine     *anomaly.Engine
	learner    *refuel.Learner
	gateway    *persistence.Gateway
	dispatcher *alertdispatch.Dispatcher
	ring       *fleethealth.Ring

	shards []chan *models.TelemetrySample

	// mu guards the arenas below. Each truck's entries are written by the
	// shard owning that truck and by markOfflineTrucks on the ticker; the
	// HTTP layer and the snapshot cycle read them.
	mu             sync.RWMutex
	trucks         map[string]*models.Truck
	prevSample     map[string]*models.TelemetrySample
	lastIdleGPH    map[string]float64
	sensorHistory  map[histKey][]anomaly.HistoryPoint
	itemsByTruck   map[string][]models.ActionItem
	riskByTruck    map[string]models.TruckRiskScore
	idleValidation map[string]idle.ValidationResult
	idleReadings   map[string]models.IdleReading
	totalSamples   map[string]int64
	idleSamples    map[string]int64
	voltageAnalyses map[string]voltage.Analysis
	refuelEvents   []models.RefuelEvent
	anomalyLog     []models.Anomaly
	dataQuality    map[string]bool
	activeToday    map[string]time.Time
}

// Options carries the orchestrator's collaborators; zero-valued fields get
// sane defaults or are skipped.
type Options struct {
	Watcher    *config.Watcher
	Gateway    *persistence.Gateway
	Dispatcher *alertdispatch.Dispatcher
	Ring       *fleethealth.Ring
	Shards     int
}

// New builds an Orchestrator, reseeding the anomaly engine from persisted
// algorithm state so restarts resume cleanly.
func New(opts Options) *Orchestrator {
	cfg := opts.Watcher.Current()

	shards := opts.Shards
	if shards <= 0 {
		shards = runtime.NumCPU()
		if shards < 2 {
			shards = 2
		}
	}

	o := &Orchestrator{
		watcher:        opts.Watcher,
		validator:      telemetry.NewValidator(),
		baselines:      sensorstate.NewStore(cfg),
		engine:         anomaly.NewEngine(anomaly.Config{}),
		learner:        refuel.NewLearner(),
		gateway:        opts.Gateway,
		dispatcher:     opts.Dispatcher,
		ring:           opts.Ring,
		shards:         make([]chan *models.TelemetrySample, shards),
		trucks:         make(map[string]*models.Truck),
		prevSample:     make(map[string]*models.TelemetrySample),
		lastIdleGPH:    make(map[string]float64),
		sensorHistory:  make(map[histKey][]anomaly.HistoryPoint),
		itemsByTruck:   make(map[string][]models.ActionItem),
		riskByTruck:    make(map[string]models.TruckRiskScore),
		idleValidation: make(map[string]idle.ValidationResult),
		idleReadings:   make(map[string]models.IdleReading),
		totalSamples:    make(map[string]int64),
		idleSamples:     make(map[string]int64),
		voltageAnalyses: make(map[string]voltage.Analysis),
		dataQuality:    make(map[string]bool),
		activeToday:    make(map[string]time.Time),
	}

	for i := range o.shards {
		o.shards[i] = make(chan *models.TelemetrySample, 256)
	}

	if o.gateway != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for _, st := range o.gateway.LoadAllAlgorithmStates(ctx) {
			o.engine.Seed(st)
		}
		cancel()
	}

	return o
}

// Run starts the shard workers and the periodic snapshot loop, blocking
// until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, snapshotInterval time.Duration) error {
	if snapshotInterval <= 0 {
		snapshotInterval = 5 * time.Minute
	}

	g, ctx := errgroup.WithContext(ctx)

	for i, shard := range o.shards {
		i, shard := i, shard
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case sample := <-shard:
					start := time.Now()
					o.processSample(ctx, sample)
					pipelineDuration.WithLabelValues(shardLabel(i)).Observe(time.Since(start).Seconds())
				}
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case now := <-ticker.C:
				o.markOfflineTrucks(now)
				o.RecordTrendSnapshot(now)
			}
		}
	})

	return g.Wait()
}

func shardLabel(i int) string {
	return strconv.Itoa(i)
}

// Submit routes one raw sample to its truck's shard, preserving per-truck
// ordering. It never blocks the caller: a full shard drops the sample and
// logs it, matching the swallow-and-continue posture.
func (o *Orchestrator) Submit(sample *models.TelemetrySample) {
	if sample == nil || sample.TruckID == "" {
		return
	}
	h := fnv.New32a()
	h.Write([]byte(sample.TruckID))
	shard := o.shards[int(h.Sum32())%len(o.shards)]

	select {
	case shard <- sample:
	default:
		log.Warn().Str("truck_id", sample.TruckID).Msg("shard queue full, sample dropped")
	}
}

// processSample runs the full pipeline for one sample.
func (o *Orchestrator) processSample(ctx context.Context, raw *models.TelemetrySample) {
	cfg := o.watcher.Current()
	quality := map[string]bool{
		"validation": true, "baselines": true, "idle": true, "refuel": true,
		"anomaly": true, "forecast": true, "correlation": true, "synthesis": true,
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("truck_id", raw.TruckID).
				Msg("pipeline invariant violation, sample skipped")
		}
		o.mu.Lock()
		for k, v := range quality {
			o.dataQuality[k] = v
		}
		o.mu.Unlock()
	}()

	sample, ok := o.validator.Validate(cfg, raw)
	if !ok {
		return
	}

	truck, prev := o.upsertTruck(cfg, sample)

	// Fold every present supervised reading into baselines and the
	// timestamped history used for trend fitting.
	for _, sensor := range supervisedSensors {
		value, present := sample.SensorValue(sensor.name)
		if !present {
			continue
		}
		o.baselines.Observe(sample.TruckID, sensor.name, value, sample.Timestamp)
		o.appendHistory(sample.TruckID, sensor.name, value, sample.Timestamp)
	}
	if sample.FuelPercent != nil {
		o.baselines.Observe(sample.TruckID, "fuel_percent", *sample.FuelPercent, sample.Timestamp)
	}

	// Idle estimation and validation.
	reading := o.runIdle(ctx, sample, prev)

	// Refuel detection and adaptive threshold learning.
	refuelEvent := o.runRefuel(ctx, cfg, truck, sample, prev)

	// Streaming detectors, forecasts, correlations.
	anomalies := o.runDetectors(ctx, cfg, sample)
	forecasts := o.runForecasts(cfg, sample)
	correlations := correlation.EvaluateTruck(cfg.FailurePatterns, o.baselines, sample.TruckID, sample.Timestamp)
	for _, ev := range correlations {
		if o.gateway != nil {
			o.gateway.RecordCorrelationEvent(ctx, ev.TruckID, ev.PatternName, ev.Timestamp, ev)
		}
	}

	// Synthesize action items from every signal this sample produced.
	inputs := o.synthesize(ctx, cfg, sample, anomalies, forecasts, correlations)

	// Dedup and prioritize.
	items, err := prioritizer.Process(cfg, inputs, sample.Timestamp)
	if err != nil {
		log.Error().Err(err).Str("truck_id", sample.TruckID).Msg("prioritization failed")
		quality["synthesis"] = false
		items = nil
	}

	// Per-truck risk.
	riskScore := o.scoreRisk(ctx, cfg, sample.TruckID, items, sample.Timestamp)

	// Alerting on the surviving items.
	o.raiseAlerts(ctx, items, sample.Timestamp)

	// Persist the enriched sample and commit the cycle's outputs to
	// the arenas the command center reads.
	if o.gateway != nil {
		o.gateway.RecordFuelMetric(ctx, sample)
	}

	o.mu.Lock()
	o.prevSample[sample.TruckID] = sample
	o.itemsByTruck[sample.TruckID] = items
	o.riskByTruck[sample.TruckID] = riskScore
	o.idleReadings[sample.TruckID] = reading
	if refuelEvent != nil {
		o.refuelEvents = append(o.refuelEvents, *refuelEvent)
		if len(o.refuelEvents) > 1000 {
			o.refuelEvents = o.refuelEvents[len(o.refuelEvents)-1000:]
		}
	}
	for _, a := range anomalies {
		o.anomalyLog = append(o.anomalyLog, a)
	}
	if len(o.anomalyLog) > 1000 {
		o.anomalyLog = o.anomalyLog[len(o.anomalyLog)-1000:]
	}
	o.activeToday[sample.TruckID] = sample.Timestamp
	activeTrucks.Set(float64(len(o.activeToday)))
	o.mu.Unlock()
}

// upsertTruck creates or updates the truck record and advances its status
// state machine, returning the truck and the previous sample.
func (o *Orchestrator) upsertTruck(cfg *config.Config, sample *models.TelemetrySample) (*models.Truck, *models.TelemetrySample) {
	o.mu.Lock()
	defer o.mu.Unlock()

	truck, ok := o.trucks[sample.TruckID]
	if !ok {
		truck = &models.Truck{
			ID:              sample.TruckID,
			TankCapacityGal: 150,
			Status:          sample.Status,
			LastSeen:        sample.Timestamp,
		}
		o.trucks[sample.TruckID] = truck
	}

	prev := o.prevSample[sample.TruckID]

	sinceLast := time.Duration(0)
	if prev != nil {
		sinceLast = sample.Timestamp.Sub(prev.Timestamp)
	}
	// The sample's reported status is the raw movement signal; the state
	// machine owns the debounced transition (two consecutive stationary
	// low-RPM samples before MOVING becomes STOPPED), so its result is
	// authoritative for the truck record.
	speedNonZero := sample.Status == models.StatusMoving
	offlineAfter := time.Duration(cfg.OfflineWarningHours * float64(time.Hour))
	truck.Status = truck.AdvanceStatus(speedNonZero, sample.RPM, sinceLast, offlineAfter)
	truck.LastSeen = sample.Timestamp

	return truck, prev
}

func (o *Orchestrator) appendHistory(truckID, sensor string, value float64, ts time.Time) {
	k := histKey{truckID, sensor}
	o.mu.Lock()
	hist := append(o.sensorHistory[k], anomaly.HistoryPoint{Timestamp: ts, Value: value})
	if len(hist) > maxSensorHistory {
		hist = hist[len(hist)-maxSensorHistory:]
	}
	o.sensorHistory[k] = hist
	o.mu.Unlock()
}

func (o *Orchestrator) runIdle(ctx context.Context, sample, prev *models.TelemetrySample) models.IdleReading {
	o.mu.RLock()
	prevGPH := o.lastIdleGPH[sample.TruckID]
	o.mu.RUnlock()

	reading := idle.Estimate(sample, prev, prevGPH)

	if reading.IdleGPH > 0 {
		o.mu.Lock()
		o.lastIdleGPH[sample.TruckID] = reading.IdleGPH
		o.mu.Unlock()
	}

	// Track the share of samples spent idling; projected over a day it is
	// the calculated idle-hours figure the ECU ratio is checked against.
	o.mu.Lock()
	o.totalSamples[sample.TruckID]++
	if reading.IdleGPH > 0 {
		o.idleSamples[sample.TruckID]++
	}
	total := o.totalSamples[sample.TruckID]
	idling := o.idleSamples[sample.TruckID]
	o.mu.Unlock()

	if sample.IdleHours != nil && sample.EngineHours != nil && total >= 10 {
		calculated := float64(idling) / float64(total) * 24
		result := idle.Validate(calculated, sample.IdleHours, sample.EngineHours)
		o.mu.Lock()
		o.idleValidation[sample.TruckID] = result
		o.mu.Unlock()
		if o.gateway != nil {
			o.gateway.RecordIdleValidation(ctx, sample.TruckID, sample.Timestamp, result)
		}
	}

	return reading
}

func (o *Orchestrator) runRefuel(ctx context.Context, cfg *config.Config, truck *models.Truck, sample, prev *models.TelemetrySample) *models.RefuelEvent {
	var threshold *models.AdaptiveThreshold
	if o.gateway != nil {
		threshold = o.gateway.LoadAdaptiveThreshold(ctx, sample.TruckID)
	}

	event, detected := refuel.Detect(sample, prev, truck.TankCapacityGal, threshold)
	if !detected {
		return nil
	}

	if o.gateway != nil {
		o.gateway.RecordRefuelEvent(ctx, *event)
	}

	variance := 1.0
	if baseline, ok := o.baselines.GetBaseline(sample.TruckID, "fuel_percent"); ok && baseline.StdDev > 0 {
		variance = baseline.StdDev
	}
	updated := o.learner.Observe(cfg, sample.TruckID,
		event.FuelPctAfter-event.FuelPctBefore, event.GallonsAdded, variance, threshold, sample.Timestamp)
	if o.gateway != nil {
		o.gateway.SaveAdaptiveThreshold(ctx, updated)
	}

	log.Info().
		Str("truck_id", sample.TruckID).
		Float64("gallons", event.GallonsAdded).
		Str("method", string(event.Method)).
		Float64("confidence", event.Confidence).
		Msg("refuel detected")

	return event
}

// runDetectors feeds every supervised reading through the EWMA/CUSUM engine
// and the persistence-gated threshold check, checkpointing state after each
// update.
func (o *Orchestrator) runDetectors(ctx context.Context, cfg *config.Config, sample *models.TelemetrySample) []models.Anomaly {
	var out []models.Anomaly

	for _, sensor := range supervisedSensors {
		value, present := sample.SensorValue(sensor.name)
		if !present {
			continue
		}

		baseline, _ := o.baselines.GetBaseline(sample.TruckID, sensor.name)
		target := baseline.Mean
		state, anomalies := o.engine.Update(sample.TruckID, sensor.name, value, target, baseline.StdDev, sample.Timestamp)

		// Trend over the timestamped history rides along with the state.
		o.mu.RLock()
		hist := o.sensorHistory[histKey{sample.TruckID, sensor.name}]
		o.mu.RUnlock()
		slope, direction := anomaly.Trend(hist)
		o.engine.ApplyTrend(sample.TruckID, sensor.name, slope, direction)
		state.TrendSlopePerDay = slope
		state.TrendDirection = direction

		if o.gateway != nil {
			o.gateway.SaveAlgorithmState(ctx, state)
		}

		// THRESHOLD events gate through the persistence check to suppress
		// single-sample noise.
		window := cfg.SensorWindowFor(sensor.name)
		if persistent, _ := o.baselines.HasPersistentCriticalReading(
			sample.TruckID, sensor.name, sensor.crit, sensor.higherIsWorse, window.MinReadings); persistent {
			out = append(out, models.Anomaly{
				TruckID: sample.TruckID, Sensor: sensor.name, Timestamp: sample.Timestamp,
				Type: models.AnomalyThreshold, Severity: models.SeverityCritical,
				SensorValue: value, EWMAValue: state.EWMA, Threshold: sensor.crit,
			})
		}

		out = append(out, anomalies...)
	}

	for _, a := range out {
		if o.gateway != nil {
			o.gateway.RecordAnomaly(ctx, a)
		}
	}
	return out
}

func (o *Orchestrator) runForecasts(cfg *config.Config, sample *models.TelemetrySample) []forecast.Forecast {
	var out []forecast.Forecast
	for _, sensor := range supervisedSensors {
		o.mu.RLock()
		hist := o.sensorHistory[histKey{sample.TruckID, sensor.name}]
		o.mu.RUnlock()
		if len(hist) < 3 {
			continue
		}
		points := make([]forecast.Point, len(hist))
		for i, p := range hist {
			points[i] = forecast.Point{Timestamp: p.Timestamp, Value: p.Value}
		}
		higherIsWorse := sensor.higherIsWorse
		if dir, ok := cfg.SensorDirection[sensor.name]; ok {
			higherIsWorse = dir.HigherIsWorse
		}
		f := forecast.Predict(sensor.name, points, sensor.warn, sensor.crit, higherIsWorse)
		if f.Urgency != forecast.UrgencyNone {
			out = append(out, f)
		}
	}
	return out
}

// synthesize turns the cycle's signals into prioritizer inputs.
func (o *Orchestrator) synthesize(ctx context.Context, cfg *config.Config, sample *models.TelemetrySample,
	anomalies []models.Anomaly, forecasts []forecast.Forecast,
	correlations []correlation.Event) []prioritizer.Input {

	var inputs []prioritizer.Input

	for _, a := range anomalies {
		item := actions.FromAnomaly(cfg, a)
		score := zToScore(a.ZScore)
		inputs = append(inputs, prioritizer.Input{Item: item, AnomalyScore: &score})
	}

	for _, f := range forecasts {
		if item, ok := actions.FromForecast(cfg, sample.TruckID, f); ok {
			inputs = append(inputs, prioritizer.Input{Item: item})
		}
	}

	for _, ev := range correlations {
		item := actions.FromCorrelation(cfg, ev)
		score := ev.Confidence
		inputs = append(inputs, prioritizer.Input{Item: item, AnomalyScore: &score})
	}

	for _, dtc := range sample.DTCs {
		if o.gateway != nil {
			o.gateway.RecordDTCEvent(ctx, sample.TruckID, sample.Timestamp, dtc)
		}
		inputs = append(inputs, prioritizer.Input{Item: actions.FromDTC(cfg, sample.TruckID, dtc)})
	}

	o.mu.RLock()
	validation, hasValidation := o.idleValidation[sample.TruckID]
	o.mu.RUnlock()
	if hasValidation {
		if item, ok := actions.FromIdleValidation(cfg, sample.TruckID, validation); ok {
			inputs = append(inputs, prioritizer.Input{Item: item})
		}
	}

	if analysis, ok := voltage.Analyze(sample.TruckID, sample.BatteryVoltage, sample.RPM, voltage.DefaultThresholds()); ok {
		o.mu.Lock()
		o.voltageAnalyses[sample.TruckID] = analysis
		o.mu.Unlock()
		if item, ok := actions.FromVoltage(cfg, analysis); ok {
			inputs = append(inputs, prioritizer.Input{Item: item})
		}
	}

	if defPct, ok := sample.SensorValue("def_level"); ok {
		if item, ok := actions.FromDEFLevel(cfg, sample.TruckID, defPct); ok {
			inputs = append(inputs, prioritizer.Input{Item: item})
		}
	}

	return inputs
}

func zToScore(z float64) float64 {
	if z < 0 {
		z = -z
	}
	score := z / 4.0 * 100
	if score > 100 {
		score = 100
	}
	return score
}

func (o *Orchestrator) scoreRisk(ctx context.Context, cfg *config.Config, truckID string, items []models.ActionItem, now time.Time) models.TruckRiskScore {
	// Days-since-maintenance is sourced from the store when available; the
	// core carries nil otherwise.
	riskScore := risk.Score(cfg, truckID, items, nil)
	if o.gateway != nil {
		o.gateway.RecordRiskScore(ctx, riskScore, now)
	}
	return riskScore
}

func (o *Orchestrator) raiseAlerts(ctx context.Context, items []models.ActionItem, now time.Time) {
	if o.dispatcher == nil {
		return
	}
	for _, item := range items {
		severity := severityFor(item.Priority)
		if severity == "" {
			continue
		}
		o.dispatcher.Dispatch(ctx, alertdispatch.Alert{
			TruckID:   item.TruckID,
			AlertType: item.Component,
			Severity:  severity,
			Title:     item.Title,
			Message:   item.Description,
			Timestamp: now,
		})
	}
}

func severityFor(p models.Priority) models.Severity {
	switch p {
	case models.PriorityCritical:
		return models.SeverityCritical
	case models.PriorityHigh:
		return models.SeverityHigh
	case models.PriorityMedium:
		return models.SeverityMedium
	case models.PriorityLow:
		return models.SeverityLow
	default:
		return ""
	}
}

// markOfflineTrucks flips trucks silent past the configured window to
// OFFLINE and synthesizes the offline action item.
func (o *Orchestrator) markOfflineTrucks(now time.Time) {
	cfg := o.watcher.Current()
	offlineAfter := time.Duration(cfg.OfflineWarningHours * float64(time.Hour))

	o.mu.Lock()
	defer o.mu.Unlock()

	for id, truck := range o.trucks {
		silent := now.Sub(truck.LastSeen)
		if silent < offlineAfter || truck.Status == models.StatusOffline {
			continue
		}
		truck.Status = models.StatusOffline
		item := actions.FromOfflineTruck(cfg, id, silent.Hours())
		item.Priority = models.PriorityMedium
		item.PriorityScore = 50
		item.ActionType = models.ActionScheduleThisMonth
		o.itemsByTruck[id] = append(o.itemsByTruck[id], item)
		log.Warn().Str("truck_id", id).Float64("silent_hours", silent.Hours()).Msg("truck marked offline")
	}

	// Reset the active-today set when the UTC day rolls over.
	for id, seen := range o.activeToday {
		if seen.UTC().YearDay() != now.UTC().YearDay() || seen.UTC().Year() != now.UTC().Year() {
			delete(o.activeToday, id)
		}
	}
	activeTrucks.Set(float64(len(o.activeToday)))
}
