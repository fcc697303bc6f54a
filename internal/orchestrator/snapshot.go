package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/fleetops/fuelcore/internal/fleethealth"
	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/persistence"
)

// DashboardSnapshot is the consolidated command-center view served by the
// HTTP layer.
type DashboardSnapshot struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	FleetHealth models.FleetHealthSnapshot `json:"fleet_health"`
	ActionItems []models.ActionItem        `json:"action_items"`
	RiskScores  []models.TruckRiskScore    `json:"risk_scores"`
	Insights    []string                   `json:"insights"`
	DataQuality map[string]bool            `json:"data_quality"`
}

// healthInput gathers the cross-truck aggregation inputs under one read
// lock. Fleet aggregation reads committed arena state, never in-flight
// shard work.
func (o *Orchestrator) healthInput() (fleethealth.Input, []models.ActionItem, []models.TruckRiskScore) {
	cfg := o.watcher.Current()

	o.mu.RLock()
	defer o.mu.RUnlock()

	var items []models.ActionItem
	for _, truckItems := range o.itemsByTruck {
		items = append(items, truckItems...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PriorityScore > items[j].PriorityScore
	})

	var risks []models.TruckRiskScore
	for _, rs := range o.riskByTruck {
		risks = append(risks, rs)
	}
	sort.Slice(risks, func(i, j int) bool {
		return risks[i].RiskScore > risks[j].RiskScore
	})

	return fleethealth.Input{
		Items:            items,
		RiskScores:       risks,
		TotalTrucks:      len(o.trucks),
		ActiveTrucks:     len(o.activeToday),
		SystemicIssuePct: cfg.FleetWideIssuePct,
	}, items, risks
}

// Dashboard assembles the full command-center snapshot.
func (o *Orchestrator) Dashboard(now time.Time) DashboardSnapshot {
	in, items, risks := o.healthInput()
	result := fleethealth.Compute(in)
	trend := models.HealthStable
	if o.ring != nil {
		trend = o.ring.Trend(20)
	}

	o.mu.RLock()
	quality := make(map[string]bool, len(o.dataQuality))
	for k, v := range o.dataQuality {
		quality[k] = v
	}
	o.mu.RUnlock()

	return DashboardSnapshot{
		GeneratedAt: now,
		FleetHealth: fleethealth.Snapshot(result, trend, in.TotalTrucks, in.ActiveTrucks, now),
		ActionItems: items,
		RiskScores:  risks,
		Insights:    fleethealth.Insights(in, result),
		DataQuality: quality,
	}
}

// ActionFilter narrows the action list endpoint's output.
type ActionFilter struct {
	Priority string
	Category string
	TruckID  string
	Limit    int
}

// Actions returns the current ranked action list, filtered.
func (o *Orchestrator) Actions(filter ActionFilter) []models.ActionItem {
	_, items, _ := o.healthInput()

	var out []models.ActionItem
	for _, item := range items {
		if filter.Priority != "" && string(item.Priority) != filter.Priority {
			continue
		}
		if filter.Category != "" && item.Category != filter.Category {
			continue
		}
		if filter.TruckID != "" && item.TruckID != filter.TruckID {
			continue
		}
		out = append(out, item)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// TruckSummary is the per-truck drill-down view.
type TruckSummary struct {
	Truck       *models.Truck          `json:"truck"`
	RiskScore   *models.TruckRiskScore `json:"risk_score,omitempty"`
	ActionItems []models.ActionItem    `json:"action_items"`
	IdleReading *models.IdleReading    `json:"idle_reading,omitempty"`
	LastSample  *time.Time             `json:"last_sample,omitempty"`
}

// Truck returns one truck's summary, ok=false for an unknown truck.
func (o *Orchestrator) Truck(truckID string) (TruckSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	truck, ok := o.trucks[truckID]
	if !ok {
		return TruckSummary{}, false
	}

	summary := TruckSummary{
		Truck:       truck.Clone(),
		ActionItems: append([]models.ActionItem(nil), o.itemsByTruck[truckID]...),
	}
	if rs, ok := o.riskByTruck[truckID]; ok {
		summary.RiskScore = &rs
	}
	if reading, ok := o.idleReadings[truckID]; ok {
		summary.IdleReading = &reading
	}
	if prev, ok := o.prevSample[truckID]; ok {
		ts := prev.Timestamp
		summary.LastSample = &ts
	}
	return summary, true
}

// InsightsView pairs the textual insights with the current health result.
type InsightsView struct {
	Health   models.FleetHealthSnapshot `json:"health"`
	Insights []string                   `json:"insights"`
}

// Insights returns the current rule-templated insight list plus health.
func (o *Orchestrator) Insights(now time.Time) InsightsView {
	in, _, _ := o.healthInput()
	result := fleethealth.Compute(in)
	trend := models.HealthStable
	if o.ring != nil {
		trend = o.ring.Trend(20)
	}
	return InsightsView{
		Health:   fleethealth.Snapshot(result, trend, in.TotalTrucks, in.ActiveTrucks, now),
		Insights: fleethealth.Insights(in, result),
	}
}

// RecordTrendSnapshot computes the current fleet health and appends it to
// the trend ring. Called on the periodic schedule and by the force-record
// endpoint.
func (o *Orchestrator) RecordTrendSnapshot(now time.Time) models.FleetHealthSnapshot {
	in, _, _ := o.healthInput()
	result := fleethealth.Compute(in)

	trend := models.HealthStable
	if o.ring != nil {
		trend = o.ring.Trend(20)
	}
	snapshot := fleethealth.Snapshot(result, trend, in.TotalTrucks, in.ActiveTrucks, now)
	if o.ring != nil {
		o.ring.Append(snapshot)
	}
	return snapshot
}

// TrendSeries returns ring entries within the trailing window.
func (o *Orchestrator) TrendSeries(window time.Duration, now time.Time) []models.FleetHealthSnapshot {
	if o.ring == nil {
		return nil
	}
	return o.ring.Recent(window, now)
}

// SensorHealthSummary is the counters view for the sensor-health endpoint.
type SensorHealthSummary struct {
	TotalTrucks       int `json:"total_trucks"`
	ActiveTrucks      int `json:"active_trucks"`
	OfflineTrucks     int `json:"offline_trucks"`
	TrucksWithDTCs    int `json:"trucks_with_dtcs"`
	GPSDegraded       int `json:"gps_degraded"`
	LowVoltage        int `json:"low_voltage"`
	SensorsSuspect    int `json:"sensors_suspect"`
	IdleValidationBad int `json:"idle_validation_failures"`
}

// SensorHealth assembles GPS/voltage/DTC/idle counters from the latest
// committed sample per truck.
func (o *Orchestrator) SensorHealth() SensorHealthSummary {
	o.mu.RLock()
	defer o.mu.RUnlock()

	summary := SensorHealthSummary{
		TotalTrucks:  len(o.trucks),
		ActiveTrucks: len(o.activeToday),
	}
	for id, truck := range o.trucks {
		if truck.Status == models.StatusOffline {
			summary.OfflineTrucks++
		}
		sample := o.prevSample[id]
		if sample == nil {
			continue
		}
		if len(sample.DTCs) > 0 {
			summary.TrucksWithDTCs++
		}
		if sample.GPSQuality != nil && *sample.GPSQuality < 0.5 {
			summary.GPSDegraded++
		}
		if sample.BatteryVoltage != nil && *sample.BatteryVoltage < 12.2 {
			summary.LowVoltage++
		}
	}
	for _, analysis := range o.voltageAnalyses {
		if analysis.MayAffectSensors {
			summary.SensorsSuspect++
		}
	}
	for _, v := range o.idleValidation {
		if !v.IsValid {
			summary.IdleValidationBad++
		}
	}
	return summary
}

// IdleValidationEntry is one truck's latest idle-validation outcome.
type IdleValidationEntry struct {
	TruckID            string  `json:"truck_id"`
	IsValid            bool    `json:"is_valid"`
	NeedsInvestigation bool    `json:"needs_investigation"`
	DeviationPct       float64 `json:"deviation_pct"`
	Confidence         string  `json:"confidence"`
}

// IdleValidations lists per-truck validation outcomes, optionally narrowed
// to one truck or to failures only.
func (o *Orchestrator) IdleValidations(truckID string, onlyIssues bool) []IdleValidationEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []IdleValidationEntry
	for id, v := range o.idleValidation {
		if truckID != "" && id != truckID {
			continue
		}
		if onlyIssues && v.IsValid {
			continue
		}
		out = append(out, IdleValidationEntry{
			TruckID:            id,
			IsValid:            v.IsValid,
			NeedsInvestigation: v.NeedsInvestigation,
			DeviationPct:       v.DeviationPct,
			Confidence:         string(v.Confidence),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TruckID < out[j].TruckID })
	return out
}

// GPSQualityEntry is one truck's latest GPS fix quality.
type GPSQualityEntry struct {
	TruckID        string   `json:"truck_id"`
	GPSQuality     *float64 `json:"gps_quality,omitempty"`
	SatelliteCount *int     `json:"satellite_count,omitempty"`
}

// GPSQuality lists per-truck GPS quality from the latest committed sample.
func (o *Orchestrator) GPSQuality() []GPSQualityEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []GPSQualityEntry
	for id, sample := range o.prevSample {
		out = append(out, GPSQualityEntry{
			TruckID:        id,
			GPSQuality:     sample.GPSQuality,
			SatelliteCount: sample.SatelliteCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TruckID < out[j].TruckID })
	return out
}

// VoltageHistory proxies the persistence gateway's voltage series read.
func (o *Orchestrator) VoltageHistory(ctx context.Context, truckID string, window time.Duration, now time.Time) []persistence.VoltagePoint {
	if o.gateway == nil {
		return nil
	}
	return o.gateway.VoltageHistory(ctx, truckID, now.Add(-window))
}
