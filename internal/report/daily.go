// Package report builds the FleetDailySummary consumed by the daily-report
// CLI. Rendering (HTML/email layout) lives outside the core; this package
// only aggregates and serializes.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/persistence"
)

// TruckDailySummary is one truck's rollup for a report day.
type TruckDailySummary struct {
	TruckID        string  `json:"truck_id"`
	Samples        int     `json:"samples"`
	MilesDriven    float64 `json:"miles_driven"`
	FuelUsedGal    float64 `json:"fuel_used_gal"`
	RefuelGal      float64 `json:"refuel_gal"`
	RefuelCount    int     `json:"refuel_count"`
	MPG            float64 `json:"mpg"`
	IdleFuelGal    float64 `json:"idle_fuel_gal"`
	EfficiencyScore float64 `json:"efficiency_score"`
}

// FleetDailySummary is the full report payload for one day.
type FleetDailySummary struct {
	Date          string              `json:"date"`
	TotalTrucks   int                 `json:"total_trucks"`
	ActiveTrucks  int                 `json:"active_trucks"`
	TotalMiles    float64             `json:"total_miles"`
	TotalFuelGal  float64             `json:"total_fuel_gal"`
	TotalRefuelGal float64            `json:"total_refuel_gal"`
	FleetMPG      float64             `json:"fleet_mpg"`
	Trucks        []TruckDailySummary `json:"trucks"`
}

// TopPerformers returns the n best trucks by efficiency score.
func (s *FleetDailySummary) TopPerformers(n int) []TruckDailySummary {
	sorted := append([]TruckDailySummary(nil), s.Trucks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EfficiencyScore > sorted[j].EfficiencyScore })
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// Generate aggregates one day's persisted samples and refuels into a
// FleetDailySummary.
func Generate(ctx context.Context, store *persistence.Store, day time.Time) (*FleetDailySummary, error) {
	byTruck, err := store.SamplesForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	refuels, err := store.RefuelsForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("read refuels: %w", err)
	}

	refuelByTruck := make(map[string][]models.RefuelEvent)
	for _, ev := range refuels {
		refuelByTruck[ev.TruckID] = append(refuelByTruck[ev.TruckID], ev)
	}

	summary := &FleetDailySummary{
		Date:        day.UTC().Format("2006-01-02"),
		TotalTrucks: len(byTruck),
	}

	for truckID, samples := range byTruck {
		ts := summarizeTruck(truckID, samples, refuelByTruck[truckID])
		if ts.Samples > 0 {
			summary.ActiveTrucks++
		}
		summary.TotalMiles += ts.MilesDriven
		summary.TotalFuelGal += ts.FuelUsedGal
		summary.TotalRefuelGal += ts.RefuelGal
		summary.Trucks = append(summary.Trucks, ts)
	}

	sort.Slice(summary.Trucks, func(i, j int) bool { return summary.Trucks[i].TruckID < summary.Trucks[j].TruckID })

	if summary.TotalFuelGal > 0 {
		summary.FleetMPG = summary.TotalMiles / summary.TotalFuelGal
	}
	return summary, nil
}

func summarizeTruck(truckID string, samples []models.TelemetrySample, refuels []models.RefuelEvent) TruckDailySummary {
	ts := TruckDailySummary{TruckID: truckID, Samples: len(samples)}

	var firstOdo, lastOdo *float64
	var firstIdle, lastIdle *float64
	var fuelUsed float64

	for i := range samples {
		s := &samples[i]
		if s.OdometerMiles != nil {
			if firstOdo == nil {
				firstOdo = s.OdometerMiles
			}
			lastOdo = s.OdometerMiles
		}
		if s.TotalIdleFuelGal != nil {
			if firstIdle == nil {
				firstIdle = s.TotalIdleFuelGal
			}
			lastIdle = s.TotalIdleFuelGal
		}
		if i > 0 && s.FuelLiters != nil && samples[i-1].FuelLiters != nil {
			if delta := *samples[i-1].FuelLiters - *s.FuelLiters; delta > 0 {
				fuelUsed += delta / 3.78541
			}
		}
	}

	if firstOdo != nil && lastOdo != nil && *lastOdo > *firstOdo {
		ts.MilesDriven = *lastOdo - *firstOdo
	}
	if firstIdle != nil && lastIdle != nil && *lastIdle > *firstIdle {
		ts.IdleFuelGal = *lastIdle - *firstIdle
	}

	for _, ev := range refuels {
		ts.RefuelGal += ev.GallonsAdded
		ts.RefuelCount++
	}

	// Refuel gallons are added back into net fuel used so a mid-day fill-up
	// doesn't register as negative consumption.
	ts.FuelUsedGal = fuelUsed + ts.RefuelGal
	if ts.FuelUsedGal > 0 {
		ts.MPG = ts.MilesDriven / ts.FuelUsedGal
	}
	ts.EfficiencyScore = efficiencyScore(ts)
	return ts
}

// efficiencyScore grades a truck 0-100 from MPG and idle share.
func efficiencyScore(ts TruckDailySummary) float64 {
	if ts.FuelUsedGal == 0 {
		return 100
	}
	mpgScore := math.Min(ts.MPG/8.0, 1.0) * 70
	idleShare := ts.IdleFuelGal / ts.FuelUsedGal
	idleScore := (1 - math.Min(idleShare, 1.0)) * 30
	return math.Round((mpgScore + idleScore) * 10) / 10
}

// Save writes the summary JSON under dir as
// daily_report_<YYYY-MM-DD>.json and returns the path.
func Save(summary *FleetDailySummary, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, "daily_report_"+summary.Date+".json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
