// Package risk aggregates one truck's action items into a
// 0-100 risk score with a coarse level label and the contributing factors
// an operator would want surfaced first.
package risk

import (
	"fmt"
	"sort"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

// confidence weights scale an item's contribution by how sure its detector
// was.
var confidenceWeight = map[models.Confidence]float64{
	models.ConfidenceHigh:   1.0,
	models.ConfidenceMedium: 0.8,
	models.ConfidenceLow:    0.6,
}

// categoryWeight falls back to the component criticality table: a
// transmission item moves the needle more than a GPS item at equal priority.
func categoryWeight(cfg *config.Config, component string) float64 {
	if info, ok := cfg.Components[component]; ok && info.Criticality > 0 {
		return info.Criticality / 3.0
	}
	return 0.5
}

// normalization is the divisor that maps "a handful of weighty critical
// items" onto the top of the scale without a single MEDIUM pinning a truck
// at 100.
const normalization = 2.5

// Score aggregates items (all belonging to truckID) into a TruckRiskScore.
// daysSinceMaintenance may be nil when no maintenance record exists.
func Score(cfg *config.Config, truckID string, items []models.ActionItem, daysSinceMaintenance *float64) models.TruckRiskScore {
	var sum float64
	var factors []string
	var minPredictedDays *float64

	for _, item := range items {
		if item.TruckID != truckID {
			continue
		}
		cw, ok := confidenceWeight[item.Confidence]
		if !ok {
			cw = 0.6
		}
		sum += item.PriorityScore * categoryWeight(cfg, item.Component) * cw

		if item.Priority == models.PriorityCritical || item.Priority == models.PriorityHigh {
			factors = append(factors, fmt.Sprintf("%s: %s", item.Component, item.Title))
		}
		if item.DaysToCritical != nil {
			if minPredictedDays == nil || *item.DaysToCritical < *minPredictedDays {
				minPredictedDays = item.DaysToCritical
			}
		}
	}

	score := sum / normalization

	// Linear maintenance penalty: +0.5 risk per day past 30, capped at 25.
	if daysSinceMaintenance != nil && *daysSinceMaintenance > 30 {
		penalty := (*daysSinceMaintenance - 30) * 0.5
		if penalty > 25 {
			penalty = 25
		}
		score += penalty
		factors = append(factors, fmt.Sprintf("maintenance overdue by %.0f days", *daysSinceMaintenance-30))
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	sort.Strings(factors)

	return models.TruckRiskScore{
		TruckID:                  truckID,
		RiskScore:                score,
		RiskLevel:                levelFor(score),
		ContributingFactors:      factors,
		DaysSinceLastMaintenance: daysSinceMaintenance,
		ActiveIssuesCount:        countForTruck(items, truckID),
		PredictedFailureDays:     minPredictedDays,
	}
}

func countForTruck(items []models.ActionItem, truckID string) int {
	n := 0
	for _, item := range items {
		if item.TruckID == truckID {
			n++
		}
	}
	return n
}

func levelFor(score float64) models.RiskLevel {
	switch {
	case score >= 80:
		return models.RiskCritical
	case score >= 60:
		return models.RiskHigh
	case score >= 30:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
