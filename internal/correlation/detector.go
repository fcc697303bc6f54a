// Package correlation matches configured multi-sensor FailurePattern rules
// against a truck's persistent critical readings, and runs a fleet-wide
// batch pass surfacing patterns shared across many trucks.
package correlation

import (
	"time"

	"github.com/google/uuid"

	"github.com/fleetops/fuelcore/internal/models"
	"github.com/fleetops/fuelcore/internal/sensorstate"
)

// Event is one emitted correlation, attributable to exactly one truck (or
// models.FleetWideTruckID for the batch pass).
type Event struct {
	ID                 string
	PatternName         string
	TruckID             string
	Timestamp           time.Time
	Confidence          float64
	PredictedComponent  string
	RecommendedAction   string
	CorroboratingSensors []string
}

// EvaluateTruck checks every configured pattern against one truck's current
// sensor buffers and returns an Event for each pattern whose predicates are
// all satisfied.
func EvaluateTruck(patterns []models.FailurePattern, store *sensorstate.Store, truckID string, now time.Time) []Event {
	var events []Event

	for _, pattern := range patterns {
		if len(pattern.CorrelatedSensors) == 0 {
			continue
		}

		satisfied := 0
		var corroborating []string
		for _, predicate := range pattern.CorrelatedSensors {
			ok, _ := store.HasPersistentCriticalReading(truckID, predicate.Sensor, predicate.Threshold, predicate.Above, predicate.MinReadings)
			if ok {
				satisfied++
				corroborating = append(corroborating, predicate.Sensor)
			}
		}

		if satisfied != len(pattern.CorrelatedSensors) {
			continue
		}

		fraction := float64(satisfied) / float64(len(pattern.CorrelatedSensors))
		events = append(events, Event{
			ID:                   uuid.NewString(),
			PatternName:          pattern.Name,
			TruckID:              truckID,
			Timestamp:            now,
			Confidence:           pattern.ConfidenceScore * fraction,
			PredictedComponent:   pattern.PredictedComponent,
			RecommendedAction:    pattern.RecommendedAction,
			CorroboratingSensors: corroborating,
		})
	}

	return events
}

// FleetInsight is a batch-pass output surfacing a failure pattern shared
// across a meaningful fraction of the fleet.
type FleetInsight struct {
	PatternName string
	Component   string
	TruckIDs    []string
	Fraction    float64
}

// EvaluateFleet runs EvaluateTruck-shaped per-truck results (keyed by truck)
// and looks for patterns shared by at least minTrucks trucks, comprising at
// least fleetWideIssuePct of the observed fleet.
func EvaluateFleet(perTruckEvents map[string][]Event, totalTrucks int, fleetWideIssuePct float64, minTrucks int) []FleetInsight {
	byPattern := make(map[string][]string)
	for truckID, events := range perTruckEvents {
		seen := make(map[string]bool)
		for _, ev := range events {
			if seen[ev.PatternName] {
				continue
			}
			seen[ev.PatternName] = true
			byPattern[ev.PatternName] = append(byPattern[ev.PatternName], truckID)
		}
	}

	var insights []FleetInsight
	for pattern, trucks := range byPattern {
		if len(trucks) < minTrucks || totalTrucks == 0 {
			continue
		}
		fraction := float64(len(trucks)) / float64(totalTrucks)
		if fraction < fleetWideIssuePct {
			continue
		}

		component := ""
		for _, events := range perTruckEvents {
			for _, ev := range events {
				if ev.PatternName == pattern {
					component = ev.PredictedComponent
					break
				}
			}
			if component != "" {
				break
			}
		}

		insights = append(insights, FleetInsight{
			PatternName: pattern,
			Component:   component,
			TruckIDs:    trucks,
			Fraction:    fraction,
		})
	}

	return insights
}
