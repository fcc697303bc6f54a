// Package models defines the shared domain types passed between pipeline
// stages: trucks, telemetry samples, derived readings, and the outputs the
// command center serves (action items, risk scores, fleet health).
package models

import "time"

// TruckStatus is the coarse operational state of one truck.
type TruckStatus string

const (
	StatusMoving  TruckStatus = "MOVING"
	StatusStopped TruckStatus = "STOPPED"
	StatusOffline TruckStatus = "OFFLINE"
)

// Truck is the stable, long-lived record for one vehicle in the fleet. It is
// created on first observation and never destroyed by the core.
type Truck struct {
	ID             string      `json:"truck_id"`
	TankCapacityGal float64    `json:"tank_capacity_gal"`
	MPGBaseline    *float64    `json:"mpg_baseline,omitempty"`
	Status         TruckStatus `json:"status"`
	LastSeen       time.Time   `json:"last_seen"`

	// stoppedStreak counts consecutive near-zero-RPM samples while MOVING,
	// used to implement the 2-consecutive-sample MOVING->STOPPED transition.
	stoppedStreak int
}

// Clone returns a value copy safe to hand to a caller outside the shard
// owning this truck.
func (t *Truck) Clone() *Truck {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// AdvanceStatus applies the status state machine given a new sample's
// speed (derived from odometer deltas upstream) and RPM, plus the time since
// the last sample was received. It returns the resulting status.
func (t *Truck) AdvanceStatus(speedNonZero bool, rpm *int, sinceLast time.Duration, offlineAfter time.Duration) TruckStatus {
	if sinceLast >= offlineAfter {
		return StatusOffline
	}

	wasOffline := t.Status == StatusOffline
	idleRPM := rpm != nil && *rpm <= 100

	switch t.Status {
	case StatusMoving:
		if !speedNonZero && idleRPM {
			t.stoppedStreak++
			if t.stoppedStreak >= 2 {
				t.stoppedStreak = 0
				t.Status = StatusStopped
			}
		} else {
			t.stoppedStreak = 0
		}
	case StatusStopped, StatusOffline:
		t.stoppedStreak = 0
		if speedNonZero {
			t.Status = StatusMoving
		} else if wasOffline {
			// OFFLINE -> last known state on the first new sample. We don't
			// retain the pre-offline state explicitly, so a stationary truck
			// simply resumes as STOPPED, its prior resting state.
			t.Status = StatusStopped
		}
	}

	return t.Status
}
