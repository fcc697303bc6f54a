package fleethealth

import (
	"sync"
	"time"

	"github.com/fleetops/fuelcore/internal/models"
)

// maxRingEntries bounds the snapshot history; the oldest entry is evicted
// once the ring is full.
const maxRingEntries = 1000

// Ring is the process-wide, mutex-guarded bounded history of
// FleetHealthSnapshot entries backing the trend endpoint.
type Ring struct {
	mu      sync.Mutex
	entries []models.FleetHealthSnapshot
}

// NewRing returns an empty Ring.
func NewRing() *Ring {
	return &Ring{}
}

// Append records one snapshot, evicting the oldest entry at capacity.
func (r *Ring) Append(s models.FleetHealthSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, s)
	if len(r.entries) > maxRingEntries {
		r.entries = r.entries[len(r.entries)-maxRingEntries:]
	}
}

// Recent returns the snapshots recorded within the trailing window, oldest
// first.
func (r *Ring) Recent(window time.Duration, now time.Time) []models.FleetHealthSnapshot {
	cutoff := now.Add(-window)

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.FleetHealthSnapshot
	for _, s := range r.entries {
		ts, err := time.Parse(time.RFC3339, s.Timestamp)
		if err != nil {
			continue
		}
		if !ts.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Len reports the number of retained snapshots.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Trend classifies the direction of the last n recorded scores by comparing
// the mean of the first half against the mean of the second half, with a
// ±3% band around the first-half mean counting as stable.
func (r *Ring) Trend(n int) models.HealthTrend {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.entries
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) < 4 {
		return models.HealthStable
	}

	half := len(entries) / 2
	firstMean := meanScore(entries[:half])
	secondMean := meanScore(entries[half:])

	if firstMean == 0 {
		return models.HealthStable
	}
	change := (secondMean - firstMean) / firstMean
	switch {
	case change > 0.03:
		return models.HealthImproving
	case change < -0.03:
		return models.HealthDeclining
	default:
		return models.HealthStable
	}
}

func meanScore(entries []models.FleetHealthSnapshot) float64 {
	if len(entries) == 0 {
		return 0
	}
	var sum float64
	for _, e := range entries {
		sum += e.Score
	}
	return sum / float64(len(entries))
}
