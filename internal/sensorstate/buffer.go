// Package sensorstate maintains a per (truck, sensor) fixed-window ring
// buffer of recent valid readings plus a running mean/std updated by
// Welford's algorithm.
package sensorstate

import (
	"math"
	"sync"
	"time"

	"github.com/fleetops/fuelcore/internal/config"
	"github.com/fleetops/fuelcore/internal/models"
)

type key struct {
	truckID string
	sensor  string
}

// entry is the mutable per (truck, sensor) state: a Welford accumulator and
// a fixed-capacity ring of the most recent raw values.
type entry struct {
	mean   float64
	m2     float64
	count  int64

	ring     []float64
	capacity int
	pos      int
	filled   bool

	lastUpdate time.Time
}

func newEntry(capacity int) *entry {
	if capacity <= 0 {
		capacity = 50
	}
	return &entry{ring: make([]float64, capacity), capacity: capacity}
}

// observe folds value into the Welford accumulator and the ring buffer.
func (e *entry) observe(value float64, now time.Time) {
	e.count++
	delta := value - e.mean
	e.mean += delta / float64(e.count)
	delta2 := value - e.mean
	e.m2 += delta * delta2

	e.ring[e.pos] = value
	e.pos = (e.pos + 1) % e.capacity
	if e.pos == 0 {
		e.filled = true
	}
	e.lastUpdate = now
}

// stdDev returns the sample standard deviation (n-1 denominator), 0 below
// two samples.
func (e *entry) stdDev() float64 {
	if e.count < 2 {
		return 0
	}
	variance := e.m2 / float64(e.count-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// lastN returns up to n most-recently-observed raw values, oldest first.
func (e *entry) lastN(n int) []float64 {
	size := e.size()
	if n > size {
		n = size
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := (e.pos - 1 - i + e.capacity*2) % e.capacity
		out[n-1-i] = e.ring[idx]
	}
	return out
}

func (e *entry) size() int {
	if e.filled {
		return e.capacity
	}
	return e.pos
}

// Store holds all (truck, sensor) entries behind one RWMutex. Each truck's
// state is written only by the shard handling that truck; the one lock is
// shared by every shard.
type Store struct {
	cfg *config.Config

	mu      sync.RWMutex
	entries map[key]*entry
}

// NewStore returns an empty Store configured from cfg's sensor_windows.
func NewStore(cfg *config.Config) *Store {
	return &Store{cfg: cfg, entries: make(map[key]*entry)}
}

// Observe folds one valid reading into (truckID, sensor)'s running
// statistics and ring buffer, returning the updated baseline.
func (s *Store) Observe(truckID, sensor string, value float64, now time.Time) models.SensorBaseline {
	k := key{truckID, sensor}

	s.mu.Lock()
	e, ok := s.entries[k]
	if !ok {
		e = newEntry(s.cfg.SensorWindowFor(sensor).BufferSize)
		s.entries[k] = e
	}
	e.observe(value, now)
	baseline := models.SensorBaseline{
		TruckID:     truckID,
		Sensor:      sensor,
		Mean:        e.mean,
		StdDev:      e.stdDev(),
		SampleCount: e.count,
		LastUpdate:  e.lastUpdate,
	}
	s.mu.Unlock()

	return baseline
}

// GetBaseline returns the current baseline for (truckID, sensor), or false
// if nothing has been observed yet.
func (s *Store) GetBaseline(truckID, sensor string) (models.SensorBaseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key{truckID, sensor}]
	if !ok {
		return models.SensorBaseline{}, false
	}
	return models.SensorBaseline{
		TruckID:     truckID,
		Sensor:      sensor,
		Mean:        e.mean,
		StdDev:      e.stdDev(),
		SampleCount: e.count,
		LastUpdate:  e.lastUpdate,
	}, true
}

// HasPersistentCriticalReading inspects the last minReadings buffered
// values for (truckID, sensor) and returns true only if every one of them
// sits on the critical side of threshold (above, or below when above is
// false). It exists to suppress single-sample noise before any alert is
// raised.
func (s *Store) HasPersistentCriticalReading(truckID, sensor string, threshold float64, above bool, minReadings int) (bool, int) {
	if minReadings <= 0 {
		minReadings = 3
	}

	s.mu.RLock()
	e, ok := s.entries[key{truckID, sensor}]
	s.mu.RUnlock()
	if !ok {
		return false, 0
	}

	recent := e.lastN(minReadings)
	if len(recent) < minReadings {
		return false, len(recent)
	}

	count := 0
	for _, v := range recent {
		if above && v > threshold {
			count++
		} else if !above && v < threshold {
			count++
		}
	}
	return count == minReadings, count
}
