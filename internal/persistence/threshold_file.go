package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fleetops/fuelcore/internal/models"
)

// ThresholdFile is the on-disk JSON fallback for adaptive refuel thresholds
// (adaptive_refuel_thresholds.json), consulted when the store is
// unavailable so a restart mid-outage does not lose per-truck learning.
type ThresholdFile struct {
	path string

	mu         sync.Mutex
	thresholds map[string]models.AdaptiveThreshold
}

// NewThresholdFile loads path if it exists; a missing or undecodable file
// starts empty.
func NewThresholdFile(path string) *ThresholdFile {
	f := &ThresholdFile{path: path, thresholds: make(map[string]models.AdaptiveThreshold)}

	data, err := os.ReadFile(path)
	if err != nil {
		return f
	}
	var loaded map[string]models.AdaptiveThreshold
	if err := json.Unmarshal(data, &loaded); err != nil {
		return f
	}
	f.thresholds = loaded
	return f
}

// Load returns the persisted thresholds for truckID, ok=false on miss.
func (f *ThresholdFile) Load(truckID string) (models.AdaptiveThreshold, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.thresholds[truckID]
	return t, ok
}

// Save upserts one truck's thresholds and rewrites the file atomically via
// a temp-file rename.
func (f *ThresholdFile) Save(t models.AdaptiveThreshold) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.thresholds[t.TruckID] = t

	data, err := json.MarshalIndent(f.thresholds, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
