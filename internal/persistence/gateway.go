package persistence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetops/fuelcore/internal/models"
)

// Gateway is the single entry point components use for durable state: cache
// first with a short TTL, then the store, then default-constructed values.
// Write failures are logged and swallowed so the pipeline never blocks on
// I/O. Either backend may be nil, in which case it is skipped.
type Gateway struct {
	store *Store
	cache *Cache

	// thresholdFile is the on-disk fallback for adaptive thresholds when
	// the store is unavailable.
	thresholdFile *ThresholdFile
}

// NewGateway assembles a Gateway over the given backends.
func NewGateway(store *Store, cache *Cache, thresholdFile *ThresholdFile) *Gateway {
	return &Gateway{store: store, cache: cache, thresholdFile: thresholdFile}
}

// SaveAlgorithmState checkpoints st to the store and mirrors it to the
// cache.
func (g *Gateway) SaveAlgorithmState(ctx context.Context, st models.AlgorithmState) {
	if g.store != nil {
		if err := g.store.WriteAlgorithmState(ctx, st); err != nil {
			log.Warn().Err(err).Str("truck_id", st.TruckID).Str("sensor", st.Sensor).
				Msg("algorithm state store write failed")
		}
	}
	if g.cache != nil {
		if err := g.cache.SetAlgorithmState(ctx, st); err != nil {
			log.Warn().Err(err).Str("truck_id", st.TruckID).Str("sensor", st.Sensor).
				Msg("algorithm state cache write failed")
		}
	}
}

// LoadAlgorithmState reads (truckID, sensor)'s state: cache, store, then a
// default-constructed zero state.
func (g *Gateway) LoadAlgorithmState(ctx context.Context, truckID, sensor string) models.AlgorithmState {
	if g.cache != nil {
		if st, ok, err := g.cache.GetAlgorithmState(ctx, truckID, sensor); err != nil {
			log.Warn().Err(err).Str("truck_id", truckID).Msg("algorithm state cache read failed")
		} else if ok {
			return st
		}
	}
	if g.store != nil {
		st, ok, err := g.store.ReadAlgorithmState(ctx, truckID, sensor)
		if err != nil {
			log.Warn().Err(err).Str("truck_id", truckID).Msg("algorithm state store read failed")
		} else if ok {
			if g.cache != nil {
				if err := g.cache.SetAlgorithmState(ctx, st); err != nil {
					log.Debug().Err(err).Msg("algorithm state cache repopulate failed")
				}
			}
			return st
		}
	}
	return models.AlgorithmState{TruckID: truckID, Sensor: sensor, TrendDirection: models.TrendStable}
}

// LoadAllAlgorithmStates reads every persisted state for startup reseeding.
func (g *Gateway) LoadAllAlgorithmStates(ctx context.Context) []models.AlgorithmState {
	if g.store == nil {
		return nil
	}
	states, err := g.store.ReadAllAlgorithmStates(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("algorithm state bulk read failed, starting cold")
		return nil
	}
	return states
}

// SaveAdaptiveThreshold checkpoints t to the store and the cache, and to the
// on-disk fallback file when the store write did not succeed.
func (g *Gateway) SaveAdaptiveThreshold(ctx context.Context, t models.AdaptiveThreshold) {
	storeOK := false
	if g.store != nil {
		if err := g.store.WriteAdaptiveThreshold(ctx, t); err != nil {
			log.Warn().Err(err).Str("truck_id", t.TruckID).Msg("adaptive threshold store write failed")
		} else {
			storeOK = true
		}
	}
	if g.cache != nil {
		if err := g.cache.SetAdaptiveThreshold(ctx, t); err != nil {
			log.Warn().Err(err).Str("truck_id", t.TruckID).Msg("adaptive threshold cache write failed")
		}
	}
	if g.thresholdFile != nil && !storeOK {
		if err := g.thresholdFile.Save(t); err != nil {
			log.Warn().Err(err).Str("truck_id", t.TruckID).Msg("adaptive threshold file write failed")
		}
	}
}

// LoadAdaptiveThreshold reads one truck's thresholds: cache, store, file
// fallback, then nil (caller applies defaults).
func (g *Gateway) LoadAdaptiveThreshold(ctx context.Context, truckID string) *models.AdaptiveThreshold {
	if g.cache != nil {
		if t, ok, err := g.cache.GetAdaptiveThreshold(ctx, truckID); err != nil {
			log.Warn().Err(err).Str("truck_id", truckID).Msg("adaptive threshold cache read failed")
		} else if ok {
			return &t
		}
	}
	if g.store != nil {
		t, ok, err := g.store.ReadAdaptiveThreshold(ctx, truckID)
		if err != nil {
			log.Warn().Err(err).Str("truck_id", truckID).Msg("adaptive threshold store read failed")
		} else if ok {
			if g.cache != nil {
				if err := g.cache.SetAdaptiveThreshold(ctx, t); err != nil {
					log.Debug().Err(err).Msg("adaptive threshold cache repopulate failed")
				}
			}
			return &t
		}
	}
	if g.thresholdFile != nil {
		if t, ok := g.thresholdFile.Load(truckID); ok {
			return &t
		}
	}
	return nil
}

// RecordRefuelEvent appends ev; duplicates on the natural key are ignored.
func (g *Gateway) RecordRefuelEvent(ctx context.Context, ev models.RefuelEvent) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteRefuelEvent(ctx, ev); err != nil {
		log.Warn().Err(err).Str("truck_id", ev.TruckID).Msg("refuel event write failed")
	}
}

// RecordAnomaly appends a to the anomaly log tables.
func (g *Gateway) RecordAnomaly(ctx context.Context, a models.Anomaly) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteAnomaly(ctx, a); err != nil {
		log.Warn().Err(err).Str("truck_id", a.TruckID).Str("sensor", a.Sensor).Msg("anomaly write failed")
	}
}

// RecordRiskScore appends rs for this cycle.
func (g *Gateway) RecordRiskScore(ctx context.Context, rs models.TruckRiskScore, now time.Time) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteRiskScore(ctx, rs, now); err != nil {
		log.Warn().Err(err).Str("truck_id", rs.TruckID).Msg("risk score write failed")
	}
}

// RecordCorrelationEvent persists one correlation event.
func (g *Gateway) RecordCorrelationEvent(ctx context.Context, truckID, pattern string, ts time.Time, payload any) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteCorrelationEvent(ctx, truckID, pattern, ts, payload); err != nil {
		log.Warn().Err(err).Str("truck_id", truckID).Str("pattern", pattern).Msg("correlation event write failed")
	}
}

// RecordDTCEvent persists one trouble-code observation.
func (g *Gateway) RecordDTCEvent(ctx context.Context, truckID string, ts time.Time, dtc models.DTC) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteDTCEvent(ctx, truckID, ts, dtc); err != nil {
		log.Warn().Err(err).Str("truck_id", truckID).Str("code", dtc.Code).Msg("dtc event write failed")
	}
}

// RecordIdleValidation logs one idle-validation outcome.
func (g *Gateway) RecordIdleValidation(ctx context.Context, truckID string, ts time.Time, payload any) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteIdleValidation(ctx, truckID, ts, payload); err != nil {
		log.Warn().Err(err).Str("truck_id", truckID).Msg("idle validation write failed")
	}
}

// RecordFuelMetric persists one enriched sample.
func (g *Gateway) RecordFuelMetric(ctx context.Context, sample *models.TelemetrySample) {
	if g.store == nil {
		return
	}
	if err := g.store.WriteFuelMetric(ctx, sample); err != nil {
		log.Warn().Err(err).Str("truck_id", sample.TruckID).Msg("fuel metric write failed")
	}
}

// VoltageHistory reads one truck's recent battery-voltage series.
func (g *Gateway) VoltageHistory(ctx context.Context, truckID string, since time.Time) []VoltagePoint {
	if g.store == nil {
		return nil
	}
	points, err := g.store.RecentVoltageReadings(ctx, truckID, since)
	if err != nil {
		log.Warn().Err(err).Str("truck_id", truckID).Msg("voltage history read failed")
		return nil
	}
	return points
}
