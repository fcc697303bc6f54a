// Package persistence provides typed reads and writes for each durable
// entity against the relational store (sqlite, system of record) and the
// redis hot cache. Write failures are logged and swallowed so the pipeline
// never blocks on I/O. Every write is idempotent per natural key.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/fleetops/fuelcore/internal/models"
)

// Store wraps the relational system of record.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// OpenStore opens (or creates) the sqlite database at path and ensures the
// schema exists.
func OpenStore(path string, timeout time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Store{db: db, timeout: timeout}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	schema := []string{
		`CREATE TABLE IF NOT EXISTS fuel_metrics (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS refuel_events (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS anomaly_detections (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp, kind)
		)`,
		`CREATE TABLE IF NOT EXISTS cc_algorithm_state (
			truck_id TEXT NOT NULL,
			sensor TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (truck_id, sensor)
		)`,
		`CREATE TABLE IF NOT EXISTS adaptive_refuel_thresholds (
			truck_id TEXT NOT NULL PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cc_risk_history (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS cc_anomaly_history (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			sensor TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp, sensor)
		)`,
		`CREATE TABLE IF NOT EXISTS cc_correlation_events (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			pattern TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp, pattern)
		)`,
		`CREATE TABLE IF NOT EXISTS dtc_events (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			code TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp, code)
		)`,
		`CREATE TABLE IF NOT EXISTS idle_validation_log (
			truck_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (truck_id, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS mpg_baselines (
			truck_id TEXT NOT NULL PRIMARY KEY,
			mpg REAL NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS command_center_config (
			key TEXT NOT NULL PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// tsFormat is fixed-width so lexicographic ordering of stored timestamps
// matches chronological ordering in range queries.
const tsFormat = "2006-01-02T15:04:05.000000000Z07:00"

// writeJSON is the shared idempotent upsert for payload tables. Errors are
// returned to the Gateway, which logs and swallows them.
func (s *Store) writeJSON(ctx context.Context, query string, payload any, args ...any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx, query, append(args, string(data))...)
	return err
}

// WriteRefuelEvent appends one immutable refuel event.
func (s *Store) WriteRefuelEvent(ctx context.Context, ev models.RefuelEvent) error {
	return s.writeJSON(ctx,
		`INSERT OR IGNORE INTO refuel_events (truck_id, timestamp, kind, payload) VALUES (?, ?, ?, ?)`,
		ev, ev.TruckID, ev.Timestamp.UTC().Format(tsFormat), string(ev.Method))
}

// WriteAnomaly appends one anomaly-log entry.
func (s *Store) WriteAnomaly(ctx context.Context, a models.Anomaly) error {
	if err := s.writeJSON(ctx,
		`INSERT OR IGNORE INTO anomaly_detections (truck_id, timestamp, kind, payload) VALUES (?, ?, ?, ?)`,
		a, a.TruckID, a.Timestamp.UTC().Format(tsFormat), string(a.Type)); err != nil {
		return err
	}
	return s.writeJSON(ctx,
		`INSERT OR IGNORE INTO cc_anomaly_history (truck_id, timestamp, sensor, payload) VALUES (?, ?, ?, ?)`,
		a, a.TruckID, a.Timestamp.UTC().Format(tsFormat), a.Sensor)
}

// WriteAlgorithmState checkpoints one (truck, sensor) streaming state.
func (s *Store) WriteAlgorithmState(ctx context.Context, st models.AlgorithmState) error {
	return s.writeJSON(ctx,
		`INSERT OR REPLACE INTO cc_algorithm_state (truck_id, sensor, updated_at, payload) VALUES (?, ?, ?, ?)`,
		st, st.TruckID, st.Sensor, st.UpdatedAt.UTC().Format(tsFormat))
}

// ReadAlgorithmState loads one (truck, sensor) state, ok=false on miss.
func (s *Store) ReadAlgorithmState(ctx context.Context, truckID, sensor string) (models.AlgorithmState, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cc_algorithm_state WHERE truck_id = ? AND sensor = ?`,
		truckID, sensor).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.AlgorithmState{}, false, nil
	}
	if err != nil {
		return models.AlgorithmState{}, false, err
	}
	var st models.AlgorithmState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return models.AlgorithmState{}, false, fmt.Errorf("decode algorithm state: %w", err)
	}
	return st, true, nil
}

// ReadAllAlgorithmStates loads every persisted state, used at startup to
// reseed the anomaly engine.
func (s *Store) ReadAllAlgorithmStates(ctx context.Context) ([]models.AlgorithmState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM cc_algorithm_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []models.AlgorithmState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return states, err
		}
		var st models.AlgorithmState
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			log.Warn().Err(err).Msg("skipping undecodable algorithm state row")
			continue
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// WriteAdaptiveThreshold checkpoints one truck's learned refuel thresholds.
func (s *Store) WriteAdaptiveThreshold(ctx context.Context, t models.AdaptiveThreshold) error {
	return s.writeJSON(ctx,
		`INSERT OR REPLACE INTO adaptive_refuel_thresholds (truck_id, updated_at, payload) VALUES (?, ?, ?)`,
		t, t.TruckID, t.UpdatedAt.UTC().Format(tsFormat))
}

// ReadAdaptiveThreshold loads one truck's thresholds, ok=false on miss.
func (s *Store) ReadAdaptiveThreshold(ctx context.Context, truckID string) (models.AdaptiveThreshold, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM adaptive_refuel_thresholds WHERE truck_id = ?`, truckID).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.AdaptiveThreshold{}, false, nil
	}
	if err != nil {
		return models.AdaptiveThreshold{}, false, err
	}
	var t models.AdaptiveThreshold
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return models.AdaptiveThreshold{}, false, fmt.Errorf("decode adaptive threshold: %w", err)
	}
	return t, true, nil
}

// WriteRiskScore appends one truck's risk score for this cycle.
func (s *Store) WriteRiskScore(ctx context.Context, rs models.TruckRiskScore, now time.Time) error {
	return s.writeJSON(ctx,
		`INSERT OR REPLACE INTO cc_risk_history (truck_id, timestamp, payload) VALUES (?, ?, ?)`,
		rs, rs.TruckID, now.UTC().Format(tsFormat))
}

// WriteCorrelationEvent persists one correlation event for later mining.
func (s *Store) WriteCorrelationEvent(ctx context.Context, truckID, pattern string, ts time.Time, payload any) error {
	return s.writeJSON(ctx,
		`INSERT OR IGNORE INTO cc_correlation_events (truck_id, timestamp, pattern, payload) VALUES (?, ?, ?, ?)`,
		payload, truckID, ts.UTC().Format(tsFormat), pattern)
}

// WriteDTCEvent records one active trouble-code observation.
func (s *Store) WriteDTCEvent(ctx context.Context, truckID string, ts time.Time, dtc models.DTC) error {
	return s.writeJSON(ctx,
		`INSERT OR IGNORE INTO dtc_events (truck_id, timestamp, code, payload) VALUES (?, ?, ?, ?)`,
		dtc, truckID, ts.UTC().Format(tsFormat), dtc.Code)
}

// WriteIdleValidation logs one idle-validation outcome.
func (s *Store) WriteIdleValidation(ctx context.Context, truckID string, ts time.Time, payload any) error {
	return s.writeJSON(ctx,
		`INSERT OR REPLACE INTO idle_validation_log (truck_id, timestamp, payload) VALUES (?, ?, ?)`,
		payload, truckID, ts.UTC().Format(tsFormat))
}

// WriteFuelMetric records one enriched sample.
func (s *Store) WriteFuelMetric(ctx context.Context, sample *models.TelemetrySample) error {
	return s.writeJSON(ctx,
		`INSERT OR IGNORE INTO fuel_metrics (truck_id, timestamp, payload) VALUES (?, ?, ?)`,
		sample, sample.TruckID, sample.Timestamp.UTC().Format(tsFormat))
}

// ReadMPGBaseline loads a truck's configured MPG baseline.
func (s *Store) ReadMPGBaseline(ctx context.Context, truckID string) (float64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var mpg float64
	err := s.db.QueryRowContext(ctx,
		`SELECT mpg FROM mpg_baselines WHERE truck_id = ?`, truckID).Scan(&mpg)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mpg, true, nil
}

// ConfigOverrides reads the command_center_config table; table entries beat
// file values in the configuration precedence chain.
func (s *Store) ConfigOverrides(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM command_center_config`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return overrides, err
		}
		overrides[k] = v
	}
	return overrides, rows.Err()
}

// RecentVoltageReadings returns (timestamp, voltage) points for one truck
// within the trailing window, oldest first, for the voltage-history
// endpoint.
func (s *Store) RecentVoltageReadings(ctx context.Context, truckID string, since time.Time) ([]VoltagePoint, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, payload FROM fuel_metrics WHERE truck_id = ? AND timestamp >= ? ORDER BY timestamp`,
		truckID, since.UTC().Format(tsFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []VoltagePoint
	for rows.Next() {
		var ts, payload string
		if err := rows.Scan(&ts, &payload); err != nil {
			return points, err
		}
		var sample models.TelemetrySample
		if err := json.Unmarshal([]byte(payload), &sample); err != nil || sample.BatteryVoltage == nil {
			continue
		}
		parsed, err := time.Parse(tsFormat, ts)
		if err != nil {
			continue
		}
		points = append(points, VoltagePoint{Timestamp: parsed, Voltage: *sample.BatteryVoltage})
	}
	return points, rows.Err()
}

// VoltagePoint is one battery-voltage reading in a time series.
type VoltagePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Voltage   float64   `json:"voltage"`
}

// SamplesForDay reads every persisted enriched sample whose timestamp falls
// on the given UTC day, grouped by truck, for the daily-report rollup.
func (s *Store) SamplesForDay(ctx context.Context, day time.Time) (map[string][]models.TelemetrySample, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM fuel_metrics WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp`,
		start.Format(tsFormat), end.Format(tsFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byTruck := make(map[string][]models.TelemetrySample)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return byTruck, err
		}
		var sample models.TelemetrySample
		if err := json.Unmarshal([]byte(payload), &sample); err != nil {
			continue
		}
		byTruck[sample.TruckID] = append(byTruck[sample.TruckID], sample)
	}
	return byTruck, rows.Err()
}

// RefuelsForDay reads every refuel event on the given UTC day.
func (s *Store) RefuelsForDay(ctx context.Context, day time.Time) ([]models.RefuelEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM refuel_events WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp`,
		start.Format(tsFormat), end.Format(tsFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.RefuelEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return events, err
		}
		var ev models.RefuelEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
