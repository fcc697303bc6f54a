// Package config loads the YAML configuration file the core reads its
// tunables from, with optional hot-reload via fsnotify. The config is
// parsed once into an immutable value and the active reference is swapped
// atomically on reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fleetops/fuelcore/internal/models"
)

// SensorRange is the valid [min, max] band for one sensor; readings
// outside it are nulled at ingest.
type SensorRange struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// SensorWindow configures the ring buffer and persistence gate for one
// sensor.
type SensorWindow struct {
	BufferSize  int `yaml:"buffer_size"`
	MinReadings int `yaml:"min_readings"`
}

// ThresholdFloorCeiling bounds the learned adaptive refuel thresholds.
type ThresholdFloorCeiling struct {
	MinPctFloor   float64 `yaml:"min_pct_floor"`
	MinPctCeiling float64 `yaml:"min_pct_ceiling"`
	MinGalFloor   float64 `yaml:"min_gal_floor"`
	MinGalCeiling float64 `yaml:"min_gal_ceiling"`
}

// SensorDirection declares whether higher or lower readings are worse, used
// by trend classification.
type SensorDirection struct {
	HigherIsWorse bool `yaml:"higher_is_worse"`
}

// ComponentCost is the cost-if-ignored range behind the cost factor.
type ComponentCost struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// ComponentInfo is one row of the component-normalization table.
type ComponentInfo struct {
	Canonical    string        `yaml:"canonical"`
	Category     string        `yaml:"category"`
	Icon         string        `yaml:"icon"`
	Cost         ComponentCost `yaml:"cost"`
	ActionSteps  []string      `yaml:"action_steps"`
	Criticality  float64       `yaml:"criticality"`
}

// DEFConfig parameterizes DEF depletion handling.
type DEFConfig struct {
	WarningPct  float64 `yaml:"warning_pct"`
	CriticalPct float64 `yaml:"critical_pct"`
}

// Config is the full parsed configuration tree, immutable once loaded.
// Table overrides from command_center_config beat file values; file values
// beat hard-coded defaults (applied in DefaultConfig).
type Config struct {
	SensorRanges  map[string]SensorRange    `yaml:"sensor_ranges"`
	SensorWindows map[string]SensorWindow   `yaml:"sensor_windows"`
	SensorDirection map[string]SensorDirection `yaml:"sensor_direction"`

	ThresholdFloorCeiling ThresholdFloorCeiling `yaml:"threshold_floor_ceiling"`

	OfflineWarningHours float64 `yaml:"offline_warning_hours"`

	FailurePatterns []models.FailurePattern `yaml:"failure_patterns"`

	DEF DEFConfig `yaml:"def"`

	Components map[string]ComponentInfo `yaml:"components"`

	SourceWeights map[string]float64 `yaml:"source_weights"`

	FleetWideIssuePct     float64 `yaml:"fleet_wide_issue_pct"`
	MinTrucksForPattern   int     `yaml:"min_trucks_for_pattern"`

	AlertCooldownMinutes int `yaml:"alert_cooldown_minutes"`

	StoreTimeout     time.Duration `yaml:"store_timeout"`
	CacheTimeout     time.Duration `yaml:"cache_timeout"`
	TransportTimeout time.Duration `yaml:"transport_timeout"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
}

// DefaultConfig returns the hard-coded defaults the core falls back to when
// the file is missing, unparseable, or silent on a key.
func DefaultConfig() *Config {
	return &Config{
		SensorRanges: map[string]SensorRange{
			"oil_pressure":  {Min: 0, Max: 150},
			"coolant_temp":  {Min: -40, Max: 260},
			"oil_temp":      {Min: -40, Max: 300},
			"trans_temp":    {Min: -40, Max: 280},
			"battery_voltage": {Min: 0, Max: 18},
			"fuel_rate_lph": {Min: 0, Max: 60},
		},
		SensorWindows: map[string]SensorWindow{
			"default": {BufferSize: 50, MinReadings: 3},
		},
		SensorDirection: map[string]SensorDirection{
			"oil_pressure":   {HigherIsWorse: false},
			"coolant_temp":   {HigherIsWorse: true},
			"oil_temp":       {HigherIsWorse: true},
			"trans_temp":     {HigherIsWorse: true},
			"battery_voltage": {HigherIsWorse: false},
		},
		ThresholdFloorCeiling: ThresholdFloorCeiling{
			MinPctFloor:   8,
			MinPctCeiling: 25,
			MinGalFloor:   3,
			MinGalCeiling: 30,
		},
		OfflineWarningHours: 3,
		FailurePatterns: []models.FailurePattern{
			{
				Name:          "overheating_syndrome",
				PrimarySensor: "coolant_temp",
				CorrelatedSensors: []models.SensorPredicate{
					{Sensor: "coolant_temp", Threshold: 235, Above: true, MinReadings: 3},
					{Sensor: "oil_temp", Threshold: 250, Above: true, MinReadings: 3},
					{Sensor: "trans_temp", Threshold: 225, Above: true, MinReadings: 3},
				},
				PredictedComponent: "cooling_system",
				RecommendedAction:  "Stop and inspect cooling system immediately",
				ConfidenceScore:    0.9,
			},
		},
		DEF: DEFConfig{WarningPct: 15, CriticalPct: 5},
		Components: map[string]ComponentInfo{
			"cooling_system": {Canonical: "cooling_system", Category: "engine", Icon: "🌡️", Cost: ComponentCost{Min: 8000, Max: 15000}, Criticality: 2.8,
				ActionSteps: []string{"Stop vehicle safely", "Check coolant level", "Inspect for leaks", "Schedule cooling system service"}},
			"oil_system": {Canonical: "oil_system", Category: "engine", Icon: "🛢️", Cost: ComponentCost{Min: 3000, Max: 9000}, Criticality: 3.0,
				ActionSteps: []string{"Check oil level", "Inspect for leaks", "Schedule oil system service"}},
			"transmission": {Canonical: "transmission", Category: "transmission", Icon: "⚙️", Cost: ComponentCost{Min: 5000, Max: 15000}, Criticality: 3.0,
				ActionSteps: []string{"Reduce load", "Schedule transmission inspection"}},
			"def_system": {Canonical: "def_system", Category: "DEF", Icon: "💧", Cost: ComponentCost{Min: 500, Max: 2000}, Criticality: 1.8,
				ActionSteps: []string{"Refill DEF", "Check DEF quality sensor"}},
			"electrical": {Canonical: "electrical", Category: "electrical", Icon: "🔋", Cost: ComponentCost{Min: 300, Max: 2500}, Criticality: 1.5,
				ActionSteps: []string{"Check battery and alternator", "Inspect wiring"}},
			"fuel_system": {Canonical: "fuel_system", Category: "fuel", Icon: "⛽", Cost: ComponentCost{Min: 500, Max: 4000}, Criticality: 1.6,
				ActionSteps: []string{"Inspect fuel system", "Check for leaks"}},
			"brakes": {Canonical: "brakes", Category: "brakes", Icon: "🛑", Cost: ComponentCost{Min: 800, Max: 3500}, Criticality: 2.6,
				ActionSteps: []string{"Schedule brake inspection"}},
			"sensors": {Canonical: "sensors", Category: "sensor", Icon: "📟", Cost: ComponentCost{Min: 150, Max: 900}, Criticality: 1.0,
				ActionSteps: []string{"Inspect sensor wiring", "Recalibrate or replace sensor"}},
			"gps": {Canonical: "gps", Category: "GPS", Icon: "📡", Cost: ComponentCost{Min: 100, Max: 500}, Criticality: 0.8,
				ActionSteps: []string{"Check GPS antenna"}},
			"turbo": {Canonical: "turbo", Category: "turbo", Icon: "🌀", Cost: ComponentCost{Min: 2000, Max: 6000}, Criticality: 2.2,
				ActionSteps: []string{"Schedule turbo inspection"}},
		},
		SourceWeights: map[string]float64{
			"Real-Time Predictive":       92,
			"Predictive Maintenance Engine": 80,
			"Failure Correlation":        75,
			"Sensor Health":              60,
			"ML Anomaly Detection":       55,
			"DTC Analysis":               50,
			"Driver Scoring":             35,
		},
		FleetWideIssuePct:   0.3,
		MinTrucksForPattern: 2,
		AlertCooldownMinutes: 60,
		StoreTimeout:     5 * time.Second,
		CacheTimeout:     2 * time.Second,
		TransportTimeout: 10 * time.Second,
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		SQLitePath:  "data/fuelcore.db",
		RedisAddr:   "localhost:6379",
	}
}

// Load reads and parses path, falling back to DefaultConfig() (logged by
// the caller as ConfigurationInvalid) on any error. Missing keys in a
// successfully-parsed file are filled from the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	mergeInto(cfg, &fileCfg)
	return cfg, nil
}

// mergeInto overlays non-zero fields from override on top of base.
func mergeInto(base, override *Config) {
	if len(override.SensorRanges) > 0 {
		for k, v := range override.SensorRanges {
			base.SensorRanges[k] = v
		}
	}
	if len(override.SensorWindows) > 0 {
		for k, v := range override.SensorWindows {
			base.SensorWindows[k] = v
		}
	}
	if len(override.SensorDirection) > 0 {
		for k, v := range override.SensorDirection {
			base.SensorDirection[k] = v
		}
	}
	if override.ThresholdFloorCeiling != (ThresholdFloorCeiling{}) {
		base.ThresholdFloorCeiling = override.ThresholdFloorCeiling
	}
	if override.OfflineWarningHours != 0 {
		base.OfflineWarningHours = override.OfflineWarningHours
	}
	if len(override.FailurePatterns) > 0 {
		base.FailurePatterns = override.FailurePatterns
	}
	if override.DEF != (DEFConfig{}) {
		base.DEF = override.DEF
	}
	if len(override.Components) > 0 {
		for k, v := range override.Components {
			base.Components[k] = v
		}
	}
	if len(override.SourceWeights) > 0 {
		for k, v := range override.SourceWeights {
			base.SourceWeights[k] = v
		}
	}
	if override.FleetWideIssuePct != 0 {
		base.FleetWideIssuePct = override.FleetWideIssuePct
	}
	if override.MinTrucksForPattern != 0 {
		base.MinTrucksForPattern = override.MinTrucksForPattern
	}
	if override.AlertCooldownMinutes != 0 {
		base.AlertCooldownMinutes = override.AlertCooldownMinutes
	}
	if override.StoreTimeout != 0 {
		base.StoreTimeout = override.StoreTimeout
	}
	if override.CacheTimeout != 0 {
		base.CacheTimeout = override.CacheTimeout
	}
	if override.TransportTimeout != 0 {
		base.TransportTimeout = override.TransportTimeout
	}
	if override.HTTPAddr != "" {
		base.HTTPAddr = override.HTTPAddr
	}
	if override.MetricsAddr != "" {
		base.MetricsAddr = override.MetricsAddr
	}
	if override.SQLitePath != "" {
		base.SQLitePath = override.SQLitePath
	}
	if override.RedisAddr != "" {
		base.RedisAddr = override.RedisAddr
	}
}

// ApplyStoreOverrides returns a copy of cfg with recognized
// command_center_config table entries applied on top; table overrides beat
// file values. Unrecognized keys and unparseable values are logged and
// skipped (ConfigurationInvalid, once per load).
func ApplyStoreOverrides(cfg *Config, overrides map[string]string) *Config {
	if len(overrides) == 0 {
		return cfg
	}

	out := *cfg
	for key, raw := range overrides {
		switch key {
		case "offline_warning_hours":
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
				out.OfflineWarningHours = v
			} else {
				log.Error().Str("key", key).Str("value", raw).Msg("invalid config override, keeping previous value")
			}
		case "alert_cooldown_minutes":
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				out.AlertCooldownMinutes = v
			} else {
				log.Error().Str("key", key).Str("value", raw).Msg("invalid config override, keeping previous value")
			}
		case "fleet_wide_issue_pct":
			if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 && v <= 1 {
				out.FleetWideIssuePct = v
			} else {
				log.Error().Str("key", key).Str("value", raw).Msg("invalid config override, keeping previous value")
			}
		case "min_trucks_for_pattern":
			if v, err := strconv.Atoi(raw); err == nil && v > 0 {
				out.MinTrucksForPattern = v
			} else {
				log.Error().Str("key", key).Str("value", raw).Msg("invalid config override, keeping previous value")
			}
		case "failure_patterns":
			var patterns []models.FailurePattern
			if err := yaml.Unmarshal([]byte(raw), &patterns); err == nil && len(patterns) > 0 {
				out.FailurePatterns = patterns
			} else {
				log.Error().Str("key", key).Msg("invalid failure_patterns override, keeping previous value")
			}
		default:
			log.Warn().Str("key", key).Msg("unknown config override key ignored")
		}
	}
	return &out
}

// SensorWindowFor returns the configured ring-buffer window for sensor,
// falling back to the "default" entry.
func (c *Config) SensorWindowFor(sensor string) SensorWindow {
	if w, ok := c.SensorWindows[sensor]; ok {
		return w
	}
	return c.SensorWindows["default"]
}

// atomicRef is an atomically-swappable *Config, used by the hot-reload
// watcher in watcher.go to publish a fully-built Config without a lock in
// the read path.
type atomicRef struct {
	v atomic.Value
}

func newAtomicRef(cfg *Config) *atomicRef {
	r := &atomicRef{}
	r.v.Store(cfg)
	return r
}

func (r *atomicRef) load() *Config {
	return r.v.Load().(*Config)
}

func (r *atomicRef) store(cfg *Config) {
	r.v.Store(cfg)
}
