// Package voltage analyzes the 12V electrical system of a Class 8 truck:
// battery state while the engine is off, alternator charging while it is
// running. Low voltage also degrades other sensors, so analyses carry a
// may-affect-sensors flag the sensor-health surface reports.
package voltage

import (
	"fmt"

	"github.com/fleetops/fuelcore/internal/models"
)

// Status classifies one voltage reading.
type Status string

const (
	StatusCriticalLow  Status = "CRITICAL_LOW"
	StatusLow          Status = "LOW"
	StatusNormal       Status = "NORMAL"
	StatusHigh         Status = "HIGH"
	StatusCriticalHigh Status = "CRITICAL_HIGH"
)

// Thresholds holds the 12V-system bands, split by engine state.
type Thresholds struct {
	BatteryCriticalLow float64
	BatteryLow         float64
	BatteryNormalMax   float64

	ChargingCriticalLow  float64
	ChargingLow          float64
	ChargingNormalMax    float64
	ChargingHigh         float64
	ChargingCriticalHigh float64
}

// DefaultThresholds are the Class 8 truck bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BatteryCriticalLow:   11.5,
		BatteryLow:           12.2,
		BatteryNormalMax:     12.8,
		ChargingCriticalLow:  12.5,
		ChargingLow:          13.2,
		ChargingNormalMax:    14.8,
		ChargingHigh:         15.0,
		ChargingCriticalHigh: 15.5,
	}
}

// Analysis is the diagnostic for one reading.
type Analysis struct {
	TruckID         string          `json:"truck_id"`
	Voltage         float64         `json:"voltage"`
	Status          Status          `json:"status"`
	IsEngineRunning bool            `json:"is_engine_running"`
	Severity        models.Severity `json:"severity"`
	Message         string          `json:"message"`
	Action          string          `json:"action,omitempty"`

	// MayAffectSensors marks readings low enough to make other sensor data
	// suspect this cycle.
	MayAffectSensors bool   `json:"may_affect_sensors"`
	SensorWarning    string `json:"sensor_warning,omitempty"`
}

// Analyze diagnoses one voltage reading. rpm decides whether the battery
// bands or the charging bands apply (engine running above 100 RPM). Returns
// ok=false when no voltage is present.
func Analyze(truckID string, volts *float64, rpm *int, t Thresholds) (Analysis, bool) {
	if volts == nil {
		return Analysis{}, false
	}
	running := rpm != nil && *rpm > 100
	if running {
		return analyzeCharging(truckID, *volts, t), true
	}
	return analyzeBattery(truckID, *volts, t), true
}

func analyzeBattery(truckID string, v float64, t Thresholds) Analysis {
	a := Analysis{TruckID: truckID, Voltage: v, IsEngineRunning: false}
	switch {
	case v < t.BatteryCriticalLow:
		a.Status = StatusCriticalLow
		a.Severity = models.SeverityCritical
		a.Message = fmt.Sprintf("Batería muerta (%.1fV), no va a arrancar", v)
		a.Action = "Cargar batería o jump start inmediatamente"
		a.MayAffectSensors = true
		a.SensorWarning = "Voltaje crítico puede causar lecturas erráticas de sensores"
	case v < t.BatteryLow:
		a.Status = StatusLow
		a.Severity = models.SeverityHigh
		a.Message = fmt.Sprintf("Batería baja (%.1fV), riesgo de no arranque", v)
		a.Action = "Verificar conexiones, considerar carga o reemplazo"
		a.MayAffectSensors = true
		a.SensorWarning = "Voltaje bajo puede afectar precisión de sensores"
	case v <= t.BatteryNormalMax:
		a.Status = StatusNormal
		a.Severity = models.SeverityLow
		a.Message = fmt.Sprintf("Batería OK (%.1fV)", v)
	default:
		// High voltage with the engine off is usually a sensor problem.
		a.Status = StatusHigh
		a.Severity = models.SeverityLow
		a.Message = fmt.Sprintf("Voltaje inusual con motor apagado (%.1fV)", v)
		a.Action = "Verificar lectura del sensor"
	}
	return a
}

func analyzeCharging(truckID string, v float64, t Thresholds) Analysis {
	a := Analysis{TruckID: truckID, Voltage: v, IsEngineRunning: true}
	switch {
	case v < t.ChargingCriticalLow:
		a.Status = StatusCriticalLow
		a.Severity = models.SeverityCritical
		a.Message = fmt.Sprintf("Alternador no carga (%.1fV con motor encendido)", v)
		a.Action = "Revisar alternador y correa de inmediato"
		a.MayAffectSensors = true
		a.SensorWarning = "Carga deficiente puede degradar lecturas de sensores"
	case v < t.ChargingLow:
		a.Status = StatusLow
		a.Severity = models.SeverityHigh
		a.Message = fmt.Sprintf("Carga débil (%.1fV)", v)
		a.Action = "Inspeccionar alternador y conexiones"
	case v <= t.ChargingNormalMax:
		a.Status = StatusNormal
		a.Severity = models.SeverityLow
		a.Message = fmt.Sprintf("Carga normal (%.1fV)", v)
	case v < t.ChargingCriticalHigh:
		a.Status = StatusHigh
		a.Severity = models.SeverityMedium
		a.Message = fmt.Sprintf("Sobrecarga leve (%.1fV)", v)
		a.Action = "Verificar regulador de voltaje"
	default:
		a.Status = StatusCriticalHigh
		a.Severity = models.SeverityCritical
		a.Message = fmt.Sprintf("Sobrecarga peligrosa (%.1fV), riesgo de daño eléctrico", v)
		a.Action = "Detener y revisar regulador antes de dañar módulos"
		a.MayAffectSensors = true
		a.SensorWarning = "Sobrevoltaje puede dañar o descalibrar sensores"
	}
	return a
}

// QualityFactor converts an analysis into a 0-1 weight other detectors can
// use to discount sensor readings taken under bad electrical conditions.
func QualityFactor(a Analysis) float64 {
	switch a.Status {
	case StatusCriticalLow, StatusCriticalHigh:
		return 0.5
	case StatusLow:
		return 0.8
	default:
		return 1.0
	}
}
