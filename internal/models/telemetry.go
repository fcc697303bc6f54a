package models

import "time"

// DTC is a single active diagnostic trouble code reported by the ECU.
type DTC struct {
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// TelemetrySample is one observation for one truck at one UTC instant.
// Every sensor field besides the identifying ones is optional: a nil pointer
// means "not reported", not zero.
type TelemetrySample struct {
	TruckID   string      `json:"truck_id"`
	Timestamp time.Time   `json:"timestamp"`
	Status    TruckStatus `json:"status"`

	RPM *int `json:"rpm,omitempty"`

	FuelPercent *float64 `json:"fuel_percent,omitempty"`
	FuelLiters  *float64 `json:"fuel_liters,omitempty"`

	OdometerMiles *float64 `json:"odometer_miles,omitempty"`
	FuelRateLPH   *float64 `json:"fuel_rate_lph,omitempty"`

	EngineHours     *float64 `json:"engine_hours,omitempty"`
	IdleHours       *float64 `json:"idle_hours,omitempty"`
	TotalIdleFuelGal *float64 `json:"total_idle_fuel_gal,omitempty"`
	TotalFuelAddedGal *float64 `json:"total_fuel_added_gal,omitempty"`

	AmbientTempF   *float64 `json:"ambient_temp_f,omitempty"`
	BatteryVoltage *float64 `json:"battery_voltage,omitempty"`

	GPSQuality    *float64 `json:"gps_quality,omitempty"`
	SatelliteCount *int    `json:"satellite_count,omitempty"`

	OilPressurePSI *float64 `json:"oil_pressure_psi,omitempty"`
	CoolantTempF   *float64 `json:"coolant_temp_f,omitempty"`
	OilTempF       *float64 `json:"oil_temp_f,omitempty"`
	TransTempF     *float64 `json:"trans_temp_f,omitempty"`

	DTCs []DTC `json:"dtcs,omitempty"`

	// Extra carries sensor names not known to the fixed schema above. They
	// are recorded for persistence but never drive control flow (per the
	// "dynamic dicts" design note).
	Extra map[string]float64 `json:"extra,omitempty"`
}

// SensorValue returns the named sensor's value if the sample carries it as
// one of the fixed fields, used by components that operate generically
// across a configured sensor name.
func (s *TelemetrySample) SensorValue(sensor string) (float64, bool) {
	switch sensor {
	case "oil_pressure":
		return derefOr(s.OilPressurePSI)
	case "coolant_temp":
		return derefOr(s.CoolantTempF)
	case "oil_temp":
		return derefOr(s.OilTempF)
	case "trans_temp", "trans_t":
		return derefOr(s.TransTempF)
	case "battery_voltage":
		return derefOr(s.BatteryVoltage)
	case "fuel_rate_lph":
		return derefOr(s.FuelRateLPH)
	case "gps_quality":
		return derefOr(s.GPSQuality)
	default:
		if s.Extra == nil {
			return 0, false
		}
		v, ok := s.Extra[sensor]
		return v, ok
	}
}

func derefOr(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}
