package domain

import "math"

// Emission factors in kgCO2e per unit.
const (
	ElectricityFactor = 0.4781 // per kWh
	GasFactor         = 2.176  // per m³
)

// GreenhouseSnapshot is the derived emission figure for a calendar year.
// Tons is the reported value everywhere; KG is kept for reference.
type GreenhouseSnapshot struct {
	Year             int     `json:"year"`
	ElectricityTotal float64 `json:"electricity_total"`
	GasTotal         float64 `json:"gas_total"`
	EmissionKG       float64 `json:"emission_kg"`
	EmissionTons     int64   `json:"emission_tons"`
}

// EmissionKG applies the campus emission factors.
func EmissionKG(electricity, gas float64) float64 {
	return electricity*ElectricityFactor + gas*GasFactor
}

// EmissionTons converts kilograms to whole tons, rounding half away from zero.
func EmissionTons(kg float64) int64 {
	return int64(math.Round(kg / 1000))
}

func NewGreenhouseSnapshot(t EnergyTotals) GreenhouseSnapshot {
	kg := EmissionKG(t.ElectricityTotal, t.GasTotal)
	return GreenhouseSnapshot{
		Year:             t.Year,
		ElectricityTotal: t.ElectricityTotal,
		GasTotal:         t.GasTotal,
		EmissionKG:       math.Round(kg*10) / 10,
		EmissionTons:     EmissionTons(kg),
	}
}
