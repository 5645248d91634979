package domain

// Unit identifies the physical unit a variable is stored in, as declared by
// the variable-mapping table.
type Unit string

const (
	UnitKelvin            Unit = "K"
	UnitCelsius           Unit = "C"
	UnitFraction          Unit = "1"
	UnitPercent           Unit = "%"
	UnitPascal            Unit = "Pa"
	UnitHectopascal       Unit = "hPa"
	UnitMetersPerSecond   Unit = "m/s"
	UnitGeopotentialMeter Unit = "gpm"
)

// KnownUnit reports whether s is a recognized source unit.
func KnownUnit(s string) bool {
	switch Unit(s) {
	case UnitKelvin, UnitCelsius, UnitFraction, UnitPercent,
		UnitPascal, UnitHectopascal, UnitMetersPerSecond, UnitGeopotentialMeter:
		return true
	}
	return false
}

// ConvertToOutput converts a raw value in its declared source unit to the
// output unit contract: temperatures in °C, humidity in percent, pressure in
// hPa. Values already in an output unit pass through unchanged.
func ConvertToOutput(v float64, u Unit) float64 {
	switch u {
	case UnitKelvin:
		return v - 273.15
	case UnitFraction:
		return v * 100.0
	case UnitPascal:
		return v / 100.0
	default:
		return v
	}
}
