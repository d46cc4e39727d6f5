package format

import (
	"math"

	"github.com/meteomancer/weatheroracle/internal/units"
)

// The unit switch mirrors the upstream API's: temperature, wind,
// precipitation, and visibility change system, pressure stays in hPa.

// Temperature renders °C or °F.
func Temperature(c units.Celsius, u Units) float64 {
	if u == UnitsImperial {
		return round1(c.Fahrenheit())
	}
	return round1(c.Value())
}

// WindSpeed renders km/h or mph.
func WindSpeed(w units.WindSpeed, u Units) float64 {
	if u == UnitsImperial {
		return round1(w.Value() * 2.236936)
	}
	return round1(w.Kmh())
}

// Precipitation renders mm or inches. Inches keep two decimals; a tenth
// of a millimeter is below one hundredth of an inch.
func Precipitation(mm units.Millimeters, u Units) float64 {
	if u == UnitsImperial {
		return round2(mm.Value() / 25.4)
	}
	return round1(mm.Value())
}

// Visibility renders km or miles.
func Visibility(v units.Visibility, u Units) float64 {
	if u == UnitsImperial {
		return round1(v.Value() / 1609.344)
	}
	return round1(v.Kilometers())
}

type unitLabels struct {
	Temp       string
	Wind       string
	Precip     string
	Visibility string
	Pressure   string
}

func labelsFor(u Units) unitLabels {
	if u == UnitsImperial {
		return unitLabels{Temp: "°F", Wind: "mph", Precip: "in", Visibility: "mi", Pressure: "hPa"}
	}
	return unitLabels{Temp: "°C", Wind: "km/h", Precip: "mm", Visibility: "km", Pressure: "hPa"}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
