// Package units defines the validated scalar types the forecast pipeline
// is built on. Each type wraps a float64 (or string for TimezoneID) and is
// constructed through a validating constructor that rejects out-of-range
// values with an InvalidScalarError. Derived quantities (Fahrenheit, km/h,
// kilometers) are computed on demand and never stored.
package units

import (
	"fmt"
	"math"
	"time"
)

// InvalidScalarError is returned by every constructor in this package when
// the input violates the type's range.
type InvalidScalarError struct {
	Kind  string
	Value float64
}

func (e *InvalidScalarError) Error() string {
	return fmt.Sprintf("invalid %s: %g out of range", e.Kind, e.Value)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Latitude is a geographic latitude in decimal degrees, within [-90, 90].
type Latitude float64

func NewLatitude(v float64) (Latitude, error) {
	if !isFinite(v) || v < -90 || v > 90 {
		return 0, &InvalidScalarError{Kind: "latitude", Value: v}
	}
	return Latitude(v), nil
}

func (l Latitude) Value() float64 { return float64(l) }

// Longitude is a geographic longitude in decimal degrees, within [-180, 180].
type Longitude float64

func NewLongitude(v float64) (Longitude, error) {
	if !isFinite(v) || v < -180 || v > 180 {
		return 0, &InvalidScalarError{Kind: "longitude", Value: v}
	}
	return Longitude(v), nil
}

func (l Longitude) Value() float64 { return float64(l) }

// Coordinates is a validated latitude/longitude pair. It is a value type
// and never mutated after construction.
type Coordinates struct {
	Latitude  Latitude  `json:"latitude"`
	Longitude Longitude `json:"longitude"`
}

func NewCoordinates(lat, lon float64) (Coordinates, error) {
	latitude, err := NewLatitude(lat)
	if err != nil {
		return Coordinates{}, err
	}
	longitude, err := NewLongitude(lon)
	if err != nil {
		return Coordinates{}, err
	}
	return Coordinates{Latitude: latitude, Longitude: longitude}, nil
}

// String renders the pair rounded to four decimal places (roughly 11 m),
// which is also the form used in cache keys.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", float64(c.Latitude), float64(c.Longitude))
}

// Celsius is a temperature. It is unbounded apart from being finite;
// Fahrenheit is derived, never stored.
type Celsius float64

func NewCelsius(v float64) (Celsius, error) {
	if !isFinite(v) {
		return 0, &InvalidScalarError{Kind: "temperature", Value: v}
	}
	return Celsius(v), nil
}

func (c Celsius) Value() float64      { return float64(c) }
func (c Celsius) Fahrenheit() float64 { return float64(c)*9/5 + 32 }

// Humidity is relative humidity in percent, within [0, 100].
type Humidity float64

func NewHumidity(v float64) (Humidity, error) {
	if !isFinite(v) || v < 0 || v > 100 {
		return 0, &InvalidScalarError{Kind: "humidity", Value: v}
	}
	return Humidity(v), nil
}

func (h Humidity) Value() float64 { return float64(h) }

// CloudCover is total cloud cover in percent, within [0, 100].
type CloudCover float64

func NewCloudCover(v float64) (CloudCover, error) {
	if !isFinite(v) || v < 0 || v > 100 {
		return 0, &InvalidScalarError{Kind: "cloud cover", Value: v}
	}
	return CloudCover(v), nil
}

func (c CloudCover) Value() float64 { return float64(c) }

// Millimeters is a precipitation amount, never negative.
type Millimeters float64

func NewMillimeters(v float64) (Millimeters, error) {
	if !isFinite(v) || v < 0 {
		return 0, &InvalidScalarError{Kind: "millimeters", Value: v}
	}
	return Millimeters(v), nil
}

// ClampedMillimeters maps negative or non-finite input to 0 instead of
// failing. Only aggregation uses it, to absorb numeric noise from upstream
// (e.g. a trimmed mean of values straddling zero).
func ClampedMillimeters(v float64) Millimeters {
	if !isFinite(v) || v < 0 {
		return 0
	}
	return Millimeters(v)
}

func (m Millimeters) Value() float64 { return float64(m) }

// Probability is a fraction in [0, 1], used for precipitation probability.
// Upstream percentages are divided by 100 before construction.
type Probability float64

func NewProbability(v float64) (Probability, error) {
	if !isFinite(v) || v < 0 || v > 1 {
		return 0, &InvalidScalarError{Kind: "probability", Value: v}
	}
	return Probability(v), nil
}

func (p Probability) Value() float64 { return float64(p) }

// WindSpeed is stored in meters per second. Endpoints report km/h, so
// WindSpeedFromKmh is the usual constructor; Kmh derives the original unit.
type WindSpeed float64

func NewWindSpeed(v float64) (WindSpeed, error) {
	if !isFinite(v) || v < 0 {
		return 0, &InvalidScalarError{Kind: "wind speed", Value: v}
	}
	return WindSpeed(v), nil
}

func WindSpeedFromKmh(kmh float64) (WindSpeed, error) {
	return NewWindSpeed(kmh / 3.6)
}

func (w WindSpeed) Value() float64 { return float64(w) }
func (w WindSpeed) Kmh() float64   { return float64(w) * 3.6 }

// compass names for the 16 wind sectors, clockwise from north.
var cardinals = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// WindDirection is a bearing in degrees, normalized into [0, 360) by
// construction: 450 becomes 90, -90 becomes 270.
type WindDirection float64

func NewWindDirection(v float64) WindDirection {
	d := math.Mod(v, 360)
	if d < 0 {
		d += 360
	}
	return WindDirection(d)
}

func (w WindDirection) Value() float64 { return float64(w) }

// Cardinal returns the compass name of the nearest of 16 sectors.
func (w WindDirection) Cardinal() string {
	idx := int(math.Round(float64(w)/22.5)) % 16
	return cardinals[idx]
}

// UVIndex stores the raw UV index magnitude.
type UVIndex float64

func NewUVIndex(v float64) (UVIndex, error) {
	if !isFinite(v) || v < 0 {
		return 0, &InvalidScalarError{Kind: "uv index", Value: v}
	}
	return UVIndex(v), nil
}

func (u UVIndex) Value() float64 { return float64(u) }

func (u UVIndex) Category() string {
	switch {
	case u < 3:
		return "low"
	case u < 6:
		return "moderate"
	case u < 8:
		return "high"
	case u < 11:
		return "very high"
	default:
		return "extreme"
	}
}

// Visibility is stored in meters, as reported by the endpoints.
type Visibility float64

func NewVisibility(v float64) (Visibility, error) {
	if !isFinite(v) || v < 0 {
		return 0, &InvalidScalarError{Kind: "visibility", Value: v}
	}
	return Visibility(v), nil
}

func (v Visibility) Value() float64      { return float64(v) }
func (v Visibility) Kilometers() float64 { return float64(v) / 1000 }

func (v Visibility) Category() string {
	switch km := v.Kilometers(); {
	case km >= 10:
		return "excellent"
	case km >= 5:
		return "good"
	case km >= 2:
		return "moderate"
	case km >= 1:
		return "poor"
	default:
		return "very poor"
	}
}

// Pressure is atmospheric pressure in hectopascals.
type Pressure float64

func NewPressure(v float64) (Pressure, error) {
	if !isFinite(v) || v <= 0 {
		return 0, &InvalidScalarError{Kind: "pressure", Value: v}
	}
	return Pressure(v), nil
}

func (p Pressure) Value() float64 { return float64(p) }

func (p Pressure) Category() string {
	switch {
	case p < 1000:
		return "low"
	case p <= 1025:
		return "normal"
	default:
		return "high"
	}
}

// TimezoneID is an IANA timezone identifier. Validity is a query, not a
// construction precondition: geocoding results occasionally carry names
// the local tz database does not know.
type TimezoneID string

func (t TimezoneID) String() string { return string(t) }

// Valid reports whether the identifier resolves in the timezone database.
func (t TimezoneID) Valid() bool {
	_, err := time.LoadLocation(string(t))
	return t != "" && err == nil
}

// Location resolves the identifier, falling back to UTC when it is empty
// or unknown.
func (t TimezoneID) Location() *time.Location {
	if t == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(string(t))
	if err != nil {
		return time.UTC
	}
	return loc
}
