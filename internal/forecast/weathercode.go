package forecast

// WeatherCode is a WMO 4677 weather interpretation code as reported by the
// forecast endpoints.
type WeatherCode int

var weatherCodeDescriptions = map[WeatherCode]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snowfall",
	73: "moderate snowfall",
	75: "heavy snowfall",
	77: "snow grains",
	80: "slight showers",
	81: "moderate showers",
	82: "violent showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// Description returns the human-readable condition text for the code.
func (c WeatherCode) Description() string {
	if desc, ok := weatherCodeDescriptions[c]; ok {
		return desc
	}
	return "unknown conditions"
}

// Precipitating reports whether the code describes falling precipitation.
func (c WeatherCode) Precipitating() bool {
	return c >= 51 && c <= 99
}
