package weather

import (
	"strings"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionStorm   Condition = "storm"
	ConditionSnow    Condition = "snow"
)

// ParseCondition normalizes a raw label. Anything outside the closed set
// becomes ConditionUnknown.
func ParseCondition(raw string) Condition {
	switch c := Condition(strings.ToLower(strings.TrimSpace(raw))); c {
	case ConditionClear, ConditionCloudy, ConditionRain, ConditionStorm, ConditionSnow:
		return c
	default:
		return ConditionUnknown
	}
}

// Known reports whether c is one of the five trainable categories.
func (c Condition) Known() bool {
	return c != ConditionUnknown && ParseCondition(string(c)) == c
}

// Observation is one day of recorded weather. Dates are always UTC midnight.
type Observation struct {
	Date         time.Time `json:"date"`
	TemperatureC float64   `json:"temperatureC"`
	HumidityPct  float64   `json:"humidity"`
	PressureHpa  float64   `json:"pressureHpa"`
	WindSpeedMS  float64   `json:"windSpeedMps"`
	PrecipMm     float64   `json:"precipitationMm"`
	Condition    Condition `json:"condition"`
}

// Conditions are the user-entered current readings a forecast is made from.
type Conditions struct {
	Date         time.Time
	TemperatureC float64
	HumidityPct  float64
	PressureHpa  float64
	WindSpeedMS  float64
	PrecipMm     float64
}

// Observation converts c into a history-less observation row.
func (c Conditions) Observation() Observation {
	return Observation{
		Date:         c.Date,
		TemperatureC: c.TemperatureC,
		HumidityPct:  c.HumidityPct,
		PressureHpa:  c.PressureHpa,
		WindSpeedMS:  c.WindSpeedMS,
		PrecipMm:     c.PrecipMm,
		Condition:    ConditionUnknown,
	}
}
