package weather

import "time"

// DatasetSummary is the overview of a loaded dataset.
type DatasetSummary struct {
	Source        string            `json:"source"`
	Rows          int               `json:"rows"`
	From          time.Time         `json:"from"`
	To            time.Time         `json:"to"`
	MeanTemp      float64           `json:"meanTemperatureC"`
	MeanHumidity  float64           `json:"meanHumidity"`
	MeanPressure  float64           `json:"meanPressureHpa"`
	MeanWind      float64           `json:"meanWindSpeedMps"`
	MeanPrecip    float64           `json:"meanPrecipitationMm"`
	Conditions    map[Condition]int `json:"conditions"`
	Dominant      Condition         `json:"dominantCondition"`
	UnknownLabels int               `json:"unknownLabels"`
	LoadedAt      time.Time         `json:"loadedAt"`
}

// Summarize combines observations into a DatasetSummary.
// Numeric fields are averaged; the dominant condition is the most frequent
// known label, ties resolved by encoding order.
func Summarize(source string, obs []Observation) DatasetSummary {
	summary := DatasetSummary{
		Source:     source,
		Rows:       len(obs),
		Conditions: make(map[Condition]int),
		Dominant:   ConditionUnknown,
		LoadedAt:   time.Now().UTC(),
	}
	if len(obs) == 0 {
		return summary
	}

	var (
		sumTemp     float64
		sumHumidity float64
		sumPressure float64
		sumWind     float64
		sumPrecip   float64
	)

	summary.From = obs[0].Date
	summary.To = obs[0].Date

	for _, o := range obs {
		sumTemp += o.TemperatureC
		sumHumidity += o.HumidityPct
		sumPressure += o.PressureHpa
		sumWind += o.WindSpeedMS
		sumPrecip += o.PrecipMm

		summary.Conditions[o.Condition]++
		if !o.Condition.Known() {
			summary.UnknownLabels++
		}

		if o.Date.Before(summary.From) {
			summary.From = o.Date
		}
		if o.Date.After(summary.To) {
			summary.To = o.Date
		}
	}

	n := float64(len(obs))
	summary.MeanTemp = sumTemp / n
	summary.MeanHumidity = sumHumidity / n
	summary.MeanPressure = sumPressure / n
	summary.MeanWind = sumWind / n
	summary.MeanPrecip = sumPrecip / n

	bestCount := 0
	for _, c := range DefaultLabels().Labels() {
		if count := summary.Conditions[c]; count > bestCount {
			bestCount = count
			summary.Dominant = c
		}
	}

	return summary
}
