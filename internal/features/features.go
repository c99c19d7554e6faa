// Package features turns daily observations into the numeric vectors both
// networks train on, and cuts them into lookback windows for the sequence model.
package features

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

const (
	// Dim is the length of every feature vector.
	Dim = 11
	// WindowSize is the lookback length of the sequence model.
	WindowSize = 3

	meanSpan = 3
	stdSpan  = 7
)

// Positions inside a Vector.
const (
	Temperature = iota
	Humidity
	Pressure
	WindSpeed
	Precipitation
	DayOfYear
	Month
	Weekday
	Weekend
	RollingMeanTemp3
	RollingStdTemp7
)

// Vector is one row of the feature matrix.
type Vector [Dim]float64

// Window is a run of consecutive vectors. Windows returned by Windows share
// storage with the feature matrix they were cut from.
type Window []Vector

// Engineer sorts a copy of obs by date and derives one vector, one class
// label and one temperature target per row, all index-aligned.
func Engineer(obs []weather.Observation, enc *weather.LabelEncoding) ([]Vector, []int, []float64) {
	sorted := slices.Clone(obs)
	slices.SortStableFunc(sorted, func(a, b weather.Observation) int {
		return a.Date.Compare(b.Date)
	})

	temps := make([]float64, len(sorted))
	for i, o := range sorted {
		temps[i] = o.TemperatureC
	}

	vectors := make([]Vector, len(sorted))
	labels := make([]int, len(sorted))
	targets := make([]float64, len(sorted))

	for i, o := range sorted {
		v := calendar(o)

		if i >= meanSpan-1 {
			v[RollingMeanTemp3] = stat.Mean(temps[i-meanSpan+1:i+1], nil)
		} else {
			v[RollingMeanTemp3] = o.TemperatureC
		}
		if i >= stdSpan-1 {
			v[RollingStdTemp7] = stat.PopStdDev(temps[i-stdSpan+1:i+1], nil)
		}

		vectors[i] = v
		labels[i] = enc.Encode(o.Condition)
		targets[i] = o.TemperatureC
	}

	return vectors, labels, targets
}

// FromConditions builds the vector for a single reading with no history:
// the rolling mean is the reading's own temperature and the rolling std is 0.
func FromConditions(c weather.Conditions) Vector {
	v := calendar(c.Observation())
	v[RollingMeanTemp3] = c.TemperatureC
	return v
}

func calendar(o weather.Observation) Vector {
	var v Vector
	v[Temperature] = o.TemperatureC
	v[Humidity] = o.HumidityPct
	v[Pressure] = o.PressureHpa
	v[WindSpeed] = o.WindSpeedMS
	v[Precipitation] = o.PrecipMm

	d := o.Date
	wd := d.Weekday()
	v[DayOfYear] = float64(d.YearDay()) / 366
	v[Month] = float64(d.Month()) / 12
	v[Weekday] = float64(wd) / 7
	if wd == time.Saturday || wd == time.Sunday {
		v[Weekend] = 1
	}
	return v
}

// Windows cuts features into overlapping windows of the given size. Window k
// covers features[k:k+size] and is paired with targets[k+size]. No windows
// are produced when len(features) <= size.
func Windows(features []Vector, targets []float64, size int) ([]Window, []float64) {
	if size <= 0 || len(features) <= size || len(targets) < len(features) {
		return nil, nil
	}

	n := len(features) - size
	xs := make([]Window, 0, n)
	ys := make([]float64, 0, n)
	for i := size; i < len(features); i++ {
		xs = append(xs, Window(features[i-size:i:i]))
		ys = append(ys, targets[i])
	}
	return xs, ys
}

// Repeat builds the synthetic inference window: v repeated size times.
func Repeat(v Vector, size int) Window {
	w := make(Window, size)
	for i := range w {
		w[i] = v
	}
	return w
}
