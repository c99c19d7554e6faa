package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

// ErrMalformedInput is returned when the CSV cannot be turned into observations.
var ErrMalformedInput = errors.New("malformed input")

// DateLayout accepts both zero-padded and unpadded dates.
const DateLayout = "2006-1-2"

const (
	colDate      = "date"
	colTemp      = "temperature_c"
	colHumidity  = "humidity"
	colPressure  = "pressure_hpa"
	colWind      = "wind_speed_mps"
	colPrecip    = "precipitation_mm"
	colCondition = "weather_label"
)

var requiredColumns = []string{colDate, colTemp, colHumidity, colPressure, colWind, colPrecip, colCondition}

// ParseOptions tunes Parse.
type ParseOptions struct {
	// StrictLabels rejects rows whose weather_label is outside the known set.
	StrictLabels bool
}

// Parse reads a header-first CSV of daily observations. Any bad row fails the
// whole load; the error names the offending line.
func Parse(r io.Reader, opts ParseOptions) ([]weather.Observation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedInput, err)
	}

	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var out []weather.Observation
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}
		line, _ := reader.FieldPos(0)
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: line %d: expected %d fields, got %d",
				ErrMalformedInput, line, len(header), len(record))
		}

		obs, err := parseRecord(record, cols, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedInput, line, err)
		}
		out = append(out, obs)
	}

	return out, nil
}

func indexColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrMalformedInput, name)
		}
		cols[name] = i
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformedInput, strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRecord(record []string, cols map[string]int, opts ParseOptions) (weather.Observation, error) {
	var obs weather.Observation

	date, err := time.Parse(DateLayout, strings.TrimSpace(record[cols[colDate]]))
	if err != nil {
		return obs, fmt.Errorf("bad date %q", record[cols[colDate]])
	}
	obs.Date = date.UTC()

	fields := []struct {
		name string
		dst  *float64
	}{
		{colTemp, &obs.TemperatureC},
		{colHumidity, &obs.HumidityPct},
		{colPressure, &obs.PressureHpa},
		{colWind, &obs.WindSpeedMS},
		{colPrecip, &obs.PrecipMm},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(record[cols[f.name]])
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return obs, fmt.Errorf("bad %s %q", f.name, raw)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return obs, fmt.Errorf("non-finite %s %q", f.name, raw)
		}
		*f.dst = v
	}

	raw := record[cols[colCondition]]
	obs.Condition = weather.ParseCondition(raw)
	if opts.StrictLabels {
		if _, err := weather.DefaultLabels().Lookup(obs.Condition); err != nil {
			return obs, fmt.Errorf("%w: %q", weather.ErrUnknownLabel, strings.TrimSpace(raw))
		}
	}

	return obs, nil
}
