package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

// DefaultOpenMeteoArchiveURL is the Open-Meteo historical weather endpoint.
const DefaultOpenMeteoArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

var openMeteoDaily = []string{
	"weather_code",
	"temperature_2m_mean",
	"relative_humidity_2m_mean",
	"pressure_msl_mean",
	"wind_speed_10m_mean",
	"precipitation_sum",
}

// HistoryQuery selects a location and an inclusive date range.
type HistoryQuery struct {
	Latitude  float64
	Longitude float64
	From      time.Time
	To        time.Time
}

// OpenMeteoArchive builds datasets from the Open-Meteo daily archive.
type OpenMeteoArchive struct {
	remote  *RemoteSource
	baseURL string
}

// NewOpenMeteoArchive returns an importer that goes through remote's retry
// and circuit-breaker path. An empty baseURL selects the public endpoint.
func NewOpenMeteoArchive(remote *RemoteSource, baseURL string) *OpenMeteoArchive {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoArchiveURL
	}
	return &OpenMeteoArchive{remote: remote, baseURL: baseURL}
}

// Fetch downloads daily history. Days with any missing reading are skipped.
func (a *OpenMeteoArchive) Fetch(ctx context.Context, q HistoryQuery) ([]weather.Observation, error) {
	if q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: end date before start date", ErrMalformedInput)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", q.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", q.Longitude))
		values.Set("start_date", q.From.Format("2006-01-02"))
		values.Set("end_date", q.To.Format("2006-01-02"))
		values.Set("wind_speed_unit", "ms")
		values.Set("timezone", "UTC")
		for _, d := range openMeteoDaily {
			values.Add("daily", d)
		}

		u := fmt.Sprintf("%s?%s", a.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := a.remote.doRequestWithResilience(ctx, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time        []string   `json:"time"`
			WeatherCode []*int     `json:"weather_code"`
			Temperature []*float64 `json:"temperature_2m_mean"`
			Humidity    []*float64 `json:"relative_humidity_2m_mean"`
			Pressure    []*float64 `json:"pressure_msl_mean"`
			WindSpeed   []*float64 `json:"wind_speed_10m_mean"`
			Precip      []*float64 `json:"precipitation_sum"`
		} `json:"daily"`
	}
	body, err := a.remote.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode archive response: %w", ErrUpstream, err)
	}

	d := payload.Daily
	n := len(d.Time)
	for _, l := range []int{len(d.WeatherCode), len(d.Temperature), len(d.Humidity), len(d.Pressure), len(d.WindSpeed), len(d.Precip)} {
		if l != n {
			return nil, fmt.Errorf("%w: archive columns have different lengths", ErrUpstream)
		}
	}

	obs := make([]weather.Observation, 0, n)
	skipped := 0
	for i := 0; i < n; i++ {
		if d.WeatherCode[i] == nil || d.Temperature[i] == nil || d.Humidity[i] == nil ||
			d.Pressure[i] == nil || d.WindSpeed[i] == nil || d.Precip[i] == nil {
			skipped++
			continue
		}
		date, err := time.Parse("2006-01-02", d.Time[i])
		if err != nil {
			return nil, fmt.Errorf("%w: bad archive date %q", ErrUpstream, d.Time[i])
		}
		obs = append(obs, weather.Observation{
			Date:         date.UTC(),
			TemperatureC: *d.Temperature[i],
			HumidityPct:  *d.Humidity[i],
			PressureHpa:  *d.Pressure[i],
			WindSpeedMS:  *d.WindSpeed[i],
			PrecipMm:     *d.Precip[i],
			Condition:    ConditionFromWMOCode(*d.WeatherCode[i]),
		})
	}

	if len(obs) == 0 {
		return nil, errors.Join(ErrUpstream, fmt.Errorf("archive returned no complete days (%d skipped)", skipped))
	}
	a.remote.log.Info("open-meteo history imported",
		zap.Float64("latitude", q.Latitude),
		zap.Float64("longitude", q.Longitude),
		zap.Int("rows", len(obs)),
		zap.Int("skipped", skipped))
	return obs, nil
}

// ConditionFromWMOCode maps a WMO weather interpretation code to a condition.
func ConditionFromWMOCode(code int) weather.Condition {
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3, code == 45, code == 48:
		return weather.ConditionCloudy
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
