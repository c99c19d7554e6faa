package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/i474232898/weather-forecaster/internal/weather"
)

func TestOpenMeteoArchiveFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start_date") != "2024-01-01" || q.Get("end_date") != "2024-01-03" || q.Get("wind_speed_unit") != "ms" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if len(q["daily"]) != len(openMeteoDaily) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"daily":{
			"time":["2024-01-01","2024-01-02","2024-01-03"],
			"weather_code":[0,63,null],
			"temperature_2m_mean":[1.5,2.5,3.5],
			"relative_humidity_2m_mean":[80,85,90],
			"pressure_msl_mean":[1020,1015,1010],
			"wind_speed_10m_mean":[2,3,4],
			"precipitation_sum":[0,4.2,1]
		}}`)
	}))
	defer srv.Close()

	archive := NewOpenMeteoArchive(NewRemoteSource(srv.Client(), fastBackoff, 0, nil), srv.URL)
	obs, err := archive.Fetch(context.Background(), HistoryQuery{
		Latitude:  52.52,
		Longitude: 13.41,
		From:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:        time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected the incomplete day to be skipped, got %d rows", len(obs))
	}
	if obs[0].Condition != weather.ConditionClear || obs[1].Condition != weather.ConditionRain {
		t.Fatalf("unexpected conditions %q, %q", obs[0].Condition, obs[1].Condition)
	}
	if obs[1].PrecipMm != 4.2 || obs[1].PressureHpa != 1015 {
		t.Fatalf("unexpected values %+v", obs[1])
	}
}

func TestOpenMeteoArchiveRejectsReversedRange(t *testing.T) {
	archive := NewOpenMeteoArchive(NewRemoteSource(http.DefaultClient, fastBackoff, 0, nil), "http://127.0.0.1:0")
	_, err := archive.Fetch(context.Background(), HistoryQuery{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput, got %v", err)
	}
}

func TestConditionFromWMOCode(t *testing.T) {
	cases := map[int]weather.Condition{
		0:  weather.ConditionClear,
		2:  weather.ConditionCloudy,
		45: weather.ConditionCloudy,
		61: weather.ConditionRain,
		81: weather.ConditionRain,
		73: weather.ConditionSnow,
		95: weather.ConditionStorm,
		99: weather.ConditionStorm,
		10: weather.ConditionUnknown,
	}
	for code, want := range cases {
		if got := ConditionFromWMOCode(code); got != want {
			t.Errorf("code %d: got %q, want %q", code, got, want)
		}
	}
}
