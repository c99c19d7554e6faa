package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/i474232898/weather-forecaster/internal/dataset"
	"github.com/i474232898/weather-forecaster/internal/forecast"
	"github.com/i474232898/weather-forecaster/internal/weather"
)

// newService wires the store, remote source and forecast service from cfg.
func newService() *forecast.Service {
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}
	remote := dataset.NewRemoteSource(httpClient, dataset.DefaultBackoff, int64(cfg.MaxUploadBytes), logger)

	return forecast.NewService(dataset.NewMemoryStore(), remote, forecast.Options{
		StrictLabels: cfg.StrictLabels,
		Fit:          cfg.FitConfig(),
		TrainTimeout: cfg.TrainTimeout,
		OpenMeteoURL: cfg.OpenMeteoURL,
	}, logger)
}

// loadDataset loads path when set, otherwise url when set.
func loadDataset(ctx context.Context, svc *forecast.Service, path, url string) (weather.DatasetSummary, bool, error) {
	switch {
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return weather.DatasetSummary{}, false, fmt.Errorf("failed to open dataset: %w", err)
		}
		defer f.Close()

		summary, err := svc.LoadCSV(f, path)
		if err != nil {
			return summary, false, fmt.Errorf("failed to load %s: %w", path, err)
		}
		return summary, true, nil
	case url != "":
		summary, err := svc.FetchDataset(ctx, url)
		if err != nil {
			return summary, false, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		return summary, true, nil
	default:
		return weather.DatasetSummary{}, false, nil
	}
}
