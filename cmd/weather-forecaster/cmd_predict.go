package main

import (
	"fmt"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-forecaster/internal/dataset"
	"github.com/i474232898/weather-forecaster/internal/weather"
)

var predictFlags struct {
	data        string
	date        string
	temperature float64
	humidity    float64
	pressure    float64
	wind        float64
	precip      float64
}

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Train on a dataset, then forecast from the given conditions",
	Long: `Models are not persisted, so predict trains on the dataset first and then
forecasts tomorrow's temperature and condition from today's readings.`,
	RunE: runPredict,
}

func init() {
	f := predictCmd.Flags()
	f.StringVar(&predictFlags.data, "data", "", "path to the observations CSV (defaults to DATASET_PATH)")
	f.StringVar(&predictFlags.date, "date", "", "date of the readings, YYYY-MM-DD (defaults to today)")
	f.Float64Var(&predictFlags.temperature, "temperature", 0, "temperature in °C")
	f.Float64Var(&predictFlags.humidity, "humidity", 0, "relative humidity in %")
	f.Float64Var(&predictFlags.pressure, "pressure", 1013, "pressure in hPa")
	f.Float64Var(&predictFlags.wind, "wind", 0, "wind speed in m/s")
	f.Float64Var(&predictFlags.precip, "precip", 0, "precipitation in mm")
	_ = predictCmd.MarkFlagRequired("temperature")
	_ = predictCmd.MarkFlagRequired("humidity")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if predictFlags.date != "" {
		d, err := time.Parse(dataset.DateLayout, predictFlags.date)
		if err != nil {
			return fmt.Errorf("invalid --date %q: use YYYY-MM-DD", predictFlags.date)
		}
		date = d.UTC()
	}

	service := newService()
	defer service.Close()

	if _, err := requireDataset(cmd, service, predictFlags.data); err != nil {
		return err
	}
	if _, err := service.Train(ctx); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	result, err := service.Predict(weather.Conditions{
		Date:         date,
		TemperatureC: predictFlags.temperature,
		HumidityPct:  predictFlags.humidity,
		PressureHpa:  predictFlags.pressure,
		WindSpeedMS:  predictFlags.wind,
		PrecipMm:     predictFlags.precip,
	})
	if err != nil {
		return fmt.Errorf("prediction failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "temperature: %.1f°C\n", result.TemperatureC)
	fmt.Fprintf(out, "condition:   %s (confidence %.0f%%)\n", result.Condition, result.Confidence*100)

	labels := weather.DefaultLabels().Labels()
	slices.SortStableFunc(labels, func(a, b weather.Condition) int {
		pa, pb := result.Probabilities[a], result.Probabilities[b]
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return 0
	})
	for _, l := range labels {
		fmt.Fprintf(out, "  %-7s %.3f\n", l, result.Probabilities[l])
	}
	return nil
}
