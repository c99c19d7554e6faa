package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weather-forecaster/internal/dataset"
	"github.com/i474232898/weather-forecaster/internal/features"
	"github.com/i474232898/weather-forecaster/internal/nn"
	"github.com/i474232898/weather-forecaster/internal/weather"
)

func quickFit(epochs int) nn.FitConfig {
	cfg := nn.DefaultFitConfig()
	cfg.Epochs = epochs
	return cfg
}

func csvRows(n int) string {
	labels := []string{"clear", "cloudy", "rain", "storm", "snow"}
	var b strings.Builder
	b.WriteString("date,temperature_c,humidity,pressure_hpa,wind_speed_mps,precipitation_mm,weather_label\n")
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		d := start.AddDate(0, 0, i)
		fmt.Fprintf(&b, "%s,%.1f,%d,%d,%.1f,%.1f,%s\n",
			d.Format("2006-01-02"), 10+float64(i%7), 50+i%20, 1000+i%15, 2+float64(i%4), float64(i%3), labels[i%5])
	}
	return b.String()
}

func observations(t *testing.T, n int) []weather.Observation {
	t.Helper()
	obs, err := dataset.Parse(strings.NewReader(csvRows(n)), dataset.ParseOptions{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return obs
}

func newTestService(t *testing.T, epochs, rows int) *Service {
	t.Helper()
	svc := NewService(dataset.NewMemoryStore(), nil, Options{Fit: quickFit(epochs)}, nil)
	t.Cleanup(svc.Close)
	if rows > 0 {
		if _, err := svc.LoadCSV(strings.NewReader(csvRows(rows)), "test.csv"); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	return svc
}

var sampleConditions = weather.Conditions{
	Date:         time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	TemperatureC: 14,
	HumidityPct:  60,
	PressureHpa:  1008,
	WindSpeedMS:  3,
	PrecipMm:     0.5,
}

func TestPredictBeforeTraining(t *testing.T) {
	p := NewPredictor(nil, quickFit(1))
	if _, err := p.Predict(features.Vector{}); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}

	svc := newTestService(t, 1, 0)
	if _, err := svc.Predict(sampleConditions); !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady from service, got %v", err)
	}
}

func TestTrainRegressorInsufficientData(t *testing.T) {
	vecs, _, targets := features.Engineer(observations(t, 3), weather.DefaultLabels())
	windows, ys := features.Windows(vecs, targets, features.WindowSize)

	p := NewPredictor(nil, quickFit(1))
	if _, err := p.TrainRegressor(context.Background(), windows, ys, nil); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	svc := newTestService(t, 1, 3)
	if _, err := svc.Train(context.Background()); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData from service, got %v", err)
	}
}

func TestTrainWithoutDataset(t *testing.T) {
	svc := newTestService(t, 1, 0)
	if _, err := svc.Train(context.Background()); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("expected ErrNoDataset, got %v", err)
	}
	if _, err := svc.Status(); !errors.Is(err, ErrNoRun) {
		t.Fatalf("expected ErrNoRun, got %v", err)
	}
}

func TestTrainRejectsConcurrentFit(t *testing.T) {
	vecs, labels, targets := features.Engineer(observations(t, 10), weather.DefaultLabels())
	windows, ys := features.Windows(vecs, targets, features.WindowSize)

	p := NewPredictor(nil, quickFit(1))
	p.regressor.busy.Store(true)
	if _, err := p.TrainRegressor(context.Background(), windows, ys, nil); !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}
	p.classifier.busy.Store(true)
	if _, err := p.TrainClassifier(context.Background(), vecs, labels, nil); !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}
}

func TestTrainNumericInstability(t *testing.T) {
	vecs, labels, _ := features.Engineer(observations(t, 10), weather.DefaultLabels())
	vecs[2][features.Humidity] = math.NaN()

	p := NewPredictor(nil, quickFit(2))
	if _, err := p.TrainClassifier(context.Background(), vecs, labels, nil); !errors.Is(err, ErrNumericInstability) {
		t.Fatalf("expected ErrNumericInstability, got %v", err)
	}
	if p.Ready() {
		t.Fatal("failed fit must not install a model")
	}
}

func TestTrainProgressIsNonBlocking(t *testing.T) {
	vecs, labels, _ := features.Engineer(observations(t, 10), weather.DefaultLabels())

	p := NewPredictor(nil, quickFit(5))
	progress := make(chan Progress) // never read
	report, err := p.TrainClassifier(context.Background(), vecs, labels, progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Epochs != 5 || report.Accuracy == nil {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestServiceTrainThenPredict(t *testing.T) {
	svc := newTestService(t, 3, 30)
	events, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	run, err := svc.Train(context.Background())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if run.State != RunSucceeded || run.Metrics == nil || !run.Metrics.Illustrative {
		t.Fatalf("unexpected run %+v", run)
	}
	if len(run.Progress) != 6 {
		t.Fatalf("expected 6 progress entries (3 per model), got %d", len(run.Progress))
	}
	if run.Regressor == nil || run.Regressor.Samples != 30-features.WindowSize {
		t.Fatalf("unexpected regressor report %+v", run.Regressor)
	}

	res, err := svc.Predict(sampleConditions)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if math.IsNaN(res.TemperatureC) {
		t.Fatal("temperature is NaN")
	}
	var sum float64
	for _, p := range res.Probabilities {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 || len(res.Probabilities) != 5 {
		t.Fatalf("probabilities do not form a distribution: %v", res.Probabilities)
	}
	if res.Confidence != res.Probabilities[res.Condition] {
		t.Fatalf("confidence %v does not match probability of %q", res.Confidence, res.Condition)
	}

	var states, epochs int
	for {
		select {
		case ev := <-events:
			switch ev.Type {
			case EventState:
				states++
			case EventProgress:
				epochs++
			}
			continue
		default:
		}
		break
	}
	if states != 2 || epochs != 6 {
		t.Fatalf("expected 2 state and 6 progress events, got %d and %d", states, epochs)
	}
}

func TestCanceledRunKeepsModels(t *testing.T) {
	svc := newTestService(t, 2, 20)
	if _, err := svc.Train(context.Background()); err != nil {
		t.Fatalf("train: %v", err)
	}
	before, err := svc.Predict(sampleConditions)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	if _, err := svc.LoadCSV(strings.NewReader(csvRows(40)), "other.csv"); err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := svc.Train(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if run.State != RunCanceled {
		t.Fatalf("expected canceled state, got %s", run.State)
	}

	after, err := svc.Predict(sampleConditions)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if after.TemperatureC != before.TemperatureC || after.Condition != before.Condition {
		t.Fatalf("models changed after canceled run: %+v vs %+v", before, after)
	}
}

func TestStartTrainingRejectsSecondRun(t *testing.T) {
	svc := newTestService(t, 100_000, 20)

	first, err := svc.StartTraining()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.State != RunRunning || first.ID == "" {
		t.Fatalf("unexpected initial run %+v", first)
	}
	if _, err := svc.StartTraining(); !errors.Is(err, ErrTrainingInProgress) {
		t.Fatalf("expected ErrTrainingInProgress, got %v", err)
	}
	if !svc.CancelTraining() {
		t.Fatal("expected an active run to cancel")
	}

	deadline := time.Now().Add(5 * time.Second)
	for svc.Training() {
		if time.Now().After(deadline) {
			t.Fatal("run did not stop after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, err := svc.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.ID != first.ID || status.State != RunCanceled {
		t.Fatalf("unexpected final status %+v", status)
	}
}

func TestPredictNeverMixesPairs(t *testing.T) {
	p := NewPredictor(nil, quickFit(1))
	oldReg := nn.NewSequenceRegressor(features.Dim, LSTMUnits, nn.NewRand(1))
	oldCls := nn.NewClassifier(features.Dim, 5, nn.NewRand(1))
	newReg := nn.NewSequenceRegressor(features.Dim, LSTMUnits, nn.NewRand(2))
	newCls := nn.NewClassifier(features.Dim, 5, nn.NewRand(2))

	v := features.FromConditions(sampleConditions)
	p.installPair(oldReg, oldCls)
	before, err := p.Predict(v)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	p.installPair(newReg, newCls)
	after, err := p.Predict(v)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if before.TemperatureC == after.TemperatureC || before.Confidence == after.Confidence {
		t.Fatal("expected differently seeded pairs to predict differently")
	}

	p.installPair(oldReg, oldCls)

	var wg sync.WaitGroup
	results := make(chan Result, 400)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				res, err := p.Predict(v)
				if err != nil {
					t.Errorf("predict: %v", err)
					return
				}
				results <- res
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			p.installPair(newReg, newCls)
		} else {
			p.installPair(oldReg, oldCls)
		}
	}
	wg.Wait()
	close(results)

	for res := range results {
		oldPair := res.TemperatureC == before.TemperatureC && res.Confidence == before.Confidence
		newPair := res.TemperatureC == after.TemperatureC && res.Confidence == after.Confidence
		if !oldPair && !newPair {
			t.Fatalf("prediction mixes models from different pairs: %+v", res)
		}
	}
}
