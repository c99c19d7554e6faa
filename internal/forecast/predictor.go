package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/i474232898/weather-forecaster/internal/features"
	"github.com/i474232898/weather-forecaster/internal/nn"
	"github.com/i474232898/weather-forecaster/internal/weather"
)

// LSTMUnits is the hidden width of the temperature regressor.
const LSTMUnits = 32

// ModelKind names one of the two networks.
type ModelKind string

const (
	ModelRegressor  ModelKind = "regressor"
	ModelClassifier ModelKind = "classifier"
)

// Progress is one epoch of one model's fit.
type Progress struct {
	RunID    string    `json:"runId,omitempty"`
	Model    ModelKind `json:"model"`
	Epoch    int       `json:"epoch"`
	Loss     float64   `json:"loss"`
	Accuracy *float64  `json:"accuracy,omitempty"`
	At       time.Time `json:"at"`
}

// Report summarizes a finished fit.
type Report struct {
	Model     ModelKind `json:"model"`
	Samples   int       `json:"samples"`
	Epochs    int       `json:"epochs"`
	FinalLoss float64   `json:"finalLoss"`
	Accuracy  *float64  `json:"finalAccuracy,omitempty"`
	Duration  string    `json:"duration"`
}

// Result is a single forecast.
type Result struct {
	TemperatureC  float64                       `json:"temperatureC"`
	Condition     weather.Condition             `json:"condition"`
	Confidence    float64                       `json:"confidence"`
	Probabilities map[weather.Condition]float64 `json:"probabilities"`
}

// slot holds one installed model. busy admits a single fit at a time; mu
// guards the installed reference.
type slot[T any] struct {
	mu    sync.RWMutex
	model T
	ready bool
	busy  atomic.Bool
}

func (s *slot[T]) install(m T) {
	s.mu.Lock()
	s.model = m
	s.ready = true
	s.mu.Unlock()
}

// Predictor owns the regressor and classifier slots. pair is held for
// writing while both slots are replaced and for reading across a Predict,
// so a prediction never mixes models from two runs.
type Predictor struct {
	labels *weather.LabelEncoding
	fitCfg nn.FitConfig

	pair       sync.RWMutex
	regressor  slot[*nn.SequenceRegressor]
	classifier slot[*nn.Classifier]
}

// NewPredictor returns a Predictor with both slots empty.
func NewPredictor(labels *weather.LabelEncoding, cfg nn.FitConfig) *Predictor {
	if labels == nil {
		labels = weather.DefaultLabels()
	}
	return &Predictor{labels: labels, fitCfg: cfg}
}

// Ready reports whether both models are installed.
func (p *Predictor) Ready() bool {
	p.regressor.mu.RLock()
	r := p.regressor.ready
	p.regressor.mu.RUnlock()

	p.classifier.mu.RLock()
	c := p.classifier.ready
	p.classifier.mu.RUnlock()

	return r && c
}

// TrainRegressor fits a fresh regressor on windows/targets and installs it.
// Epoch progress is offered to progress without blocking; progress may be nil.
func (p *Predictor) TrainRegressor(ctx context.Context, windows []features.Window, targets []float64, progress chan<- Progress) (Report, error) {
	model, report, err := p.fitRegressor(ctx, windows, targets, progress)
	if err != nil {
		return report, err
	}
	p.regressor.install(model)
	return report, nil
}

// TrainClassifier fits a fresh classifier on vectors/labels and installs it.
func (p *Predictor) TrainClassifier(ctx context.Context, vectors []features.Vector, labels []int, progress chan<- Progress) (Report, error) {
	model, report, err := p.fitClassifier(ctx, vectors, labels, progress)
	if err != nil {
		return report, err
	}
	p.classifier.install(model)
	return report, nil
}

// installPair replaces both models as one unit.
func (p *Predictor) installPair(r *nn.SequenceRegressor, c *nn.Classifier) {
	p.pair.Lock()
	defer p.pair.Unlock()
	p.regressor.install(r)
	p.classifier.install(c)
}

func (p *Predictor) fitRegressor(ctx context.Context, windows []features.Window, targets []float64, progress chan<- Progress) (*nn.SequenceRegressor, Report, error) {
	report := Report{Model: ModelRegressor, Samples: len(windows)}
	if len(windows) == 0 || len(targets) != len(windows) {
		return nil, report, fmt.Errorf("%s: %w: %d windows", ModelRegressor, ErrInsufficientData, len(windows))
	}
	if !p.regressor.busy.CompareAndSwap(false, true) {
		return nil, report, fmt.Errorf("%s: %w", ModelRegressor, ErrTrainingInProgress)
	}
	defer p.regressor.busy.Store(false)

	xs := make([][][]float64, len(windows))
	for i, w := range windows {
		seq := make([][]float64, len(w))
		for t := range w {
			seq[t] = w[t][:]
		}
		xs[i] = seq
	}

	start := time.Now()
	model := nn.NewSequenceRegressor(features.Dim, LSTMUnits, nn.NewRand(p.fitCfg.Seed))
	history, err := model.Fit(ctx, xs, targets, p.fitCfg, progressSink(ModelRegressor, progress))
	report.Duration = time.Since(start).String()
	if err != nil {
		return nil, report, fitError(ModelRegressor, err)
	}

	fillReport(&report, history)
	return model, report, nil
}

func (p *Predictor) fitClassifier(ctx context.Context, vectors []features.Vector, labels []int, progress chan<- Progress) (*nn.Classifier, Report, error) {
	report := Report{Model: ModelClassifier, Samples: len(vectors)}
	if len(vectors) == 0 || len(labels) != len(vectors) {
		return nil, report, fmt.Errorf("%s: %w: %d rows", ModelClassifier, ErrInsufficientData, len(vectors))
	}
	if !p.classifier.busy.CompareAndSwap(false, true) {
		return nil, report, fmt.Errorf("%s: %w", ModelClassifier, ErrTrainingInProgress)
	}
	defer p.classifier.busy.Store(false)

	xs := make([][]float64, len(vectors))
	for i := range vectors {
		xs[i] = vectors[i][:]
	}

	start := time.Now()
	model := nn.NewClassifier(features.Dim, p.labels.Len(), nn.NewRand(p.fitCfg.Seed))
	history, err := model.Fit(ctx, xs, labels, p.fitCfg, progressSink(ModelClassifier, progress))
	report.Duration = time.Since(start).String()
	if err != nil {
		return nil, report, fitError(ModelClassifier, err)
	}

	fillReport(&report, history)
	return model, report, nil
}

// Predict forecasts from one feature vector. The regressor sees the vector
// repeated WindowSize times.
func (p *Predictor) Predict(v features.Vector) (Result, error) {
	window := features.Repeat(v, features.WindowSize)
	seq := make([][]float64, len(window))
	for t := range window {
		seq[t] = window[t][:]
	}

	p.pair.RLock()
	defer p.pair.RUnlock()

	p.regressor.mu.RLock()
	if !p.regressor.ready {
		p.regressor.mu.RUnlock()
		return Result{}, ErrModelNotReady
	}
	temp := p.regressor.model.Predict(seq)
	p.regressor.mu.RUnlock()

	p.classifier.mu.RLock()
	if !p.classifier.ready {
		p.classifier.mu.RUnlock()
		return Result{}, ErrModelNotReady
	}
	probs := p.classifier.model.Predict(v[:])
	p.classifier.mu.RUnlock()

	best := floats.MaxIdx(probs)
	condition, err := p.labels.Decode(best)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		TemperatureC:  temp,
		Condition:     condition,
		Confidence:    probs[best],
		Probabilities: make(map[weather.Condition]float64, len(probs)),
	}
	for i, label := range p.labels.Labels() {
		res.Probabilities[label] = probs[i]
	}
	return res, nil
}

func progressSink(kind ModelKind, ch chan<- Progress) func(nn.EpochStats) {
	if ch == nil {
		return nil
	}
	return func(s nn.EpochStats) {
		ev := Progress{Model: kind, Epoch: s.Epoch, Loss: s.Loss, At: time.Now().UTC()}
		if s.HasAccuracy {
			acc := s.Accuracy
			ev.Accuracy = &acc
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

func fitError(kind ModelKind, err error) error {
	if errors.Is(err, nn.ErrNonFiniteLoss) {
		return fmt.Errorf("%s: %w: %w", kind, ErrNumericInstability, err)
	}
	if errors.Is(err, nn.ErrNoSamples) {
		return fmt.Errorf("%s: %w", kind, ErrInsufficientData)
	}
	return fmt.Errorf("%s: %w", kind, err)
}

func fillReport(r *Report, history []nn.EpochStats) {
	r.Epochs = len(history)
	if len(history) == 0 {
		return
	}
	last := history[len(history)-1]
	r.FinalLoss = last.Loss
	if last.HasAccuracy {
		acc := last.Accuracy
		r.Accuracy = &acc
	}
}
