package forecast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-forecaster/internal/dataset"
	"github.com/i474232898/weather-forecaster/internal/features"
	"github.com/i474232898/weather-forecaster/internal/nn"
	"github.com/i474232898/weather-forecaster/internal/weather"
)

// RunState is the lifecycle state of a training run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunSucceeded RunState = "succeeded"
	RunFailed    RunState = "failed"
	RunCanceled  RunState = "canceled"
)

// DisplayMetrics are fixed illustrative figures shown next to a finished run.
// They are not computed from any held-out data.
type DisplayMetrics struct {
	MAE          float64 `json:"mae"`
	RMSE         float64 `json:"rmse"`
	Accuracy     float64 `json:"accuracy"`
	Illustrative bool    `json:"illustrative"`
}

var displayMetrics = DisplayMetrics{MAE: 1.8, RMSE: 2.3, Accuracy: 0.82, Illustrative: true}

// Run is a snapshot of one training run.
type Run struct {
	ID         string          `json:"id"`
	State      RunState        `json:"state"`
	Source     string          `json:"source"`
	Rows       int             `json:"rows"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Error      string          `json:"error,omitempty"`
	Progress   []Progress      `json:"progress"`
	Regressor  *Report         `json:"regressor,omitempty"`
	Classifier *Report         `json:"classifier,omitempty"`
	Metrics    *DisplayMetrics `json:"metrics,omitempty"`
}

func (r *Run) clone() Run {
	out := *r
	out.Progress = append([]Progress(nil), r.Progress...)
	return out
}

// EventType distinguishes progress events from run state changes.
type EventType string

const (
	EventProgress EventType = "progress"
	EventState    EventType = "state"
)

// Event is what subscribers receive.
type Event struct {
	Type     EventType `json:"type"`
	RunID    string    `json:"runId"`
	State    RunState  `json:"state,omitempty"`
	Error    string    `json:"error,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
}

// Options configures a Service.
type Options struct {
	StrictLabels bool
	Fit          nn.FitConfig
	// TrainTimeout bounds background runs; 0 means no limit.
	TrainTimeout time.Duration
	// OpenMeteoURL overrides the Open-Meteo archive endpoint.
	OpenMeteoURL string
}

const (
	subscriberBuffer  = 64
	maxProgressBuffer = 4096
)

// Service orchestrates dataset loading, training runs and prediction.
type Service struct {
	store     *dataset.MemoryStore
	remote    *dataset.RemoteSource
	archive   *dataset.OpenMeteoArchive
	predictor *Predictor
	labels    *weather.LabelEncoding
	opts      Options
	log       *zap.Logger

	mu     sync.Mutex
	latest *Run
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// NewService creates a new Service. remote may be nil when fetching is not used.
func NewService(store *dataset.MemoryStore, remote *dataset.RemoteSource, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	labels := weather.DefaultLabels()
	var archive *dataset.OpenMeteoArchive
	if remote != nil {
		archive = dataset.NewOpenMeteoArchive(remote, opts.OpenMeteoURL)
	}
	return &Service{
		store:     store,
		remote:    remote,
		archive:   archive,
		predictor: NewPredictor(labels, opts.Fit),
		labels:    labels,
		opts:      opts,
		log:       log,
		subs:      make(map[chan Event]struct{}),
	}
}

// Predictor exposes the underlying model slots.
func (s *Service) Predictor() *Predictor {
	return s.predictor
}

// LoadCSV parses r and replaces the current dataset.
func (s *Service) LoadCSV(r io.Reader, source string) (weather.DatasetSummary, error) {
	obs, err := dataset.Parse(r, dataset.ParseOptions{StrictLabels: s.opts.StrictLabels})
	if err != nil {
		s.log.Warn("dataset rejected", zap.String("source", source), zap.Error(err))
		return weather.DatasetSummary{}, err
	}
	return s.replace(source, obs), nil
}

// FetchDataset downloads a CSV from url and replaces the current dataset.
func (s *Service) FetchDataset(ctx context.Context, url string) (weather.DatasetSummary, error) {
	if s.remote == nil {
		return weather.DatasetSummary{}, fmt.Errorf("%w: remote source not configured", dataset.ErrUpstream)
	}
	obs, err := s.remote.Fetch(ctx, url, dataset.ParseOptions{StrictLabels: s.opts.StrictLabels})
	if err != nil {
		s.log.Warn("remote dataset fetch failed", zap.String("url", url), zap.Error(err))
		return weather.DatasetSummary{}, err
	}
	return s.replace(url, obs), nil
}

// ImportHistory builds the dataset from the Open-Meteo daily archive.
func (s *Service) ImportHistory(ctx context.Context, q dataset.HistoryQuery) (weather.DatasetSummary, error) {
	if s.archive == nil {
		return weather.DatasetSummary{}, fmt.Errorf("%w: remote source not configured", dataset.ErrUpstream)
	}
	obs, err := s.archive.Fetch(ctx, q)
	if err != nil {
		s.log.Warn("history import failed", zap.Error(err))
		return weather.DatasetSummary{}, err
	}
	source := fmt.Sprintf("open-meteo:%.4f,%.4f:%s..%s",
		q.Latitude, q.Longitude, q.From.Format("2006-01-02"), q.To.Format("2006-01-02"))
	return s.replace(source, obs), nil
}

func (s *Service) replace(source string, obs []weather.Observation) weather.DatasetSummary {
	summary := s.store.Replace(source, obs)
	fields := []zap.Field{
		zap.String("source", source),
		zap.Int("rows", summary.Rows),
		zap.String("dominant", string(summary.Dominant)),
	}
	if summary.UnknownLabels > 0 {
		s.log.Warn("dataset contains unknown labels; encoded as index 0",
			append(fields, zap.Int("unknown_labels", summary.UnknownLabels))...)
	} else {
		s.log.Info("dataset loaded", fields...)
	}
	return summary
}

// Dataset returns the summary of the current dataset.
func (s *Service) Dataset() (weather.DatasetSummary, error) {
	return s.store.Summary()
}

// Train runs a full training pass synchronously and returns the finished run.
func (s *Service) Train(ctx context.Context) (Run, error) {
	obs, summary, err := s.snapshot()
	if err != nil {
		return Run{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	run, err := s.begin(summary, cancel)
	if err != nil {
		return Run{}, err
	}

	err = s.execute(ctx, run, obs)
	return s.finish(run, err), err
}

// StartTraining launches a training run in the background and returns its
// initial snapshot.
func (s *Service) StartTraining() (Run, error) {
	obs, summary, err := s.snapshot()
	if err != nil {
		return Run{}, err
	}

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.opts.TrainTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), s.opts.TrainTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	run, err := s.begin(summary, cancel)
	if err != nil {
		cancel()
		return Run{}, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		err := s.execute(ctx, run, obs)
		s.finish(run, err)
	}()

	return s.statusOf(run), nil
}

// CancelTraining cancels the active run, if any. It reports whether a run was canceled.
func (s *Service) CancelTraining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Training reports whether a run is active.
func (s *Service) Training() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Status returns a snapshot of the latest run.
func (s *Service) Status() (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Run{}, ErrNoRun
	}
	return s.latest.clone(), nil
}

// Predict forecasts from user-entered conditions.
func (s *Service) Predict(c weather.Conditions) (Result, error) {
	return s.predictor.Predict(features.FromConditions(c))
}

// Subscribe registers a listener for training events. Slow listeners miss
// events rather than stall training. Call the returned function to unsubscribe.
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subsMu.Lock()
	if s.subs == nil {
		close(ch)
		s.subsMu.Unlock()
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// Close cancels any active run, waits for it to stop and closes all subscriptions.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.subsMu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.subsMu.Unlock()
}

func (s *Service) broadcast(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *Service) snapshot() ([]weather.Observation, weather.DatasetSummary, error) {
	obs, err := s.store.Observations()
	if err != nil {
		return nil, weather.DatasetSummary{}, err
	}
	summary, err := s.store.Summary()
	if err != nil {
		return nil, weather.DatasetSummary{}, err
	}
	if len(obs) < features.WindowSize+1 {
		return nil, summary, fmt.Errorf("%w: %d rows, need at least %d",
			ErrInsufficientData, len(obs), features.WindowSize+1)
	}
	return obs, summary, nil
}

func (s *Service) begin(summary weather.DatasetSummary, cancel context.CancelFunc) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("service closed")
	}
	if s.cancel != nil {
		return nil, ErrTrainingInProgress
	}

	run := &Run{
		ID:        uuid.NewString(),
		State:     RunRunning,
		Source:    summary.Source,
		Rows:      summary.Rows,
		StartedAt: time.Now().UTC(),
	}
	s.latest = run
	s.cancel = cancel

	s.log.Info("training run started",
		zap.String("run_id", run.ID),
		zap.String("source", run.Source),
		zap.Int("rows", run.Rows))
	s.broadcast(Event{Type: EventState, RunID: run.ID, State: run.State})
	return run, nil
}

// execute fits both models and only then installs them as one pair, so a
// failed or canceled run leaves the previous pair in place.
func (s *Service) execute(ctx context.Context, run *Run, obs []weather.Observation) error {
	vectors, labels, targets := features.Engineer(obs, s.labels)
	windows, windowTargets := features.Windows(vectors, targets, features.WindowSize)

	progress := make(chan Progress, min(2*s.opts.Fit.Epochs+1, maxProgressBuffer))
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		for p := range progress {
			s.record(run, p)
		}
	}()
	defer func() {
		close(progress)
		<-pumped
	}()

	regressor, regReport, err := s.predictor.fitRegressor(ctx, windows, windowTargets, progress)
	if err != nil {
		return err
	}
	s.setReport(run, &regReport)

	classifier, clsReport, err := s.predictor.fitClassifier(ctx, vectors, labels, progress)
	if err != nil {
		return err
	}
	s.setReport(run, &clsReport)

	s.predictor.installPair(regressor, classifier)
	return nil
}

func (s *Service) record(run *Run, p Progress) {
	p.RunID = run.ID

	s.mu.Lock()
	run.Progress = append(run.Progress, p)
	s.mu.Unlock()

	s.log.Debug("epoch finished",
		zap.String("run_id", run.ID),
		zap.String("model", string(p.Model)),
		zap.Int("epoch", p.Epoch),
		zap.Float64("loss", p.Loss))
	s.broadcast(Event{Type: EventProgress, RunID: run.ID, Progress: &p})
}

func (s *Service) setReport(run *Run, r *Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Model {
	case ModelRegressor:
		run.Regressor = r
	case ModelClassifier:
		run.Classifier = r
	}
}

func (s *Service) finish(run *Run, err error) Run {
	s.mu.Lock()
	now := time.Now().UTC()
	run.FinishedAt = &now
	switch {
	case err == nil:
		run.State = RunSucceeded
		m := displayMetrics
		run.Metrics = &m
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		run.State = RunCanceled
		run.Error = err.Error()
	default:
		run.State = RunFailed
		run.Error = err.Error()
	}
	s.cancel = nil
	out := run.clone()
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("run_id", run.ID),
		zap.String("state", string(out.State)),
		zap.Duration("elapsed", now.Sub(out.StartedAt)),
	}
	if err != nil {
		s.log.Warn("training run ended", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("training run finished", fields...)
	}
	s.broadcast(Event{Type: EventState, RunID: run.ID, State: out.State, Error: out.Error})
	return out
}

func (s *Service) statusOf(run *Run) Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return run.clone()
}
