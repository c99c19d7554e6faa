package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-forecaster/internal/forecast"
)

// Trainer is the part of the forecast service the scheduler drives.
type Trainer interface {
	Train(ctx context.Context) (forecast.Run, error)
	Training() bool
}

// Scheduler periodically retrains both models on the loaded dataset.
type Scheduler struct {
	scheduler *gocron.Scheduler
	trainer   Trainer
	interval  time.Duration
	timeout   time.Duration
	log       *zap.Logger
}

// New creates a new Scheduler. An interval <= 0 disables retraining.
func New(trainer Trainer, interval, timeout time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		trainer:   trainer,
		interval:  interval,
		timeout:   timeout,
		log:       log.Named("scheduler"),
	}
}

// Start schedules the retrain job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.log.Info("periodic retraining disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.retrain)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info("periodic retraining scheduled", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) retrain() {
	if s.trainer.Training() {
		s.log.Info("skipping retrain: a run is already active")
		return
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	run, err := s.trainer.Train(ctx)
	switch {
	case errors.Is(err, forecast.ErrNoDataset):
		s.log.Info("skipping retrain: no dataset loaded")
	case errors.Is(err, forecast.ErrTrainingInProgress):
		s.log.Info("skipping retrain: a run is already active")
	case err != nil:
		s.log.Warn("retrain failed", zap.String("run_id", run.ID), zap.Error(err))
	default:
		s.log.Info("retrain completed", zap.String("run_id", run.ID))
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
