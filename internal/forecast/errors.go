package forecast

import (
	"errors"

	"github.com/i474232898/weather-forecaster/internal/dataset"
)

var (
	// ErrInsufficientData is returned when there is nothing to train on.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNumericInstability is returned when a fit produces a NaN or infinite loss.
	ErrNumericInstability = errors.New("numeric instability")
	// ErrModelNotReady is returned by Predict before both models are trained.
	ErrModelNotReady = errors.New("model not ready")
	// ErrTrainingInProgress is returned when a fit is already running.
	ErrTrainingInProgress = errors.New("training in progress")
	// ErrNoRun is returned by Status before any training run.
	ErrNoRun = errors.New("no training run")

	ErrMalformedInput = dataset.ErrMalformedInput
	ErrNoDataset      = dataset.ErrNoDataset
)
