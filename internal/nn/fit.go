package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

var (
	// ErrNonFiniteLoss is returned when an epoch's mean loss is NaN or infinite.
	ErrNonFiniteLoss = errors.New("non-finite loss")
	// ErrNoSamples is returned when Fit is called with an empty training set.
	ErrNoSamples = errors.New("no training samples")
)

// FitConfig holds mini-batch training hyperparameters.
type FitConfig struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Shuffle      bool
	Seed         uint64
}

// DefaultFitConfig returns 50 epochs of batch 8 at learning rate 0.01, shuffled.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Epochs:       50,
		BatchSize:    8,
		LearningRate: 0.01,
		Shuffle:      true,
		Seed:         42,
	}
}

// NewRand returns the generator used for initialization and shuffling.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

// EpochStats reports the outcome of one epoch.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy,omitempty"`
	HasAccuracy bool    `json:"-"`
}

func fit(
	ctx context.Context,
	n int,
	params []*Param,
	cfg FitConfig,
	withAccuracy bool,
	step func(i int) (float64, bool),
	onEpoch func(EpochStats),
) ([]EpochStats, error) {
	if n == 0 {
		return nil, ErrNoSamples
	}
	if ctx == nil {
		ctx = context.Background()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = n
	}

	opt := NewAdam(cfg.LearningRate)
	rng := NewRand(cfg.Seed)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	for _, p := range params {
		p.zeroGrad()
	}

	history := make([]EpochStats, 0, cfg.Epochs)
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if cfg.Shuffle {
			rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
		}

		var total float64
		var correct int
		for start := 0; start < n; start += batch {
			if err := ctx.Err(); err != nil {
				return history, err
			}

			end := min(start+batch, n)
			for _, idx := range order[start:end] {
				loss, ok := step(idx)
				total += loss
				if ok {
					correct++
				}
			}
			opt.Step(params, 1/float64(end-start))
		}

		stats := EpochStats{Epoch: epoch, Loss: total / float64(n)}
		if withAccuracy {
			stats.Accuracy = float64(correct) / float64(n)
			stats.HasAccuracy = true
		}
		if math.IsNaN(stats.Loss) || math.IsInf(stats.Loss, 0) {
			return history, fmt.Errorf("%w at epoch %d", ErrNonFiniteLoss, epoch)
		}

		history = append(history, stats)
		if onEpoch != nil {
			onEpoch(stats)
		}
	}
	return history, nil
}
