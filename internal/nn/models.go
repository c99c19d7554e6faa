package nn

import (
	"context"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// probFloor keeps log(p) finite in the cross-entropy.
const probFloor = 1e-7

// SequenceRegressor maps a sequence of vectors to one scalar: LSTM, then a
// linear dense unit on the last hidden state.
type SequenceRegressor struct {
	lstm *LSTM
	out  *Dense
}

// NewSequenceRegressor builds an untrained regressor.
func NewSequenceRegressor(inputDim, hidden int, rng *rand.Rand) *SequenceRegressor {
	return &SequenceRegressor{
		lstm: NewLSTM(inputDim, hidden, rng),
		out:  NewDense(hidden, 1, Linear, rng),
	}
}

// Predict runs a forward pass.
func (r *SequenceRegressor) Predict(seq [][]float64) float64 {
	h, _ := r.lstm.forward(seq)
	y, _ := r.out.forward(h)
	return y[0]
}

func (r *SequenceRegressor) params() []*Param {
	return append(r.lstm.params(), r.out.params()...)
}

// accumulate adds the squared-error gradient of one sample and returns its loss.
func (r *SequenceRegressor) accumulate(seq [][]float64, target float64) float64 {
	h, steps := r.lstm.forward(seq)
	y, cache := r.out.forward(h)

	diff := y[0] - target
	dh := r.out.backward(cache, []float64{2 * diff})
	r.lstm.backward(steps, dh)
	return diff * diff
}

// Fit trains r in place on xs/ys with MSE loss.
func (r *SequenceRegressor) Fit(ctx context.Context, xs [][][]float64, ys []float64, cfg FitConfig, onEpoch func(EpochStats)) ([]EpochStats, error) {
	step := func(i int) (float64, bool) {
		return r.accumulate(xs[i], ys[i]), false
	}
	return fit(ctx, len(xs), r.params(), cfg, false, step, onEpoch)
}

// Classifier is a feed-forward softmax classifier: two ReLU hidden layers
// followed by a softmax output.
type Classifier struct {
	layers []*Dense
}

// NewClassifier builds an untrained classifier with hidden widths 16 and 8.
func NewClassifier(inputDim, classes int, rng *rand.Rand) *Classifier {
	return &Classifier{
		layers: []*Dense{
			NewDense(inputDim, 16, ReLU, rng),
			NewDense(16, 8, ReLU, rng),
			NewDense(8, classes, Softmax, rng),
		},
	}
}

// Predict returns the class probabilities for x.
func (c *Classifier) Predict(x []float64) []float64 {
	out := x
	for _, l := range c.layers {
		out, _ = l.forward(out)
	}
	return out
}

func (c *Classifier) params() []*Param {
	var ps []*Param
	for _, l := range c.layers {
		ps = append(ps, l.params()...)
	}
	return ps
}

// accumulate adds the cross-entropy gradient of one sample and returns its
// loss and whether the arg-max matched the label.
func (c *Classifier) accumulate(x []float64, label int) (float64, bool) {
	caches := make([]denseCache, len(c.layers))
	out := x
	for i, l := range c.layers {
		out, caches[i] = l.forward(out)
	}

	loss := -math.Log(math.Max(out[label], probFloor))

	grad := append([]float64(nil), out...)
	grad[label] -= 1
	for i := len(c.layers) - 1; i >= 0; i-- {
		grad = c.layers[i].backward(caches[i], grad)
	}
	return loss, floats.MaxIdx(out) == label
}

// Fit trains c in place on xs/labels with categorical cross-entropy.
func (c *Classifier) Fit(ctx context.Context, xs [][]float64, labels []int, cfg FitConfig, onEpoch func(EpochStats)) ([]EpochStats, error) {
	step := func(i int) (float64, bool) {
		return c.accumulate(xs[i], labels[i])
	}
	return fit(ctx, len(xs), c.params(), cfg, true, step, onEpoch)
}
