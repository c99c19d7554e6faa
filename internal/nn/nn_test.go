package nn

import (
	"context"
	"errors"
	"math"
	"testing"
)

const (
	fdEps = 1e-5
	fdTol = 1e-5
)

func checkGradients(t *testing.T, name string, params []*Param, loss func() float64) {
	t.Helper()
	for pi, p := range params {
		for i := range p.Value {
			orig := p.Value[i]
			p.Value[i] = orig + fdEps
			plus := loss()
			p.Value[i] = orig - fdEps
			minus := loss()
			p.Value[i] = orig

			numeric := (plus - minus) / (2 * fdEps)
			analytic := p.Grad[i]
			scale := math.Max(1, math.Abs(numeric)+math.Abs(analytic))
			if math.Abs(numeric-analytic)/scale > fdTol {
				t.Fatalf("%s: param %d[%d]: analytic %.8f, numeric %.8f", name, pi, i, analytic, numeric)
			}
		}
	}
}

func randomSeq(steps, dim int, seed uint64) [][]float64 {
	rng := NewRand(seed)
	seq := make([][]float64, steps)
	for s := range seq {
		seq[s] = make([]float64, dim)
		for d := range seq[s] {
			seq[s][d] = rng.Float64()*2 - 1
		}
	}
	return seq
}

func TestSequenceRegressorGradients(t *testing.T) {
	r := NewSequenceRegressor(4, 5, NewRand(1))
	seq := randomSeq(3, 4, 2)
	target := 0.7

	r.accumulate(seq, target)
	checkGradients(t, "regressor", r.params(), func() float64 {
		d := r.Predict(seq) - target
		return d * d
	})
}

func TestClassifierGradients(t *testing.T) {
	c := NewClassifier(6, 5, NewRand(3))
	x := randomSeq(1, 6, 4)[0]
	label := 2

	c.accumulate(x, label)
	checkGradients(t, "classifier", c.params(), func() float64 {
		return -math.Log(c.Predict(x)[label])
	})
}

func TestAdamStepMovesAgainstGradient(t *testing.T) {
	p := newParam(2)
	p.Value[0], p.Value[1] = 1, 1
	p.Grad[0], p.Grad[1] = 2, -2

	NewAdam(0.1).Step([]*Param{p}, 1)
	if p.Value[0] >= 1 || p.Value[1] <= 1 {
		t.Fatalf("unexpected values after step: %v", p.Value)
	}
	if p.Grad[0] != 0 || p.Grad[1] != 0 {
		t.Fatalf("gradients not cleared: %v", p.Grad)
	}
}

func TestRegressorFitReducesLoss(t *testing.T) {
	var xs [][][]float64
	var ys []float64
	for i := 0; i < 24; i++ {
		v := float64(i%6) / 6
		xs = append(xs, [][]float64{{v}, {v}, {v}})
		ys = append(ys, 2*v-0.5)
	}

	r := NewSequenceRegressor(1, 8, NewRand(7))
	cfg := DefaultFitConfig()
	cfg.Epochs = 40

	var seen int
	history, err := r.Fit(context.Background(), xs, ys, cfg, func(EpochStats) { seen++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != cfg.Epochs || len(history) != cfg.Epochs {
		t.Fatalf("expected %d epochs reported, got %d callbacks and %d stats", cfg.Epochs, seen, len(history))
	}
	if last, first := history[len(history)-1].Loss, history[0].Loss; last >= first {
		t.Fatalf("loss did not decrease: first %v, last %v", first, last)
	}
}

func TestClassifierFitLearnsSeparableData(t *testing.T) {
	var xs [][]float64
	var labels []int
	for i := 0; i < 40; i++ {
		label := i % 2
		x := []float64{-1, 0.2}
		if label == 1 {
			x = []float64{1, -0.2}
		}
		xs = append(xs, x)
		labels = append(labels, label)
	}

	c := NewClassifier(2, 5, NewRand(11))
	history, err := c.Fit(context.Background(), xs, labels, DefaultFitConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := history[len(history)-1]
	if !last.HasAccuracy || last.Accuracy < 0.9 {
		t.Fatalf("expected high accuracy on separable data, got %+v", last)
	}
	if last.Loss >= history[0].Loss {
		t.Fatalf("loss did not decrease: first %v, last %v", history[0].Loss, last.Loss)
	}
}

func TestFitNonFiniteLoss(t *testing.T) {
	xs := [][][]float64{{{math.NaN()}, {1}, {1}}}
	r := NewSequenceRegressor(1, 4, NewRand(1))

	_, err := r.Fit(context.Background(), xs, []float64{1}, DefaultFitConfig(), nil)
	if !errors.Is(err, ErrNonFiniteLoss) {
		t.Fatalf("expected ErrNonFiniteLoss, got %v", err)
	}
}

func TestFitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClassifier(2, 5, NewRand(1))
	before := append([]float64(nil), c.layers[0].W.Value...)

	_, err := c.Fit(ctx, [][]float64{{1, 2}}, []int{0}, DefaultFitConfig(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for i, v := range c.layers[0].W.Value {
		if v != before[i] {
			t.Fatal("weights changed although the fit was canceled before the first batch")
		}
	}
}

func TestFitNoSamples(t *testing.T) {
	c := NewClassifier(2, 5, NewRand(1))
	if _, err := c.Fit(context.Background(), nil, nil, DefaultFitConfig(), nil); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}
