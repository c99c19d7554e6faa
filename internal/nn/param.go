// Package nn contains the small neural-network kernels the forecaster trains:
// dense layers, a single LSTM layer, the Adam optimizer and a mini-batch fit loop.
package nn

import (
	"math"
	"math/rand/v2"
)

// Param is a flat block of trainable weights with its gradient and Adam moments.
type Param struct {
	Value []float64
	Grad  []float64

	m []float64
	v []float64
}

func newParam(n int) *Param {
	return &Param{
		Value: make([]float64, n),
		Grad:  make([]float64, n),
		m:     make([]float64, n),
		v:     make([]float64, n),
	}
}

func (p *Param) zeroGrad() {
	clear(p.Grad)
}

// glorot fills p with Glorot-uniform values for a fanIn x fanOut matrix.
func (p *Param) glorot(fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range p.Value {
		p.Value[i] = (rng.Float64()*2 - 1) * limit
	}
}

// Adam implements the Adam optimizer.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
}

// NewAdam returns Adam with the usual defaults and the given learning rate.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-7}
}

// Step applies one update using each param's gradient multiplied by scale,
// then zeroes the gradients.
func (a *Adam) Step(params []*Param, scale float64) {
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))

	for _, p := range params {
		for i, g := range p.Grad {
			g *= scale
			p.m[i] = a.Beta1*p.m[i] + (1-a.Beta1)*g
			p.v[i] = a.Beta2*p.v[i] + (1-a.Beta2)*g*g
			mHat := p.m[i] / c1
			vHat := p.v[i] / c2
			p.Value[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Eps)
		}
		p.zeroGrad()
	}
}
