package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Activation selects the non-linearity applied after a dense layer.
type Activation int

const (
	Linear Activation = iota
	ReLU
	Softmax
)

// Dense is a fully connected layer. W is stored row-major as Out x In.
type Dense struct {
	In, Out int
	Act     Activation
	W       *Param
	B       *Param
}

type denseCache struct {
	x []float64
	z []float64
	y []float64
}

// NewDense creates a Glorot-initialized layer with zero biases.
func NewDense(in, out int, act Activation, rng *rand.Rand) *Dense {
	d := &Dense{
		In:  in,
		Out: out,
		Act: act,
		W:   newParam(in * out),
		B:   newParam(out),
	}
	d.W.glorot(in, out, rng)
	return d
}

func (d *Dense) params() []*Param {
	return []*Param{d.W, d.B}
}

func (d *Dense) row(j int) []float64 {
	return d.W.Value[j*d.In : (j+1)*d.In]
}

func (d *Dense) forward(x []float64) ([]float64, denseCache) {
	z := make([]float64, d.Out)
	for j := range z {
		z[j] = floats.Dot(d.row(j), x) + d.B.Value[j]
	}

	y := make([]float64, d.Out)
	switch d.Act {
	case ReLU:
		for j, v := range z {
			y[j] = math.Max(0, v)
		}
	case Softmax:
		softmax(y, z)
	default:
		copy(y, z)
	}
	return y, denseCache{x: x, z: z, y: y}
}

// backward accumulates parameter gradients and returns dL/dx. For Softmax
// layers dy must already be the gradient with respect to the logits.
func (d *Dense) backward(c denseCache, dy []float64) []float64 {
	dz := make([]float64, d.Out)
	switch d.Act {
	case ReLU:
		for j, v := range c.z {
			if v > 0 {
				dz[j] = dy[j]
			}
		}
	default:
		copy(dz, dy)
	}

	dx := make([]float64, d.In)
	for j, g := range dz {
		if g == 0 {
			continue
		}
		grad := d.W.Grad[j*d.In : (j+1)*d.In]
		floats.AddScaled(grad, g, c.x)
		floats.AddScaled(dx, g, d.row(j))
		d.B.Grad[j] += g
	}
	return dx
}

func softmax(dst, z []float64) {
	maxZ := floats.Max(z)
	var sum float64
	for i, v := range z {
		dst[i] = math.Exp(v - maxZ)
		sum += dst[i]
	}
	floats.Scale(1/sum, dst)
}
