package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// LSTM is a single recurrent layer returning only its final hidden state.
// Gate blocks are ordered input, forget, cell, output. W is 4H x In and U is
// 4H x Hidden, both row-major.
type LSTM struct {
	In, Hidden int
	W          *Param
	U          *Param
	B          *Param
}

type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	tanhC           []float64
}

// NewLSTM creates a Glorot-initialized layer. The forget-gate bias starts at 1.
func NewLSTM(in, hidden int, rng *rand.Rand) *LSTM {
	l := &LSTM{
		In:     in,
		Hidden: hidden,
		W:      newParam(4 * hidden * in),
		B:      newParam(4 * hidden),
		U:      newParam(4 * hidden * hidden),
	}
	l.W.glorot(in, 4*hidden, rng)
	l.U.glorot(hidden, 4*hidden, rng)
	for k := hidden; k < 2*hidden; k++ {
		l.B.Value[k] = 1
	}
	return l
}

func (l *LSTM) params() []*Param {
	return []*Param{l.W, l.U, l.B}
}

func (l *LSTM) forward(seq [][]float64) ([]float64, []lstmStep) {
	H := l.Hidden
	h := make([]float64, H)
	c := make([]float64, H)
	steps := make([]lstmStep, 0, len(seq))

	for _, x := range seq {
		a := make([]float64, 4*H)
		for k := range a {
			a[k] = floats.Dot(l.W.Value[k*l.In:(k+1)*l.In], x) +
				floats.Dot(l.U.Value[k*H:(k+1)*H], h) +
				l.B.Value[k]
		}

		st := lstmStep{
			x:     x,
			hPrev: h,
			cPrev: c,
			i:     make([]float64, H),
			f:     make([]float64, H),
			g:     make([]float64, H),
			o:     make([]float64, H),
			tanhC: make([]float64, H),
		}
		nextH := make([]float64, H)
		nextC := make([]float64, H)
		for j := 0; j < H; j++ {
			st.i[j] = sigmoid(a[j])
			st.f[j] = sigmoid(a[H+j])
			st.g[j] = math.Tanh(a[2*H+j])
			st.o[j] = sigmoid(a[3*H+j])
			nextC[j] = st.f[j]*c[j] + st.i[j]*st.g[j]
			st.tanhC[j] = math.Tanh(nextC[j])
			nextH[j] = st.o[j] * st.tanhC[j]
		}

		steps = append(steps, st)
		h, c = nextH, nextC
	}
	return h, steps
}

// backward runs backpropagation through time from dL/dh of the last step.
func (l *LSTM) backward(steps []lstmStep, dhLast []float64) {
	H := l.Hidden
	dh := append([]float64(nil), dhLast...)
	dc := make([]float64, H)
	da := make([]float64, 4*H)

	for t := len(steps) - 1; t >= 0; t-- {
		st := steps[t]
		for j := 0; j < H; j++ {
			dc[j] += dh[j] * st.o[j] * (1 - st.tanhC[j]*st.tanhC[j])
			do := dh[j] * st.tanhC[j]
			di := dc[j] * st.g[j]
			dg := dc[j] * st.i[j]
			df := dc[j] * st.cPrev[j]

			da[j] = di * st.i[j] * (1 - st.i[j])
			da[H+j] = df * st.f[j] * (1 - st.f[j])
			da[2*H+j] = dg * (1 - st.g[j]*st.g[j])
			da[3*H+j] = do * st.o[j] * (1 - st.o[j])

			dc[j] *= st.f[j]
		}

		dhPrev := make([]float64, H)
		for k, g := range da {
			if g == 0 {
				continue
			}
			floats.AddScaled(l.W.Grad[k*l.In:(k+1)*l.In], g, st.x)
			floats.AddScaled(l.U.Grad[k*H:(k+1)*H], g, st.hPrev)
			floats.AddScaled(dhPrev, g, l.U.Value[k*H:(k+1)*H])
			l.B.Grad[k] += g
		}
		dh = dhPrev
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
