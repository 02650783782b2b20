package policy

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// adam implements Adam with a configurable epsilon. It operates on flat
// views of every parameter tensor, paired with the matching gradient
// views.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

func newAdam(lr, eps float64, params [][]float64) *adam {
	a := &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   eps,
	}
	for _, p := range params {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

// update applies one bias-corrected Adam step in place.
func (a *adam) update(params, grads [][]float64) {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i, p := range params {
		g := grads[i]
		m := a.m[i]
		v := a.v[i]
		for j := range p {
			m[j] = a.beta1*m[j] + (1-a.beta1)*g[j]
			v[j] = a.beta2*v[j] + (1-a.beta2)*g[j]*g[j]
			mHat := m[j] / c1
			vHat := v[j] / c2
			p[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// clipGradNorm rescales the gradients in place so the global L2 norm does
// not exceed maxNorm. It returns the pre-clip and post-clip norms.
func clipGradNorm(grads [][]float64, maxNorm float64) (raw, clipped float64) {
	sq := 0.0
	for _, g := range grads {
		sq += floats.Dot(g, g)
	}
	raw = math.Sqrt(sq)
	clipped = raw
	if maxNorm > 0 && raw > maxNorm {
		scale := maxNorm / (raw + 1e-6)
		for _, g := range grads {
			floats.Scale(scale, g)
		}
		clipped = raw * scale
	}
	return raw, clipped
}

func finiteAll(grads [][]float64) bool {
	for _, g := range grads {
		for _, v := range g {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
