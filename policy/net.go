package policy

import (
	"fmt"
	"math"

	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// linear is one fully connected layer, weights stored as in x out so that
// a batch forward pass is a single X*W product.
type linear struct {
	name string
	in   int
	out  int

	w *mat.Dense
	b []float64

	gw *mat.Dense
	gb []float64
}

func newLinear(name string, in, out int, rng *erand.Rand) *linear {
	l := &linear{
		name: name,
		in:   in,
		out:  out,
		w:    mat.NewDense(in, out, nil),
		b:    make([]float64, out),
		gw:   mat.NewDense(in, out, nil),
		gb:   make([]float64, out),
	}
	// Default init: uniform on [-k, k) with k = 1/sqrt(in).
	k := 1.0 / math.Sqrt(float64(in))
	for i := 0; i < in; i++ {
		for j := 0; j < out; j++ {
			l.w.Set(i, j, (rng.Float64()*2-1)*k)
		}
	}
	return l
}

// orthogonalize replaces the weights with a gain-scaled orthogonal matrix
// obtained from the QR factorization of a Gaussian draw. Signs are fixed
// from the diagonal of R so the distribution over orthogonal matrices is
// uniform. Biases are zeroed.
func (l *linear) orthogonalize(gain float64, rng *erand.Rand) {
	rows, cols := l.in, l.out
	transposed := rows < cols
	if transposed {
		rows, cols = cols, rows
	}

	a := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)

	for i := 0; i < l.in; i++ {
		for j := 0; j < l.out; j++ {
			qi, qj := i, j
			if transposed {
				qi, qj = j, i
			}
			sign := 1.0
			if r.At(qj, qj) < 0 {
				sign = -1.0
			}
			l.w.Set(i, j, gain*sign*q.At(qi, qj))
		}
	}
	for j := range l.b {
		l.b[j] = 0
	}
}

func (l *linear) zeroGrad() {
	l.gw.Zero()
	for i := range l.gb {
		l.gb[i] = 0
	}
}

// apply computes X*W + b for a batch X of shape (batch x in).
func (l *linear) apply(x *mat.Dense) *mat.Dense {
	batch, _ := x.Dims()
	out := mat.NewDense(batch, l.out, nil)
	out.Mul(x, l.w)
	for i := 0; i < batch; i++ {
		row := out.RawRowView(i)
		for j := 0; j < l.out; j++ {
			row[j] += l.b[j]
		}
	}
	return out
}

// mlp is a feed-forward stack of linear layers with ReLU between them and
// a linear head. The actor and critic branches are two independent mlps
// sharing no parameters.
type mlp struct {
	layers []*linear
}

// newMLP builds dims[0] -> dims[1] -> ... -> dims[last].
func newMLP(name string, dims []int, rng *erand.Rand) *mlp {
	m := &mlp{}
	for i := 0; i+1 < len(dims); i++ {
		m.layers = append(m.layers, newLinear(layerName(name, i), dims[i], dims[i+1], rng))
	}
	return m
}

func layerName(prefix string, i int) string {
	return fmt.Sprintf("%s.%d", prefix, i)
}

// orthogonalize applies gain hiddenGain to all hidden layers and headGain
// to the final layer.
func (m *mlp) orthogonalize(hiddenGain, headGain float64, rng *erand.Rand) {
	for i, l := range m.layers {
		if i == len(m.layers)-1 {
			l.orthogonalize(headGain, rng)
		} else {
			l.orthogonalize(hiddenGain, rng)
		}
	}
}

// forwardCache records the input to every layer plus each pre-activation,
// which is what backward needs to reconstruct the ReLU masks.
type forwardCache struct {
	inputs  []*mat.Dense
	preacts []*mat.Dense
}

// forward runs the batch through the net and returns the head output
// together with the cache for a later backward pass.
func (m *mlp) forward(x *mat.Dense) (*mat.Dense, *forwardCache) {
	c := &forwardCache{}
	cur := x
	for i, l := range m.layers {
		c.inputs = append(c.inputs, cur)
		z := l.apply(cur)
		c.preacts = append(c.preacts, z)
		if i < len(m.layers)-1 {
			cur = reluOf(z)
		} else {
			cur = z
		}
	}
	return cur, c
}

func reluOf(z *mat.Dense) *mat.Dense {
	rows, cols := z.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src := z.RawRowView(i)
		dst := out.RawRowView(i)
		for j := 0; j < cols; j++ {
			if src[j] > 0 {
				dst[j] = src[j]
			}
		}
	}
	return out
}

// backward accumulates parameter gradients for the loss gradient dOut at
// the head, walking the cache in reverse.
func (m *mlp) backward(c *forwardCache, dOut *mat.Dense) {
	d := dOut
	for i := len(m.layers) - 1; i >= 0; i-- {
		l := m.layers[i]

		var gw mat.Dense
		gw.Mul(c.inputs[i].T(), d)
		l.gw.Add(l.gw, &gw)

		rows, _ := d.Dims()
		for r := 0; r < rows; r++ {
			row := d.RawRowView(r)
			for j := 0; j < l.out; j++ {
				l.gb[j] += row[j]
			}
		}

		if i == 0 {
			break
		}

		dIn := mat.NewDense(rows, l.in, nil)
		dIn.Mul(d, l.w.T())
		// Gate through the previous layer's ReLU.
		pre := c.preacts[i-1]
		for r := 0; r < rows; r++ {
			dRow := dIn.RawRowView(r)
			pRow := pre.RawRowView(r)
			for j := range dRow {
				if pRow[j] <= 0 {
					dRow[j] = 0
				}
			}
		}
		d = dIn
	}
}

func (m *mlp) zeroGrads() {
	for _, l := range m.layers {
		l.zeroGrad()
	}
}

func (m *mlp) linears() []*linear {
	return m.layers
}
