// Package policy implements the categorical actor-critic used by the A2C
// trainer: two independent feed-forward branches over vector observations,
// one producing action logits and one producing a scalar value.
package policy

import (
	"fmt"
	"math"

	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"vecrl/core"
)

// Config carries the knobs that shape the policy networks and their
// optimizer. Zero values are filled in by DefaultConfig.
type Config struct {
	HiddenSize   int
	OrthoInit    bool
	LearningRate float64
	AdamEps      float64
}

func DefaultConfig() Config {
	return Config{
		HiddenSize:   128,
		LearningRate: 0.00083,
		AdamEps:      1e-5,
	}
}

// Categorical is a discrete-action actor-critic policy. All sampling uses
// the caller-supplied random source; the policy itself holds no ambient
// randomness, so concurrent runs never share sampling state.
type Categorical struct {
	obsSpace core.Space
	actSpace core.Space
	cfg      Config

	actor  *mlp
	critic *mlp
	opt    *adam
}

// NewCategorical validates the space kinds before any network allocation:
// only vector observations and discrete actions are implemented.
func NewCategorical(obsSpace, actSpace core.Space, cfg Config, rng *erand.Rand) (*Categorical, error) {
	if obsSpace.Kind != core.VectorSpace || obsSpace.Dim <= 0 {
		return nil, fmt.Errorf("%w: observation space %s", core.ErrUnsupportedSpace, obsSpace)
	}
	if actSpace.Kind != core.DiscreteSpace || actSpace.N < 2 {
		return nil, fmt.Errorf("%w: action space %s", core.ErrUnsupportedSpace, actSpace)
	}
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = DefaultConfig().HiddenSize
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = DefaultConfig().LearningRate
	}
	if cfg.AdamEps <= 0 {
		cfg.AdamEps = DefaultConfig().AdamEps
	}

	p := &Categorical{
		obsSpace: obsSpace,
		actSpace: actSpace,
		cfg:      cfg,
		actor:    newMLP("actor", []int{obsSpace.Dim, cfg.HiddenSize, cfg.HiddenSize, actSpace.N}, rng),
		critic:   newMLP("critic", []int{obsSpace.Dim, cfg.HiddenSize, cfg.HiddenSize, 1}, rng),
	}
	if cfg.OrthoInit {
		// Small actor head keeps the initial distribution near uniform;
		// the critic head keeps unit scale.
		p.actor.orthogonalize(math.Sqrt2, 0.01, rng)
		p.critic.orthogonalize(math.Sqrt2, 1.0, rng)
	}
	p.opt = newAdam(cfg.LearningRate, cfg.AdamEps, p.paramViews())
	return p, nil
}

func (p *Categorical) ObservationSpace() core.Space { return p.obsSpace }
func (p *Categorical) ActionSpace() core.Space      { return p.actSpace }

// Act samples one action per observation row and returns the actions, the
// critic's value estimates and the log-probabilities of the sampled
// actions at sampling time.
func (p *Categorical) Act(obs *mat.Dense, rng *erand.Rand) ([]int, []float64, []float64, error) {
	if err := p.checkObs(obs); err != nil {
		return nil, nil, nil, err
	}
	batch, _ := obs.Dims()

	logits, _ := p.actor.forward(obs)
	valueOut, _ := p.critic.forward(obs)

	actions := make([]int, batch)
	values := make([]float64, batch)
	logProbs := make([]float64, batch)
	probRow := make([]float64, p.actSpace.N)
	logRow := make([]float64, p.actSpace.N)
	for i := 0; i < batch; i++ {
		softmaxRow(logits.RawRowView(i), probRow, logRow)
		idx, ok := sampleuv.NewWeighted(probRow, rng).Take()
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: degenerate action distribution", core.ErrNumericalFault)
		}
		actions[i] = idx
		logProbs[i] = logRow[idx]
		values[i] = valueOut.At(i, 0)
	}
	return actions, values, logProbs, nil
}

// Values runs only the critic branch, used for the bootstrap query at the
// end of a rollout.
func (p *Categorical) Values(obs *mat.Dense) ([]float64, error) {
	if err := p.checkObs(obs); err != nil {
		return nil, err
	}
	batch, _ := obs.Dims()
	valueOut, _ := p.critic.forward(obs)
	values := make([]float64, batch)
	for i := 0; i < batch; i++ {
		values[i] = valueOut.At(i, 0)
	}
	return values, nil
}

// Evaluation is the result of re-running stored observations through the
// current parameters. It retains the forward caches so that a single
// Backward call can push loss gradients through both branches.
type Evaluation struct {
	Values    []float64
	LogProbs  []float64
	Entropies []float64

	// Probs holds the full action distribution per row, needed by the
	// trainer to assemble the logit gradient.
	Probs *mat.Dense
	// LogRows mirrors Probs with log-probabilities.
	LogRows *mat.Dense

	actorCache  *forwardCache
	criticCache *forwardCache
}

// Evaluate recomputes the distribution and value for the given
// observations and scores the externally supplied actions under it. The
// actions are the ones actually taken during collection; they are not
// resampled.
func (p *Categorical) Evaluate(obs *mat.Dense, actions []int) (*Evaluation, error) {
	if err := p.checkObs(obs); err != nil {
		return nil, err
	}
	batch, _ := obs.Dims()
	if len(actions) != batch {
		return nil, fmt.Errorf("%w: %d actions for %d observations", core.ErrEnvironmentFault, len(actions), batch)
	}

	logits, actorCache := p.actor.forward(obs)
	valueOut, criticCache := p.critic.forward(obs)

	ev := &Evaluation{
		Values:      make([]float64, batch),
		LogProbs:    make([]float64, batch),
		Entropies:   make([]float64, batch),
		Probs:       mat.NewDense(batch, p.actSpace.N, nil),
		LogRows:     mat.NewDense(batch, p.actSpace.N, nil),
		actorCache:  actorCache,
		criticCache: criticCache,
	}
	for i := 0; i < batch; i++ {
		a := actions[i]
		if a < 0 || a >= p.actSpace.N {
			return nil, fmt.Errorf("%w: action %d outside discrete(%d)", core.ErrEnvironmentFault, a, p.actSpace.N)
		}
		probRow := ev.Probs.RawRowView(i)
		logRow := ev.LogRows.RawRowView(i)
		softmaxRow(logits.RawRowView(i), probRow, logRow)

		ev.Values[i] = valueOut.At(i, 0)
		ev.LogProbs[i] = logRow[a]
		entropy := 0.0
		for j := range probRow {
			entropy -= probRow[j] * logRow[j]
		}
		ev.Entropies[i] = entropy
	}
	return ev, nil
}

// Backward clears the accumulated gradients and backpropagates the given
// head gradients (logit gradient for the actor, value gradient for the
// critic) through the evaluation's caches.
func (p *Categorical) Backward(ev *Evaluation, dLogits, dValues *mat.Dense) {
	p.actor.zeroGrads()
	p.critic.zeroGrads()
	p.actor.backward(ev.actorCache, dLogits)
	p.critic.backward(ev.criticCache, dValues)
}

// ApplyGradients clips the global gradient norm to maxNorm and performs
// one optimizer step. Non-finite gradients are fatal.
func (p *Categorical) ApplyGradients(maxNorm float64) (rawNorm, gradNorm float64, err error) {
	grads := p.gradViews()
	if !finiteAll(grads) {
		return 0, 0, fmt.Errorf("%w: non-finite gradient", core.ErrNumericalFault)
	}
	rawNorm, gradNorm = clipGradNorm(grads, maxNorm)
	p.opt.update(p.paramViews(), grads)
	return rawNorm, gradNorm, nil
}

// Snapshot returns a copy of every parameter tensor keyed by layer name.
func (p *Categorical) Snapshot() map[string][]float64 {
	return p.snapshot(false)
}

// GradSnapshot returns a copy of the current gradients keyed by layer name.
func (p *Categorical) GradSnapshot() map[string][]float64 {
	return p.snapshot(true)
}

func (p *Categorical) snapshot(grads bool) map[string][]float64 {
	out := make(map[string][]float64)
	for _, l := range p.allLinears() {
		w, b := l.w, l.b
		if grads {
			w, b = l.gw, l.gb
		}
		raw := w.RawMatrix().Data
		cw := make([]float64, len(raw))
		copy(cw, raw)
		cb := make([]float64, len(b))
		copy(cb, b)
		out[l.name+".w"] = cw
		out[l.name+".b"] = cb
	}
	return out
}

func (p *Categorical) allLinears() []*linear {
	return append(append([]*linear{}, p.actor.linears()...), p.critic.linears()...)
}

func (p *Categorical) paramViews() [][]float64 {
	var views [][]float64
	for _, l := range p.allLinears() {
		views = append(views, l.w.RawMatrix().Data, l.b)
	}
	return views
}

func (p *Categorical) gradViews() [][]float64 {
	var views [][]float64
	for _, l := range p.allLinears() {
		views = append(views, l.gw.RawMatrix().Data, l.gb)
	}
	return views
}

func (p *Categorical) checkObs(obs *mat.Dense) error {
	_, cols := obs.Dims()
	if cols != p.obsSpace.Dim {
		return fmt.Errorf("%w: observation width %d, want %d", core.ErrEnvironmentFault, cols, p.obsSpace.Dim)
	}
	return nil
}

// softmaxRow fills probs and logProbs from the logits row, shifted by the
// row max for stability.
func softmaxRow(logits, probs, logProbs []float64) {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	for i, v := range logits {
		probs[i] = math.Exp(v - max)
		sum += probs[i]
	}
	logSum := math.Log(sum)
	for i := range probs {
		probs[i] /= sum
		logProbs[i] = logits[i] - max - logSum
	}
}
