// Package a2c implements the synchronous advantage actor-critic update
// and the training loop driver around it.
package a2c

import (
	"context"
	"fmt"
	"io"
	"math"

	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"vecrl/buffer"
	"vecrl/collector"
	"vecrl/core"
	"vecrl/gae"
	"vecrl/policy"
)

// Config is the value-only configuration surface of the trainer.
type Config struct {
	RolloutLen  int
	Gamma       float64
	GAELambda   float64
	EntCoef     float64
	ValCoef     float64
	MaxGradNorm float64

	// BatchSize re-partitions the rollout into equal update batches;
	// zero means the entire rollout is one batch.
	BatchSize int

	// NormalizeAdvantage rescales advantages to zero mean and unit
	// variance within each batch. Off by default.
	NormalizeAdvantage bool
}

// DefaultConfig carries the hyperparameters the CLI defaults to.
func DefaultConfig() Config {
	return Config{
		RolloutLen:  5,
		Gamma:       0.995,
		GAELambda:   1.0,
		EntCoef:     0.05,
		ValCoef:     0.25,
		MaxGradNorm: 0.5,
	}
}

func (c Config) Validate(numEnvs int) error {
	if c.RolloutLen <= 0 {
		return fmt.Errorf("%w: rollout length %d", core.ErrInvalidConfig, c.RolloutLen)
	}
	if numEnvs <= 0 {
		return fmt.Errorf("%w: environment count %d", core.ErrInvalidConfig, numEnvs)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("%w: gamma %v", core.ErrInvalidConfig, c.Gamma)
	}
	if c.GAELambda < 0 || c.GAELambda > 1 {
		return fmt.Errorf("%w: gae lambda %v", core.ErrInvalidConfig, c.GAELambda)
	}
	if c.MaxGradNorm <= 0 {
		return fmt.Errorf("%w: max grad norm %v", core.ErrInvalidConfig, c.MaxGradNorm)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("%w: batch size %d", core.ErrInvalidConfig, c.BatchSize)
	}
	if c.BatchSize > 0 && (c.RolloutLen*numEnvs)%c.BatchSize != 0 {
		return fmt.Errorf("%w: batch size %d does not divide rollout of %d transitions",
			core.ErrInvalidConfig, c.BatchSize, c.RolloutLen*numEnvs)
	}
	return nil
}

// A2C owns one training run: one policy, one buffer, one collector, one
// environment batch. Nothing is shared across runs.
type A2C struct {
	// RunID tags emitted events; the multi-seed runner fills it in.
	RunID string
	// Progress, when set, receives a one-line status per update.
	Progress io.Writer

	cfg       Config
	env       core.VecEnv
	policy    *policy.Categorical
	buf       *buffer.Rollout
	col       *collector.OnPolicy
	est       *gae.Estimator
	callbacks *core.Callbacks

	iteration int
}

func New(env core.VecEnv, p *policy.Categorical, cfg Config, rng *erand.Rand, callbacks *core.Callbacks) (*A2C, error) {
	if err := cfg.Validate(env.NumEnvs()); err != nil {
		return nil, err
	}
	buf, err := buffer.NewRollout(cfg.RolloutLen, env.NumEnvs(), env.ObservationSpace().Dim)
	if err != nil {
		return nil, err
	}
	col, err := collector.NewOnPolicy(env, p, buf, rng, callbacks)
	if err != nil {
		return nil, err
	}
	est, err := gae.NewEstimator(cfg.Gamma, cfg.GAELambda)
	if err != nil {
		return nil, err
	}
	if callbacks == nil {
		callbacks = core.NewCallbacks()
	}
	return &A2C{
		cfg:       cfg,
		env:       env,
		policy:    p,
		buf:       buf,
		col:       col,
		est:       est,
		callbacks: callbacks,
	}, nil
}

func (a *A2C) Buffer() *buffer.Rollout        { return a.buf }
func (a *A2C) Collector() *collector.OnPolicy { return a.col }

// Learn repeats collect -> estimate -> update until at least
// totalTimesteps environment steps have been consumed. Cancellation is
// only honored between rollouts; a rollout either completes fully or the
// run fails.
func (a *A2C) Learn(ctx context.Context, totalTimesteps int) error {
	if totalTimesteps <= 0 {
		return fmt.Errorf("%w: total timesteps %d", core.ErrInvalidConfig, totalTimesteps)
	}

	a.callbacks.EmitTrainStart(&core.TrainStartEvent{
		RunID:          a.RunID,
		TotalTimesteps: totalTimesteps,
		NumEnvs:        a.env.NumEnvs(),
		RolloutLen:     a.cfg.RolloutLen,
		Hyperparams:    a.hyperparams(totalTimesteps),
	})

	for a.col.Timesteps() < totalTimesteps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := a.col.Collect(); err != nil {
			return err
		}
		advantages, returns, err := a.est.Estimate(a.buf)
		if err != nil {
			return err
		}
		stats, err := a.update(advantages, returns)
		if err != nil {
			return err
		}
		a.iteration++

		a.callbacks.EmitUpdateEnd(&core.UpdateEndEvent{
			Iteration:   a.iteration,
			Timesteps:   a.col.Timesteps(),
			Loss:        stats.loss,
			PolicyLoss:  stats.policyLoss,
			ValueLoss:   stats.valueLoss,
			Entropy:     stats.entropy,
			GradNorm:    stats.gradNorm,
			RawGradNorm: stats.rawGradNorm,
			Weights:     a.policy.Snapshot(),
			Grads:       a.policy.GradSnapshot(),
		})
		if a.Progress != nil {
			fmt.Fprintf(a.Progress, "run %s iter %d timesteps %d/%d loss %.4f entropy %.4f\n",
				a.RunID, a.iteration, a.col.Timesteps(), totalTimesteps, stats.loss, stats.entropy)
		}
	}
	return nil
}

type updateStats struct {
	loss        float64
	policyLoss  float64
	valueLoss   float64
	entropy     float64
	gradNorm    float64
	rawGradNorm float64
}

// update consumes one full rollout: re-evaluates the stored pairs through
// the current parameters, assembles the joint loss gradient at both heads
// and takes one clipped optimizer step per batch.
func (a *A2C) update(advantages, returns []float64) (*updateStats, error) {
	obs := a.buf.TrainObservations()
	actions := a.buf.TrainActions()
	total := len(actions)

	batchSize := a.cfg.BatchSize
	if batchSize == 0 {
		batchSize = total
	}

	agg := &updateStats{}
	batches := 0
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		obsBatch := obs.Slice(start, end, 0, a.buf.ObsDim()).(*mat.Dense)
		ev, err := a.policy.Evaluate(obsBatch, actions[start:end])
		if err != nil {
			return nil, err
		}

		adv := make([]float64, batchSize)
		copy(adv, advantages[start:end])
		if a.cfg.NormalizeAdvantage {
			normalize(adv)
		}
		ret := returns[start:end]

		stats, err := a.step(ev, actions[start:end], adv, ret)
		if err != nil {
			return nil, err
		}
		agg.loss += stats.loss
		agg.policyLoss += stats.policyLoss
		agg.valueLoss += stats.valueLoss
		agg.entropy += stats.entropy
		agg.gradNorm += stats.gradNorm
		agg.rawGradNorm += stats.rawGradNorm
		batches++
	}
	agg.loss /= float64(batches)
	agg.policyLoss /= float64(batches)
	agg.valueLoss /= float64(batches)
	agg.entropy /= float64(batches)
	agg.gradNorm /= float64(batches)
	agg.rawGradNorm /= float64(batches)
	return agg, nil
}

func (a *A2C) step(ev *policy.Evaluation, actions []int, adv, ret []float64) (*updateStats, error) {
	b := len(adv)
	fb := float64(b)
	numActions := a.env.ActionSpace().N

	policyLoss := 0.0
	valueLoss := 0.0
	entropyMean := 0.0
	for i := 0; i < b; i++ {
		policyLoss -= ev.LogProbs[i] * adv[i]
		diff := ev.Values[i] - ret[i]
		valueLoss += diff * diff
		entropyMean += ev.Entropies[i]
	}
	policyLoss /= fb
	valueLoss /= fb
	entropyMean /= fb
	loss := policyLoss + a.cfg.ValCoef*valueLoss - a.cfg.EntCoef*entropyMean

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return nil, fmt.Errorf("%w: loss %v (policy %v, value %v, entropy %v)",
			core.ErrNumericalFault, loss, policyLoss, valueLoss, entropyMean)
	}

	// Gradient of the joint loss at the two heads. For the taken action a
	// and softmax p: d(-logp_a*adv)/dz_j = adv*(p_j - 1{j=a}), and
	// d(-H)/dz_j = p_j*(logp_j + H).
	dLogits := mat.NewDense(b, numActions, nil)
	dValues := mat.NewDense(b, 1, nil)
	for i := 0; i < b; i++ {
		pRow := ev.Probs.RawRowView(i)
		logRow := ev.LogRows.RawRowView(i)
		dRow := dLogits.RawRowView(i)
		h := ev.Entropies[i]
		for j := 0; j < numActions; j++ {
			dRow[j] = (adv[i]*pRow[j] + a.cfg.EntCoef*pRow[j]*(logRow[j]+h)) / fb
		}
		dRow[actions[i]] -= adv[i] / fb
		dValues.Set(i, 0, a.cfg.ValCoef*2*(ev.Values[i]-ret[i])/fb)
	}

	a.policy.Backward(ev, dLogits, dValues)
	raw, clipped, err := a.policy.ApplyGradients(a.cfg.MaxGradNorm)
	if err != nil {
		return nil, err
	}
	return &updateStats{
		loss:        loss,
		policyLoss:  policyLoss,
		valueLoss:   valueLoss,
		entropy:     entropyMean,
		gradNorm:    clipped,
		rawGradNorm: raw,
	}, nil
}

func normalize(adv []float64) {
	mean, std := stat.MeanStdDev(adv, nil)
	if math.IsNaN(std) || std == 0 {
		std = 1
	}
	for i := range adv {
		adv[i] = (adv[i] - mean) / (std + 1e-8)
	}
}

func (a *A2C) hyperparams(totalTimesteps int) map[string]interface{} {
	return map[string]interface{}{
		"n_envs":              a.env.NumEnvs(),
		"n_steps":             a.cfg.RolloutLen,
		"gamma":               a.cfg.Gamma,
		"gae_lambda":          a.cfg.GAELambda,
		"ent_coef":            a.cfg.EntCoef,
		"val_coef":            a.cfg.ValCoef,
		"max_grad_norm":       a.cfg.MaxGradNorm,
		"batch_size":          a.cfg.BatchSize,
		"normalize_advantage": a.cfg.NormalizeAdvantage,
		"total_timesteps":     totalTimesteps,
	}
}
