// Package gae computes generalized advantage estimates over a completed
// rollout. The recurrence runs strictly backward in time per environment
// column; columns are independent of each other.
package gae

import (
	"fmt"

	"vecrl/buffer"
	"vecrl/core"
)

// Estimator holds the two fixed scalars of the recurrence. Gamma is the
// discount; Lambda trades bias for variance (1 is unbiased Monte-Carlo,
// 0 is pure one-step TD).
type Estimator struct {
	Gamma  float64
	Lambda float64
}

func NewEstimator(gamma, lambda float64) (*Estimator, error) {
	if gamma < 0 || gamma > 1 {
		return nil, fmt.Errorf("%w: gamma %v", core.ErrInvalidConfig, gamma)
	}
	if lambda < 0 || lambda > 1 {
		return nil, fmt.Errorf("%w: gae lambda %v", core.ErrInvalidConfig, lambda)
	}
	return &Estimator{Gamma: gamma, Lambda: lambda}, nil
}

// Estimate computes advantages and bootstrapped returns for the T action
// timesteps of the rollout, laid out as t*N+i like the buffer itself. The
// (1-done) factor stops both the TD error and the advantage tail from
// leaking across an episode boundary; the bootstrap slot contributes only
// its value.
func (e *Estimator) Estimate(r *buffer.Rollout) (advantages, returns []float64, err error) {
	if err := r.CheckComplete(); err != nil {
		return nil, nil, err
	}

	t := r.RolloutLen()
	n := r.NumEnvs()
	advantages = make([]float64, t*n)
	returns = make([]float64, t*n)

	nextAdv := make([]float64, n)
	for step := t - 1; step >= 0; step-- {
		rewards := r.RewardsAt(step)
		values := r.ValuesAt(step)
		nextValues := r.ValuesAt(step + 1)
		dones := r.DonesAt(step)

		base := step * n
		for i := 0; i < n; i++ {
			mask := 1 - dones[i]
			delta := rewards[i] + e.Gamma*nextValues[i]*mask - values[i]
			adv := delta + e.Gamma*e.Lambda*mask*nextAdv[i]
			advantages[base+i] = adv
			returns[base+i] = adv + values[i]
			nextAdv[i] = adv
		}
	}
	return advantages, returns, nil
}
