// Package collector drives the interaction loop between the policy and
// the vectorized environment, filling the rollout buffer in place.
package collector

import (
	"fmt"

	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"vecrl/buffer"
	"vecrl/core"
)

// Actor is the sampling surface the collector needs from a policy.
type Actor interface {
	// Act samples actions for the observation batch and returns them with
	// the value estimates and log-probabilities at sampling time.
	Act(obs *mat.Dense, rng *erand.Rand) (actions []int, values, logProbs []float64, err error)
	// Values is the value-only query used for the bootstrap slot.
	Values(obs *mat.Dense) ([]float64, error)
}

// OnPolicy collects fixed-length rollouts. It has two states: idle before
// the first rollout, collecting afterwards. The one-time environment
// reset happens on the first Collect; every later rollout resumes from
// the carried observation and done flags, so interaction continues across
// rollout boundaries instead of restarting.
type OnPolicy struct {
	env       core.VecEnv
	actor     Actor
	buf       *buffer.Rollout
	rng       *erand.Rand
	callbacks *core.Callbacks

	started   bool
	lastObs   *mat.Dense
	lastDones []bool
	timesteps int
}

func NewOnPolicy(env core.VecEnv, actor Actor, buf *buffer.Rollout, rng *erand.Rand, callbacks *core.Callbacks) (*OnPolicy, error) {
	if env.NumEnvs() != buf.NumEnvs() {
		return nil, fmt.Errorf("%w: %d environments, buffer for %d", core.ErrInvalidConfig, env.NumEnvs(), buf.NumEnvs())
	}
	obsSpace := env.ObservationSpace()
	if obsSpace.Kind != core.VectorSpace {
		return nil, fmt.Errorf("%w: observation space %s", core.ErrUnsupportedSpace, obsSpace)
	}
	if obsSpace.Dim != buf.ObsDim() {
		return nil, fmt.Errorf("%w: observation dim %d, buffer expects %d", core.ErrInvalidConfig, obsSpace.Dim, buf.ObsDim())
	}
	return &OnPolicy{
		env:       env,
		actor:     actor,
		buf:       buf,
		rng:       rng,
		callbacks: callbacks,
	}, nil
}

// Timesteps is the cumulative number of environment steps collected.
func (c *OnPolicy) Timesteps() int {
	return c.timesteps
}

// Collect fills the buffer with one rollout of RolloutLen timesteps plus
// the bootstrap value at the end. Environment faults propagate untouched;
// the environment's state is not trusted after one.
func (c *OnPolicy) Collect() (int, error) {
	if !c.started {
		obs, err := c.env.Reset()
		if err != nil {
			return 0, fmt.Errorf("%w: reset: %v", core.ErrEnvironmentFault, err)
		}
		if err := c.checkBatch(obs); err != nil {
			return 0, err
		}
		c.lastObs = obs
		c.lastDones = make([]bool, c.env.NumEnvs())
		c.started = true
	}

	c.buf.Reset()

	var episodeRewards []float64
	var episodeLengths []int

	rolloutLen := c.buf.RolloutLen()
	for t := 0; t < rolloutLen; t++ {
		actions, values, logProbs, err := c.actor.Act(c.lastObs, c.rng)
		if err != nil {
			return 0, err
		}
		nextObs, rewards, dones, infos, err := c.env.Step(actions)
		if err != nil {
			return 0, fmt.Errorf("%w: step %d: %v", core.ErrEnvironmentFault, t, err)
		}
		if err := c.checkBatch(nextObs); err != nil {
			return 0, err
		}
		if err := c.buf.Add(t, c.lastObs, actions, rewards, dones, values, logProbs); err != nil {
			return 0, err
		}

		for _, info := range infos {
			if info.Episode {
				episodeRewards = append(episodeRewards, info.EpisodeReward)
				episodeLengths = append(episodeLengths, info.EpisodeLength)
			}
		}
		c.callbacks.EmitRolloutStep(&core.RolloutStepEvent{
			Step:    t,
			Rewards: rewards,
			Dones:   dones,
			Infos:   infos,
		})

		c.lastObs = nextObs
		c.lastDones = dones
	}

	// One extra policy query, no environment step: the advantage
	// recurrence needs a value one step past the last action.
	bootstrapValues, err := c.actor.Values(c.lastObs)
	if err != nil {
		return 0, err
	}
	if err := c.buf.AddBootstrap(c.lastObs, bootstrapValues); err != nil {
		return 0, err
	}

	collected := rolloutLen * c.env.NumEnvs()
	c.timesteps += collected

	c.callbacks.EmitRolloutEnd(&core.RolloutEndEvent{
		Timesteps:      c.timesteps,
		EpisodeRewards: episodeRewards,
		EpisodeLengths: episodeLengths,
		MeanValue:      stat.Mean(c.buf.TrainValues(), nil),
	})
	return collected, nil
}

func (c *OnPolicy) checkBatch(obs *mat.Dense) error {
	rows, cols := obs.Dims()
	if rows != c.env.NumEnvs() || cols != c.buf.ObsDim() {
		return fmt.Errorf("%w: observation batch %dx%d, want %dx%d",
			core.ErrEnvironmentFault, rows, cols, c.env.NumEnvs(), c.buf.ObsDim())
	}
	return nil
}
