package a2c

import (
	"context"
	"errors"
	"math"
	"testing"

	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"

	"vecrl/buffer"
	"vecrl/collector"
	"vecrl/core"
	"vecrl/gae"
	"vecrl/policy"
)

// constRewardEnv pays a fixed reward every step and ends every episode
// after episodeLen steps, aligned across all instances. Observations are
// the episode step scaled into [0, 1).
type constRewardEnv struct {
	numEnvs    int
	obsDim     int
	episodeLen int
	reward     float64

	step      int
	failAfter int // total steps before Step starts failing, 0 to disable
}

func (e *constRewardEnv) obs() *mat.Dense {
	out := mat.NewDense(e.numEnvs, e.obsDim, nil)
	phase := float64(e.step%e.episodeLen) / float64(e.episodeLen)
	for i := 0; i < e.numEnvs; i++ {
		out.Set(i, 0, phase)
	}
	return out
}

func (e *constRewardEnv) Reset() (*mat.Dense, error) {
	e.step = 0
	return e.obs(), nil
}

func (e *constRewardEnv) Step(actions []int) (*mat.Dense, []float64, []bool, []core.Info, error) {
	if e.failAfter > 0 && e.step >= e.failAfter {
		return nil, nil, nil, nil, errors.New("backend gone")
	}
	e.step++
	rewards := make([]float64, e.numEnvs)
	dones := make([]bool, e.numEnvs)
	infos := make([]core.Info, e.numEnvs)
	done := e.step%e.episodeLen == 0
	for i := range rewards {
		rewards[i] = e.reward
		if done {
			dones[i] = true
			infos[i] = core.Info{
				Episode:       true,
				EpisodeReward: e.reward * float64(e.episodeLen),
				EpisodeLength: e.episodeLen,
			}
		}
	}
	return e.obs(), rewards, dones, infos, nil
}

func (e *constRewardEnv) NumEnvs() int                 { return e.numEnvs }
func (e *constRewardEnv) ObservationSpace() core.Space { return core.Vector(e.obsDim) }
func (e *constRewardEnv) ActionSpace() core.Space      { return core.Discrete(2) }
func (e *constRewardEnv) Close() error                 { return nil }

// zeroActor picks action 0 and estimates every value as zero, so the
// estimated returns reduce to pure discounted reward sums.
type zeroActor struct{}

func (zeroActor) Act(obs *mat.Dense, rng *erand.Rand) ([]int, []float64, []float64, error) {
	batch, _ := obs.Dims()
	logProbs := make([]float64, batch)
	for i := range logProbs {
		logProbs[i] = math.Log(0.5)
	}
	return make([]int, batch), make([]float64, batch), logProbs, nil
}

func (zeroActor) Values(obs *mat.Dense) ([]float64, error) {
	batch, _ := obs.Dims()
	return make([]float64, batch), nil
}

type updateRecorder struct {
	events []*core.UpdateEndEvent
	starts []*core.TrainStartEvent
}

func (r *updateRecorder) OnUpdateEnd(e *core.UpdateEndEvent)   { r.events = append(r.events, e) }
func (r *updateRecorder) OnTrainStart(e *core.TrainStartEvent) { r.starts = append(r.starts, e) }

func newTestModel(t *testing.T, env core.VecEnv, cfg Config, cb *core.Callbacks) *A2C {
	t.Helper()
	rng := erand.New(erand.NewSource(9))
	pol, err := policy.NewCategorical(env.ObservationSpace(), env.ActionSpace(), policy.Config{
		HiddenSize:   8,
		LearningRate: 0.01,
	}, rng)
	if err != nil {
		t.Fatalf("new policy: %v", err)
	}
	model, err := New(env, pol, cfg, rng, cb)
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return model
}

func TestLearnConsumesBudget(t *testing.T) {
	env := &constRewardEnv{numEnvs: 2, obsDim: 2, episodeLen: 10, reward: 1}
	cb := core.NewCallbacks()
	rec := &updateRecorder{}
	cb.Register(rec)

	cfg := DefaultConfig()
	cfg.Gamma = 0.99
	cfg.GAELambda = 0.95
	model := newTestModel(t, env, cfg, cb)

	// T=5 across 2 environments is 10 timesteps per rollout.
	if err := model.Learn(context.Background(), 40); err != nil {
		t.Fatalf("learn: %v", err)
	}

	if len(rec.starts) != 1 {
		t.Fatalf("train start events = %d, want 1", len(rec.starts))
	}
	if len(rec.events) != 4 {
		t.Fatalf("update events = %d, want 4", len(rec.events))
	}
	for i, e := range rec.events {
		if e.Iteration != i+1 {
			t.Errorf("event %d iteration = %d, want %d", i, e.Iteration, i+1)
		}
		if e.Timesteps != (i+1)*10 {
			t.Errorf("event %d timesteps = %d, want %d", i, e.Timesteps, (i+1)*10)
		}
		if math.IsNaN(e.Loss) || math.IsInf(e.Loss, 0) {
			t.Errorf("event %d loss = %v", i, e.Loss)
		}
		if e.GradNorm > cfg.MaxGradNorm+1e-9 {
			t.Errorf("event %d grad norm %v exceeds cap %v", i, e.GradNorm, cfg.MaxGradNorm)
		}
	}

	// The optimizer must actually move the parameters.
	first := rec.events[0].Weights["actor.0.w"]
	last := rec.events[3].Weights["actor.0.w"]
	moved := false
	for i := range first {
		if first[i] != last[i] {
			moved = true
			break
		}
	}
	if !moved {
		t.Errorf("actor weights did not change across 4 updates")
	}
}

func TestLearnHonorsCancellation(t *testing.T) {
	env := &constRewardEnv{numEnvs: 2, obsDim: 1, episodeLen: 10, reward: 1}
	model := newTestModel(t, env, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := model.Learn(ctx, 1000); !errors.Is(err, context.Canceled) {
		t.Fatalf("learn under canceled context: got %v, want context.Canceled", err)
	}
}

func TestLearnPropagatesEnvFault(t *testing.T) {
	env := &constRewardEnv{numEnvs: 2, obsDim: 1, episodeLen: 10, reward: 1, failAfter: 7}
	model := newTestModel(t, env, DefaultConfig(), nil)

	err := model.Learn(context.Background(), 1000)
	if !errors.Is(err, core.ErrEnvironmentFault) {
		t.Fatalf("learn over a faulting env: got %v, want ErrEnvironmentFault", err)
	}
}

func TestLearnRejectsNonFiniteRewards(t *testing.T) {
	env := &constRewardEnv{numEnvs: 2, obsDim: 1, episodeLen: 10, reward: math.NaN()}
	model := newTestModel(t, env, DefaultConfig(), nil)

	err := model.Learn(context.Background(), 10)
	if !errors.Is(err, core.ErrNumericalFault) {
		t.Fatalf("learn on NaN rewards: got %v, want ErrNumericalFault", err)
	}
}

func TestLearnRejectsBadBudget(t *testing.T) {
	env := &constRewardEnv{numEnvs: 2, obsDim: 1, episodeLen: 10, reward: 1}
	model := newTestModel(t, env, DefaultConfig(), nil)
	if err := model.Learn(context.Background(), 0); !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("zero budget: got %v, want ErrInvalidConfig", err)
	}
}

// TestDiscountedReturnBounds runs the collect/estimate half of the loop
// with a zero-value actor, so every return is a pure discounted sum of
// the constant rewards and must stay inside (0, 1/(1-gamma)].
func TestDiscountedReturnBounds(t *testing.T) {
	env := &constRewardEnv{numEnvs: 4, obsDim: 2, episodeLen: 10, reward: 1}
	buf, err := buffer.NewRollout(5, 4, 2)
	if err != nil {
		t.Fatalf("new rollout: %v", err)
	}
	col, err := collector.NewOnPolicy(env, zeroActor{}, buf, erand.New(erand.NewSource(1)), nil)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	est, err := gae.NewEstimator(0.99, 0.95)
	if err != nil {
		t.Fatalf("new estimator: %v", err)
	}

	bound := 1 / (1 - 0.99)
	for rollout := 0; rollout < 2; rollout++ {
		if _, err := col.Collect(); err != nil {
			t.Fatalf("collect %d: %v", rollout, err)
		}
		_, returns, err := est.Estimate(buf)
		if err != nil {
			t.Fatalf("estimate %d: %v", rollout, err)
		}
		for i, r := range returns {
			if r <= 0 || r > bound+1e-9 {
				t.Errorf("rollout %d return[%d] = %v outside (0, %v]", rollout, i, r, bound)
			}
		}
	}

	// Episodes are 10 steps long and rollouts 5, so the first episode
	// boundary lands on the last timestep of the second rollout.
	for i, d := range buf.DonesAt(4) {
		if d != 1 {
			t.Errorf("env %d done flag at the episode boundary = %v, want 1", i, d)
		}
	}
	for t2 := 0; t2 < 4; t2++ {
		for i, d := range buf.DonesAt(t2) {
			if d != 0 {
				t.Errorf("env %d spurious done at timestep %d", i, t2)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()

	cases := []struct {
		name    string
		mutate  func(*Config)
		numEnvs int
	}{
		{"zero rollout", func(c *Config) { c.RolloutLen = 0 }, 4},
		{"zero envs", func(c *Config) {}, 0},
		{"gamma above one", func(c *Config) { c.Gamma = 1.5 }, 4},
		{"negative lambda", func(c *Config) { c.GAELambda = -0.5 }, 4},
		{"zero grad cap", func(c *Config) { c.MaxGradNorm = 0 }, 4},
		{"negative batch", func(c *Config) { c.BatchSize = -1 }, 4},
		{"indivisible batch", func(c *Config) { c.BatchSize = 7 }, 4},
	}
	for _, c := range cases {
		cfg := base
		c.mutate(&cfg)
		if err := cfg.Validate(c.numEnvs); !errors.Is(err, core.ErrInvalidConfig) {
			t.Errorf("%s: got %v, want ErrInvalidConfig", c.name, err)
		}
	}

	cfg := base
	cfg.BatchSize = 10
	if err := cfg.Validate(4); err != nil {
		t.Errorf("batch 10 over 20 transitions: unexpected error %v", err)
	}
}

func TestNormalizeAdvantage(t *testing.T) {
	adv := []float64{1, 2, 3, 4, 5}
	normalize(adv)
	sum := 0.0
	for _, v := range adv {
		sum += v
	}
	if math.Abs(sum) > 1e-9 {
		t.Errorf("normalized mean = %v, want 0", sum/5)
	}

	flat := []float64{2, 2, 2}
	normalize(flat)
	for i, v := range flat {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("constant advantages produced non-finite value at %d: %v", i, v)
		}
	}
}
