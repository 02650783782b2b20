package core

import "gonum.org/v1/gonum/mat"

// Info carries per-environment step metadata. Episode fields are only
// populated on the step where the environment reported done.
type Info struct {
	// Episode is true when this step ended an episode.
	Episode bool
	// EpisodeReward is the undiscounted reward sum of the finished episode.
	EpisodeReward float64
	// EpisodeLength is the number of steps of the finished episode.
	EpisodeLength int
	// TerminalObservation is the true final observation of the finished
	// episode. The observation returned by Step is already the reset one.
	TerminalObservation []float64
}

// Env is a single environment instance.
type Env interface {
	Reset() ([]float64, error)
	// Step advances the environment by one action and returns the next
	// observation, the reward and whether the episode terminated.
	Step(action int) ([]float64, float64, bool, error)
	ObservationSpace() Space
	ActionSpace() Space
	Close() error
}

// EnvConstructor builds the i-th environment instance of a batch.
type EnvConstructor interface {
	NewEnv(int) (Env, error)
}

// VecEnv advances N environment instances in lockstep. Batch order and
// size are preserved across calls: row i always belongs to instance i.
//
// Implementations auto-reset an instance whose episode terminated; the
// returned observation row is then the first observation of the next
// episode and Info carries the terminal statistics.
type VecEnv interface {
	// Reset resets all instances and returns an N x obsDim matrix.
	Reset() (*mat.Dense, error)
	// Step applies one action per instance and blocks until every
	// instance has produced its result.
	Step(actions []int) (*mat.Dense, []float64, []bool, []Info, error)
	NumEnvs() int
	ObservationSpace() Space
	ActionSpace() Space
	Close() error
}

// EnvConstructorFunc adapts a function to the EnvConstructor interface.
type EnvConstructorFunc func(int) (Env, error)

func (f EnvConstructorFunc) NewEnv(i int) (Env, error) {
	return f(i)
}
