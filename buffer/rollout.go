// Package buffer holds the fixed-capacity rollout grid that the collector
// fills and the estimator/trainer read. The grid is allocated once and
// overwritten in place every rollout; it never grows.
package buffer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"vecrl/core"
)

// ErrIncomplete is returned when a rollout is read before every timestep
// slot of the current fill cycle was overwritten. Like an overrun, it
// indicates a driver bug and is fatal.
var ErrIncomplete = errors.New("rollout read before every slot was written")

// Rollout is a (T+1) x N transition grid: T action timesteps plus one
// bootstrap slot holding only the final observation and value. Slot (t, i)
// lives at row t*N+i.
//
// Ownership: the collector is the only writer during a fill; afterwards
// the estimator and trainer treat the grid as read-only.
type Rollout struct {
	rolloutLen int // T
	numEnvs    int // N
	obsDim     int
	capacity   int // T+1 timesteps

	observations *mat.Dense
	actions      []int
	rewards      []float64
	values       []float64
	logProbs     []float64
	dones        []float64 // 1 where the episode ended, else 0

	// written tracks which timesteps of the current fill cycle have been
	// overwritten, so stale data from the previous rollout can never be
	// read through a miscomputed index.
	written []bool
	last    int // most recently written timestep, -1 before any write
}

// NewRollout allocates a buffer for rollouts of length rolloutLen across
// numEnvs environments with obsDim-wide observations.
func NewRollout(rolloutLen, numEnvs, obsDim int) (*Rollout, error) {
	if rolloutLen <= 0 {
		return nil, fmt.Errorf("%w: rollout length %d", core.ErrInvalidConfig, rolloutLen)
	}
	if numEnvs <= 0 {
		return nil, fmt.Errorf("%w: environment count %d", core.ErrInvalidConfig, numEnvs)
	}
	if obsDim <= 0 {
		return nil, fmt.Errorf("%w: observation dim %d", core.ErrInvalidConfig, obsDim)
	}
	capacity := rolloutLen + 1
	slots := capacity * numEnvs
	return &Rollout{
		rolloutLen:   rolloutLen,
		numEnvs:      numEnvs,
		obsDim:       obsDim,
		capacity:     capacity,
		observations: mat.NewDense(slots, obsDim, nil),
		actions:      make([]int, slots),
		rewards:      make([]float64, slots),
		values:       make([]float64, slots),
		logProbs:     make([]float64, slots),
		dones:        make([]float64, slots),
		written:      make([]bool, capacity),
		last:         -1,
	}, nil
}

func (r *Rollout) RolloutLen() int { return r.rolloutLen }
func (r *Rollout) NumEnvs() int    { return r.numEnvs }
func (r *Rollout) ObsDim() int     { return r.obsDim }

// Reset begins a new fill cycle. Storage is reused, not cleared; the
// written mask is what guarantees no stale slot is ever read.
func (r *Rollout) Reset() {
	for t := range r.written {
		r.written[t] = false
	}
	r.last = -1
}

// Add writes one timestep's transitions for all environments. The
// observation is the pre-step one; reward, done, value and logProb belong
// to the action taken from it.
func (r *Rollout) Add(t int, obs *mat.Dense, actions []int, rewards []float64, dones []bool, values, logProbs []float64) error {
	if t < 0 || t >= r.capacity {
		return fmt.Errorf("%w: timestep %d, capacity %d", core.ErrBufferOverrun, t, r.capacity)
	}
	if err := r.checkShape(obs, len(actions), len(rewards), len(dones), len(values), len(logProbs)); err != nil {
		return err
	}
	base := t * r.numEnvs
	for i := 0; i < r.numEnvs; i++ {
		r.observations.SetRow(base+i, obs.RawRowView(i))
		r.actions[base+i] = actions[i]
		r.rewards[base+i] = rewards[i]
		r.values[base+i] = values[i]
		r.logProbs[base+i] = logProbs[i]
		if dones[i] {
			r.dones[base+i] = 1
		} else {
			r.dones[base+i] = 0
		}
	}
	r.written[t] = true
	if t > r.last {
		r.last = t
	}
	return nil
}

// AddBootstrap writes the final observation and its value estimate into
// slot T. The bootstrap slot carries no action, reward or done flag.
func (r *Rollout) AddBootstrap(obs *mat.Dense, values []float64) error {
	t := r.capacity - 1
	if rows, cols := obs.Dims(); rows != r.numEnvs || cols != r.obsDim {
		return fmt.Errorf("%w: bootstrap observation %dx%d, want %dx%d",
			core.ErrEnvironmentFault, rows, cols, r.numEnvs, r.obsDim)
	}
	if len(values) != r.numEnvs {
		return fmt.Errorf("%w: %d bootstrap values for %d environments",
			core.ErrEnvironmentFault, len(values), r.numEnvs)
	}
	base := t * r.numEnvs
	for i := 0; i < r.numEnvs; i++ {
		r.observations.SetRow(base+i, obs.RawRowView(i))
		r.actions[base+i] = 0
		r.rewards[base+i] = 0
		r.values[base+i] = values[i]
		r.logProbs[base+i] = 0
		r.dones[base+i] = 0
	}
	r.written[t] = true
	if t > r.last {
		r.last = t
	}
	return nil
}

// Full reports whether every timestep of the current cycle, bootstrap
// included, has been written.
func (r *Rollout) Full() bool {
	for _, w := range r.written {
		if !w {
			return false
		}
	}
	return true
}

// CheckComplete is the read-side guard of the overwrite invariant.
func (r *Rollout) CheckComplete() error {
	for t, w := range r.written {
		if !w {
			return fmt.Errorf("%w: timestep %d", ErrIncomplete, t)
		}
	}
	return nil
}

// Last* return the field row of the most recently written timestep.

func (r *Rollout) LastObservations() *mat.Dense {
	out := mat.NewDense(r.numEnvs, r.obsDim, nil)
	base := r.last * r.numEnvs
	for i := 0; i < r.numEnvs; i++ {
		out.SetRow(i, r.observations.RawRowView(base+i))
	}
	return out
}

func (r *Rollout) LastActions() []int {
	base := r.last * r.numEnvs
	out := make([]int, r.numEnvs)
	copy(out, r.actions[base:base+r.numEnvs])
	return out
}

func (r *Rollout) LastRewards() []float64  { return r.copyAt(r.rewards, r.last) }
func (r *Rollout) LastValues() []float64   { return r.copyAt(r.values, r.last) }
func (r *Rollout) LastLogProbs() []float64 { return r.copyAt(r.logProbs, r.last) }
func (r *Rollout) LastDones() []float64    { return r.copyAt(r.dones, r.last) }

// *At return the stored row for timestep t. The returned slices alias the
// buffer's storage and must be treated as read-only.

func (r *Rollout) RewardsAt(t int) []float64 { return r.sliceAt(r.rewards, t) }
func (r *Rollout) ValuesAt(t int) []float64  { return r.sliceAt(r.values, t) }
func (r *Rollout) DonesAt(t int) []float64   { return r.sliceAt(r.dones, t) }

// TrainObservations returns the observations of the T action timesteps as
// a (T*N) x obsDim matrix, excluding the bootstrap slot.
func (r *Rollout) TrainObservations() *mat.Dense {
	n := r.rolloutLen * r.numEnvs
	return r.observations.Slice(0, n, 0, r.obsDim).(*mat.Dense)
}

// TrainActions returns the actions of the T action timesteps. The slice
// aliases the buffer's storage.
func (r *Rollout) TrainActions() []int {
	return r.actions[:r.rolloutLen*r.numEnvs]
}

// TrainValues returns the values recorded at sampling time for the T
// action timesteps.
func (r *Rollout) TrainValues() []float64 {
	return r.values[:r.rolloutLen*r.numEnvs]
}

func (r *Rollout) copyAt(field []float64, t int) []float64 {
	out := make([]float64, r.numEnvs)
	copy(out, r.sliceAt(field, t))
	return out
}

func (r *Rollout) sliceAt(field []float64, t int) []float64 {
	base := t * r.numEnvs
	return field[base : base+r.numEnvs]
}

func (r *Rollout) checkShape(obs *mat.Dense, nActions, nRewards, nDones, nValues, nLogProbs int) error {
	if rows, cols := obs.Dims(); rows != r.numEnvs || cols != r.obsDim {
		return fmt.Errorf("%w: observation batch %dx%d, want %dx%d",
			core.ErrEnvironmentFault, rows, cols, r.numEnvs, r.obsDim)
	}
	for _, n := range []int{nActions, nRewards, nDones, nValues, nLogProbs} {
		if n != r.numEnvs {
			return fmt.Errorf("%w: field length %d, want %d", core.ErrEnvironmentFault, n, r.numEnvs)
		}
	}
	return nil
}
