// Package vecenv runs N environment instances as independent workers
// advanced in lockstep. Stepping is synchronous-batched: a Step call
// blocks until every worker has returned its result for the timestep, so
// all instances share the same logical clock.
package vecenv

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"vecrl/core"
)

type request struct {
	reset  bool
	action int
}

type response struct {
	idx    int
	obs    []float64
	reward float64
	done   bool
	info   core.Info
	err    error
}

// Workers is the VecEnv implementation: one goroutine per environment
// instance, batched actions fanned out over per-worker channels, results
// gathered on a shared channel and reordered by instance index.
//
// A worker whose episode ends resets its environment immediately and
// returns the fresh observation; the true terminal observation and the
// episode statistics travel in the Info.
type Workers struct {
	n        int
	obsSpace core.Space
	actSpace core.Space

	reqChs []chan request
	respCh chan response
	wg     sync.WaitGroup
	closed bool
}

var _ core.VecEnv = &Workers{}

// NewWorkers constructs n environment instances and starts their workers.
func NewWorkers(ctor core.EnvConstructor, n int) (*Workers, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: environment count %d", core.ErrInvalidConfig, n)
	}
	envs := make([]core.Env, n)
	for i := 0; i < n; i++ {
		env, err := ctor.NewEnv(i)
		if err != nil {
			for j := 0; j < i; j++ {
				envs[j].Close()
			}
			return nil, fmt.Errorf("%w: constructing instance %d: %v", core.ErrEnvironmentFault, i, err)
		}
		envs[i] = env
	}

	obsSpace := envs[0].ObservationSpace()
	actSpace := envs[0].ActionSpace()
	for i, env := range envs {
		if env.ObservationSpace() != obsSpace || env.ActionSpace() != actSpace {
			for _, e := range envs {
				e.Close()
			}
			return nil, fmt.Errorf("%w: instance %d disagrees on spaces", core.ErrInvalidConfig, i)
		}
	}

	w := &Workers{
		n:        n,
		obsSpace: obsSpace,
		actSpace: actSpace,
		reqChs:   make([]chan request, n),
		respCh:   make(chan response, n),
	}
	for i := 0; i < n; i++ {
		w.reqChs[i] = make(chan request)
		w.wg.Add(1)
		go w.work(i, envs[i])
	}
	return w, nil
}

func (w *Workers) work(idx int, env core.Env) {
	defer w.wg.Done()
	defer env.Close()

	episodeReward := 0.0
	episodeLength := 0
	for req := range w.reqChs[idx] {
		if req.reset {
			obs, err := env.Reset()
			episodeReward, episodeLength = 0, 0
			w.respCh <- response{idx: idx, obs: obs, err: err}
			continue
		}

		obs, reward, done, err := env.Step(req.action)
		if err != nil {
			w.respCh <- response{idx: idx, err: err}
			continue
		}
		episodeReward += reward
		episodeLength++

		resp := response{idx: idx, obs: obs, reward: reward, done: done}
		if done {
			resp.info = core.Info{
				Episode:             true,
				EpisodeReward:       episodeReward,
				EpisodeLength:       episodeLength,
				TerminalObservation: obs,
			}
			resp.obs, resp.err = env.Reset()
			episodeReward, episodeLength = 0, 0
		}
		w.respCh <- resp
	}
}

func (w *Workers) NumEnvs() int                 { return w.n }
func (w *Workers) ObservationSpace() core.Space { return w.obsSpace }
func (w *Workers) ActionSpace() core.Space      { return w.actSpace }

// Reset resets every instance and returns the stacked observation batch.
func (w *Workers) Reset() (*mat.Dense, error) {
	for _, ch := range w.reqChs {
		ch <- request{reset: true}
	}
	obs, _, _, _, err := w.gather()
	return obs, err
}

// Step fans the action batch out to the workers and blocks until all n
// results are in. Row order always matches instance order regardless of
// worker completion order.
func (w *Workers) Step(actions []int) (*mat.Dense, []float64, []bool, []core.Info, error) {
	if len(actions) != w.n {
		return nil, nil, nil, nil, fmt.Errorf("%w: %d actions for %d environments",
			core.ErrEnvironmentFault, len(actions), w.n)
	}
	for i, ch := range w.reqChs {
		ch <- request{action: actions[i]}
	}
	return w.gather()
}

func (w *Workers) gather() (*mat.Dense, []float64, []bool, []core.Info, error) {
	obs := mat.NewDense(w.n, w.obsSpace.Dim, nil)
	rewards := make([]float64, w.n)
	dones := make([]bool, w.n)
	infos := make([]core.Info, w.n)

	var fault error
	for i := 0; i < w.n; i++ {
		resp := <-w.respCh
		if resp.err != nil {
			if fault == nil {
				fault = fmt.Errorf("%w: instance %d: %v", core.ErrEnvironmentFault, resp.idx, resp.err)
			}
			continue
		}
		if len(resp.obs) != w.obsSpace.Dim {
			if fault == nil {
				fault = fmt.Errorf("%w: instance %d returned observation of length %d, want %d",
					core.ErrEnvironmentFault, resp.idx, len(resp.obs), w.obsSpace.Dim)
			}
			continue
		}
		obs.SetRow(resp.idx, resp.obs)
		rewards[resp.idx] = resp.reward
		dones[resp.idx] = resp.done
		infos[resp.idx] = resp.info
	}
	if fault != nil {
		return nil, nil, nil, nil, fault
	}
	return obs, rewards, dones, infos, nil
}

// Close stops the workers and closes the underlying environments.
func (w *Workers) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	for _, ch := range w.reqChs {
		close(ch)
	}
	w.wg.Wait()
	return nil
}
