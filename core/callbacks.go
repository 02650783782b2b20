package core

// Training emits a fixed set of named events. Handlers are registered per
// event, receive a structured payload, run synchronously and return
// nothing. A handler must not block the hot path; anything expensive
// belongs behind a channel on the handler's side.

// TrainStartEvent is emitted once when Learn begins.
type TrainStartEvent struct {
	RunID          string
	TotalTimesteps int
	NumEnvs        int
	RolloutLen     int
	// Hyperparams is a flat dump of the configuration surface.
	Hyperparams map[string]interface{}
}

// RolloutStepEvent is emitted after every environment step of a rollout.
type RolloutStepEvent struct {
	// Step is the timestep index within the current rollout.
	Step    int
	Rewards []float64
	Dones   []bool
	Infos   []Info
}

// RolloutEndEvent is emitted after a rollout has been fully collected,
// including the bootstrap value query.
type RolloutEndEvent struct {
	// Timesteps is the cumulative environment step count so far.
	Timesteps int
	// EpisodeRewards / EpisodeLengths cover episodes that finished during
	// this rollout, in completion order.
	EpisodeRewards []float64
	EpisodeLengths []int
	// MeanValue is the mean critic estimate over the rollout.
	MeanValue float64
}

// UpdateEndEvent is emitted after each gradient update.
type UpdateEndEvent struct {
	Iteration int
	Timesteps int

	Loss        float64
	PolicyLoss  float64
	ValueLoss   float64
	Entropy     float64
	GradNorm    float64
	RawGradNorm float64

	// Weights and Grads are per-parameter snapshots keyed by layer name,
	// taken after the optimizer step.
	Weights map[string][]float64
	Grads   map[string][]float64
}

type TrainStartHandler interface {
	OnTrainStart(*TrainStartEvent)
}

type RolloutStepHandler interface {
	OnRolloutStep(*RolloutStepEvent)
}

type RolloutEndHandler interface {
	OnRolloutEnd(*RolloutEndEvent)
}

type UpdateEndHandler interface {
	OnUpdateEnd(*UpdateEndEvent)
}

// Callbacks is an ordered registry of event handlers.
type Callbacks struct {
	trainStart  []TrainStartHandler
	rolloutStep []RolloutStepHandler
	rolloutEnd  []RolloutEndHandler
	updateEnd   []UpdateEndHandler
}

func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// Register attaches h to every event family it implements.
func (c *Callbacks) Register(h interface{}) {
	if ts, ok := h.(TrainStartHandler); ok {
		c.trainStart = append(c.trainStart, ts)
	}
	if rs, ok := h.(RolloutStepHandler); ok {
		c.rolloutStep = append(c.rolloutStep, rs)
	}
	if re, ok := h.(RolloutEndHandler); ok {
		c.rolloutEnd = append(c.rolloutEnd, re)
	}
	if ue, ok := h.(UpdateEndHandler); ok {
		c.updateEnd = append(c.updateEnd, ue)
	}
}

func (c *Callbacks) EmitTrainStart(e *TrainStartEvent) {
	if c == nil {
		return
	}
	for _, h := range c.trainStart {
		h.OnTrainStart(e)
	}
}

func (c *Callbacks) EmitRolloutStep(e *RolloutStepEvent) {
	if c == nil {
		return
	}
	for _, h := range c.rolloutStep {
		h.OnRolloutStep(e)
	}
}

func (c *Callbacks) EmitRolloutEnd(e *RolloutEndEvent) {
	if c == nil {
		return
	}
	for _, h := range c.rolloutEnd {
		h.OnRolloutEnd(e)
	}
}

func (c *Callbacks) EmitUpdateEnd(e *UpdateEndEvent) {
	if c == nil {
		return
	}
	for _, h := range c.updateEnd {
		h.OnUpdateEnd(e)
	}
}
