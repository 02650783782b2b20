// Package loggers contains the logging callbacks a training run registers:
// JSON-line rollout and update logs, weight/gradient snapshots and the
// hyperparameter dump. All of them are synchronous handlers on the typed
// callback events; none of them return anything into the training loop.
package loggers

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"vecrl/core"
	"vecrl/util"
)

const (
	rolloutLogName = "rollout.jsonl"
	updateLogName  = "train.jsonl"
	weightsName    = "weights.json"
	gradsName      = "grads.json"
	hyperName      = "hyperparams.json"
)

// RolloutLogger appends one JSON line per rollout with episode statistics.
type RolloutLogger struct {
	file   *os.File
	logger zerolog.Logger
}

var _ core.RolloutEndHandler = &RolloutLogger{}

func NewRolloutLogger(dir string) (*RolloutLogger, error) {
	file, err := openLog(dir, rolloutLogName)
	if err != nil {
		return nil, err
	}
	return &RolloutLogger{
		file:   file,
		logger: zerolog.New(file).With().Timestamp().Logger(),
	}, nil
}

func (l *RolloutLogger) OnRolloutEnd(e *core.RolloutEndEvent) {
	ev := l.logger.Info().
		Int("timesteps", e.Timesteps).
		Int("episodes", len(e.EpisodeRewards)).
		Float64("mean_value", e.MeanValue)
	if len(e.EpisodeRewards) > 0 {
		lengths := make([]float64, len(e.EpisodeLengths))
		for i, n := range e.EpisodeLengths {
			lengths[i] = float64(n)
		}
		ev = ev.
			Float64("episode_reward_mean", stat.Mean(e.EpisodeRewards, nil)).
			Float64("episode_length_mean", stat.Mean(lengths, nil))
	}
	ev.Msg("rollout")
}

func (l *RolloutLogger) Close() error {
	return l.file.Close()
}

// UpdateLogger appends one JSON line every Interval updates with the loss
// decomposition and gradient norms.
type UpdateLogger struct {
	Interval int

	file   *os.File
	logger zerolog.Logger
}

var _ core.UpdateEndHandler = &UpdateLogger{}

func NewUpdateLogger(dir string, interval int) (*UpdateLogger, error) {
	if interval <= 0 {
		interval = 1
	}
	file, err := openLog(dir, updateLogName)
	if err != nil {
		return nil, err
	}
	return &UpdateLogger{
		Interval: interval,
		file:     file,
		logger:   zerolog.New(file).With().Timestamp().Logger(),
	}, nil
}

func (l *UpdateLogger) OnUpdateEnd(e *core.UpdateEndEvent) {
	if e.Iteration%l.Interval != 0 {
		return
	}
	l.logger.Info().
		Int("iteration", e.Iteration).
		Int("timesteps", e.Timesteps).
		Float64("loss", e.Loss).
		Float64("policy_loss", e.PolicyLoss).
		Float64("value_loss", e.ValueLoss).
		Float64("entropy", e.Entropy).
		Float64("grad_norm", e.GradNorm).
		Float64("raw_grad_norm", e.RawGradNorm).
		Msg("update")
}

func (l *UpdateLogger) Close() error {
	return l.file.Close()
}

// WeightLogger overwrites a snapshot of every parameter tensor after each
// update.
type WeightLogger struct {
	path string
}

var _ core.UpdateEndHandler = &WeightLogger{}

func NewWeightLogger(dir string) *WeightLogger {
	return &WeightLogger{path: filepath.Join(dir, weightsName)}
}

func (l *WeightLogger) OnUpdateEnd(e *core.UpdateEndEvent) {
	util.SaveJson(l.path, e.Weights)
}

// GradLogger overwrites a snapshot of the last update's gradients.
type GradLogger struct {
	path string
}

var _ core.UpdateEndHandler = &GradLogger{}

func NewGradLogger(dir string) *GradLogger {
	return &GradLogger{path: filepath.Join(dir, gradsName)}
}

func (l *GradLogger) OnUpdateEnd(e *core.UpdateEndEvent) {
	util.SaveJson(l.path, e.Grads)
}

// HyperparamLogger dumps the run's configuration surface once at train
// start, tagged with a fingerprint of the values.
type HyperparamLogger struct {
	path string
}

var _ core.TrainStartHandler = &HyperparamLogger{}

func NewHyperparamLogger(dir string) *HyperparamLogger {
	return &HyperparamLogger{path: filepath.Join(dir, hyperName)}
}

func (l *HyperparamLogger) OnTrainStart(e *core.TrainStartEvent) {
	dump := map[string]interface{}{
		"run_id":      e.RunID,
		"fingerprint": util.JsonHash(e.Hyperparams),
		"values":      e.Hyperparams,
	}
	util.SaveJson(l.path, dump)
}

func openLog(dir, name string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}
