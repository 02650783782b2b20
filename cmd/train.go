package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	erand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"

	"vecrl/a2c"
	"vecrl/core"
	"vecrl/envs/cartpole"
	"vecrl/loggers"
	"vecrl/monitor"
	"vecrl/policy"
	"vecrl/runner"
	"vecrl/vecenv"
)

func TrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train an A2C agent on cartpole across one or more seeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return train(cmd.Context())
		},
	}
}

func train(ctx context.Context) error {
	base := baseSeed()
	ms := &runner.MultiSeed{
		Runs:        numRuns,
		Parallelism: parallelism,
		BaseSeed:    base,
		Run:         singleRun,
	}
	results := ms.Execute(ctx)

	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			fmt.Printf("run %d (seed %d): error: %v\n", r.Index, r.Seed, r.Err)
			continue
		}
		fmt.Printf("run %d (seed %d): score %.3f\n", r.Index, r.Seed, r.Score)
		scores = append(scores, r.Score)
	}
	if len(scores) == 0 {
		return fmt.Errorf("all %d runs failed", len(results))
	}
	mean, std := stat.MeanStdDev(scores, nil)
	if len(scores) == 1 {
		std = 0
	}
	fmt.Printf("score over %d run(s): %.3f +/- %.3f\n", len(scores), mean, std)
	return nil
}

// singleRun executes one fully isolated training run: its own RNG,
// environment batch, policy, buffer and log directory.
func singleRun(ctx context.Context, run runner.Run, progress io.Writer) (float64, error) {
	dir := filepath.Join(logDir, fmt.Sprintf("run-%d-%s", run.Index, run.ID[:8]))

	callbacks := core.NewCallbacks()

	rolloutLog, err := loggers.NewRolloutLogger(dir)
	if err != nil {
		return 0, err
	}
	defer rolloutLog.Close()
	updateLog, err := loggers.NewUpdateLogger(dir, logInterval)
	if err != nil {
		return 0, err
	}
	defer updateLog.Close()
	callbacks.Register(rolloutLog)
	callbacks.Register(updateLog)
	callbacks.Register(loggers.NewWeightLogger(dir))
	callbacks.Register(loggers.NewGradLogger(dir))
	callbacks.Register(loggers.NewHyperparamLogger(dir))

	if monitorAddr != "" && run.Index == 0 {
		m := monitor.New(monitorAddr, zerolog.New(io.Discard))
		m.Start()
		defer m.Stop(context.Background())
		callbacks.Register(m)
	}

	env, err := vecenv.NewWorkers(cartpole.Constructor(run.Seed*1000), numEnvs)
	if err != nil {
		return 0, err
	}
	defer env.Close()

	rng := erand.New(erand.NewSource(run.Seed))
	pol, err := policy.NewCategorical(env.ObservationSpace(), env.ActionSpace(), policy.Config{
		HiddenSize:   hiddenSize,
		OrthoInit:    orthoInit,
		LearningRate: learningRate,
		AdamEps:      adamEps,
	}, rng)
	if err != nil {
		return 0, err
	}

	cfg := a2c.Config{
		RolloutLen:         rolloutLen,
		Gamma:              gamma,
		GAELambda:          gaeLambda,
		EntCoef:            entCoef,
		ValCoef:            valCoef,
		MaxGradNorm:        maxGradNorm,
		BatchSize:          batchSize,
		NormalizeAdvantage: normalizeAdv,
	}
	model, err := a2c.New(env, pol, cfg, rng, callbacks)
	if err != nil {
		return 0, err
	}
	model.RunID = run.ID[:8]
	model.Progress = progress

	if err := model.Learn(ctx, totalTimesteps); err != nil {
		return 0, err
	}
	return loggers.Score(dir)
}
