package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	numEnvs        int
	rolloutLen     int
	batchSize      int
	gaeLambda      float64
	learningRate   float64
	gamma          float64
	entCoef        float64
	valCoef        float64
	adamEps        float64
	maxGradNorm    float64
	totalTimesteps int
	hiddenSize     int
	orthoInit      bool
	normalizeAdv   bool
	logInterval    int
	logDir         string
	seed           uint64
	numRuns        int
	parallelism    int
	monitorAddr    string
)

func AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().IntVar(&numEnvs, "n-envs", 8, "Number of parallel environments")
	cmd.PersistentFlags().IntVar(&rolloutLen, "n-steps", 5, "Rollout length")
	cmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0, "Batch size of a parameter update (0 = full rollout)")
	cmd.PersistentFlags().Float64Var(&gaeLambda, "gae-lambda", 1.0, "GAE coefficient")
	cmd.PersistentFlags().Float64Var(&learningRate, "lr", 0.00083, "Learning rate")
	cmd.PersistentFlags().Float64Var(&gamma, "gamma", 0.995, "Discount factor")
	cmd.PersistentFlags().Float64Var(&entCoef, "ent-coef", 0.05, "Entropy coefficient")
	cmd.PersistentFlags().Float64Var(&valCoef, "val-coef", 0.25, "Value loss coefficient")
	cmd.PersistentFlags().Float64Var(&adamEps, "adam-eps", 1e-5, "Adam epsilon")
	cmd.PersistentFlags().Float64Var(&maxGradNorm, "max-grad-norm", 0.5, "Maximum allowed gradient norm")
	cmd.PersistentFlags().IntVar(&totalTimesteps, "total-timesteps", 400000, "Training length in cumulative environment timesteps")
	cmd.PersistentFlags().IntVar(&hiddenSize, "hidden-size", 128, "Hidden size of the policy")
	cmd.PersistentFlags().BoolVar(&orthoInit, "ortho-init", false, "Use orthogonal initialization in the policy")
	cmd.PersistentFlags().BoolVar(&normalizeAdv, "normalize-advantage", false, "Normalize advantages within each update batch")
	cmd.PersistentFlags().IntVar(&logInterval, "log-interval", 500, "Logging interval in training iterations")
	cmd.PersistentFlags().StringVar(&logDir, "log-dir", defaultLogDir(), "Logging directory")
	cmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Base seed (0 = derive from time)")
	cmd.PersistentFlags().IntVar(&numRuns, "num-runs", 1, "Number of seeds to run")
	cmd.PersistentFlags().IntVar(&parallelism, "parallelism", 1, "Number of runs executed concurrently")
	cmd.PersistentFlags().StringVar(&monitorAddr, "monitor-addr", "", "Address for the live websocket monitor (empty = disabled)")
}

func defaultLogDir() string {
	return "logs/" + time.Now().Format("20060102-150405")
}

func baseSeed() uint64 {
	if seed != 0 {
		return seed
	}
	return uint64(time.Now().UnixNano())
}
