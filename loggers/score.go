package loggers

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"vecrl/util"
)

// scoreWindow is the number of trailing rollout entries the score averages
// over.
const scoreWindow = 100

// Score derives a run's final scalar score from its rollout log: the mean
// episode reward over the last scoreWindow logged rollouts that finished
// at least one episode.
func Score(dir string) (float64, error) {
	entries, err := util.ReadJsonLines(fmt.Sprintf("%s/%s", dir, rolloutLogName))
	if err != nil {
		return 0, err
	}

	var rewards []float64
	for _, entry := range entries {
		if v, ok := entry["episode_reward_mean"].(float64); ok {
			rewards = append(rewards, v)
		}
	}
	if len(rewards) == 0 {
		return 0, fmt.Errorf("no finished episodes logged under %s", dir)
	}
	tail := rewards[len(rewards)-util.MinInt(scoreWindow, len(rewards)):]
	return stat.Mean(tail, nil), nil
}
