package loggers

import (
	"math"
	"path/filepath"
	"testing"

	"vecrl/core"
	"vecrl/util"
)

func TestRolloutLogRoundTripsThroughScore(t *testing.T) {
	dir := t.TempDir()
	l, err := NewRolloutLogger(dir)
	if err != nil {
		t.Fatalf("new rollout logger: %v", err)
	}

	// One rollout with no finished episodes, then two with episodes.
	l.OnRolloutEnd(&core.RolloutEndEvent{Timesteps: 40, MeanValue: 0.1})
	l.OnRolloutEnd(&core.RolloutEndEvent{
		Timesteps:      80,
		EpisodeRewards: []float64{10, 20},
		EpisodeLengths: []int{10, 20},
		MeanValue:      0.2,
	})
	l.OnRolloutEnd(&core.RolloutEndEvent{
		Timesteps:      120,
		EpisodeRewards: []float64{30},
		EpisodeLengths: []int{30},
		MeanValue:      0.3,
	})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	score, err := Score(dir)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// Entries without episodes contribute nothing; the rest average their
	// per-rollout episode reward means: (15 + 30) / 2.
	if math.Abs(score-22.5) > 1e-9 {
		t.Errorf("score = %v, want 22.5", score)
	}
}

func TestScoreFailsWithoutEpisodes(t *testing.T) {
	dir := t.TempDir()
	l, err := NewRolloutLogger(dir)
	if err != nil {
		t.Fatalf("new rollout logger: %v", err)
	}
	l.OnRolloutEnd(&core.RolloutEndEvent{Timesteps: 40})
	l.Close()

	if _, err := Score(dir); err == nil {
		t.Errorf("score over a log with no episodes succeeded")
	}
}

func TestUpdateLoggerHonorsInterval(t *testing.T) {
	dir := t.TempDir()
	l, err := NewUpdateLogger(dir, 3)
	if err != nil {
		t.Fatalf("new update logger: %v", err)
	}
	for i := 1; i <= 7; i++ {
		l.OnUpdateEnd(&core.UpdateEndEvent{Iteration: i, Timesteps: i * 10, Loss: float64(i)})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries, err := util.ReadJsonLines(filepath.Join(dir, "train.jsonl"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("logged entries = %d, want 2 (iterations 3 and 6)", len(entries))
	}
	if got := entries[0]["iteration"].(float64); got != 3 {
		t.Errorf("first logged iteration = %v, want 3", got)
	}
	if got := entries[1]["timesteps"].(float64); got != 60 {
		t.Errorf("second logged timesteps = %v, want 60", got)
	}
}

func TestHyperparamLoggerWritesFingerprint(t *testing.T) {
	dir := t.TempDir()
	l := NewHyperparamLogger(dir)
	params := map[string]interface{}{"gamma": 0.995, "n_envs": 8}
	l.OnTrainStart(&core.TrainStartEvent{RunID: "abc", Hyperparams: params})

	entries, err := util.ReadJsonLines(filepath.Join(dir, "hyperparams.json"))
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("dump entries = %d, want 1", len(entries))
	}
	if entries[0]["run_id"] != "abc" {
		t.Errorf("run_id = %v, want abc", entries[0]["run_id"])
	}
	if entries[0]["fingerprint"] != util.JsonHash(params) {
		t.Errorf("fingerprint does not match the hash of the values")
	}
}
