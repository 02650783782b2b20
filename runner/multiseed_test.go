package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
)

func TestExecuteRunsEverySeedOnce(t *testing.T) {
	var mu sync.Mutex
	seen := map[uint64]int{}

	ms := &MultiSeed{
		Runs:        5,
		Parallelism: 3,
		BaseSeed:    100,
		Run: func(ctx context.Context, run Run, progress io.Writer) (float64, error) {
			mu.Lock()
			seen[run.Seed]++
			mu.Unlock()
			return float64(run.Index) * 10, nil
		},
	}
	results := ms.Execute(context.Background())

	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("result %d has index %d; results must be ordered by run index", i, r.Index)
		}
		if r.Seed != 100+uint64(i) {
			t.Errorf("run %d seed = %d, want %d", i, r.Seed, 100+uint64(i))
		}
		if r.Err != nil {
			t.Errorf("run %d failed: %v", i, r.Err)
		}
		if r.Score != float64(i)*10 {
			t.Errorf("run %d score = %v, want %v", i, r.Score, float64(i)*10)
		}
		if r.ID == "" {
			t.Errorf("run %d has no ID", i)
		}
	}
	for seed, n := range seen {
		if n != 1 {
			t.Errorf("seed %d executed %d times", seed, n)
		}
	}
}

func TestExecuteKeepsFailuresInPlace(t *testing.T) {
	boom := errors.New("diverged")
	ms := &MultiSeed{
		Runs:        3,
		Parallelism: 1,
		BaseSeed:    1,
		Run: func(ctx context.Context, run Run, progress io.Writer) (float64, error) {
			if run.Index == 1 {
				return 0, boom
			}
			return 1, nil
		},
	}
	results := ms.Execute(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("run 1 error = %v, want the run's own failure", results[1].Err)
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("a failing run affected its siblings: %v, %v", results[0].Err, results[2].Err)
	}
}

func TestExecuteStopsQueueingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := 0
	ms := &MultiSeed{
		Runs:        4,
		Parallelism: 2,
		BaseSeed:    1,
		Run: func(ctx context.Context, run Run, progress io.Writer) (float64, error) {
			ran++
			return 0, nil
		},
	}
	results := ms.Execute(ctx)
	if len(results) != 0 || ran != 0 {
		t.Errorf("cancelled execute queued %d runs and returned %d results, want none", ran, len(results))
	}
}

func TestExecuteDefaultsParallelism(t *testing.T) {
	ms := &MultiSeed{
		Runs:     2,
		BaseSeed: 1,
		Run: func(ctx context.Context, run Run, progress io.Writer) (float64, error) {
			return 1, nil
		},
	}
	results := ms.Execute(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
}
