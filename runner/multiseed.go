// Package runner executes several independent training runs, each with
// its own seed, over a bounded worker pool. Runs share nothing: every run
// owns its policy, buffer, collector and environment batch.
package runner

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vecrl/util"
)

// Run identifies one training run of a multi-seed experiment.
type Run struct {
	ID    string
	Index int
	Seed  uint64
}

// Result is the outcome of one run.
type Result struct {
	Run
	Score float64
	Err   error
}

// RunFunc executes a single run and returns its final score. The progress
// writer is the run's live terminal line.
type RunFunc func(ctx context.Context, run Run, progress io.Writer) (float64, error)

// MultiSeed fans Runs runs out over Parallelism workers. Seeds are
// BaseSeed, BaseSeed+1, ... so experiments stay reproducible.
type MultiSeed struct {
	Runs        int
	Parallelism int
	BaseSeed    uint64
	Run         RunFunc
}

type work struct {
	run      Run
	progress io.Writer
}

// Execute runs everything and returns one result per run, ordered by run
// index. A cancelled context stops handing out new runs; runs already in
// flight return their own context errors.
func (m *MultiSeed) Execute(ctx context.Context) []Result {
	parallelism := m.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	if parallelism > m.Runs {
		parallelism = m.Runs
	}

	printer := util.NewTerminalPrinter(500 * time.Millisecond)

	workCh := make(chan work, m.Runs)
	resultsCh := make(chan Result, m.Runs)

	var wg sync.WaitGroup
	for i := 0; i < parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				score, err := m.Run(ctx, w.run, w.progress)
				resultsCh <- Result{Run: w.run, Score: score, Err: err}
			}
		}()
	}

	queued := 0
	for i := 0; i < m.Runs; i++ {
		select {
		case <-ctx.Done():
		default:
			workCh <- work{
				run: Run{
					ID:    uuid.NewString(),
					Index: i,
					Seed:  m.BaseSeed + uint64(i),
				},
				progress: printer.NewOutput(),
			}
			queued++
		}
	}
	close(workCh)

	printer.Start(ctx)
	wg.Wait()
	printer.Stop()
	close(resultsCh)

	results := make([]Result, 0, queued)
	for r := range resultsCh {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	return results
}
