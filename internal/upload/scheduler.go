package upload

import (
	"context"
	"sync"

	"github.com/raceshot/uploader/pkg/models"
)

// Scheduler fans tasks out to a bounded pool of executor goroutines and
// streams completed results tagged with their original indices. Admission is
// dynamic: a worker picks up the next pending unit as soon as it finishes
// its current one, so fast tasks never starve behind slow ones.
type Scheduler struct {
	exec        *Executor
	concurrency int
	batchSize   int
}

func NewScheduler(exec *Executor, concurrency, batchSize int) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Scheduler{exec: exec, concurrency: concurrency, batchSize: batchSize}
}

// unit is one admission: a run of consecutive tasks starting at a given
// original index. With batchSize 1 every unit holds a single task.
type unit struct {
	start int
	tasks []models.UploadTask
}

// Run starts the pool and returns the result stream. The channel is closed
// once every admitted task has produced a result. When ctx is cancelled the
// scheduler stops admitting; tasks never admitted simply never appear on the
// stream and the aggregator accounts for them as cancelled.
func (s *Scheduler) Run(ctx context.Context, tasks []models.UploadTask) <-chan models.IndexedResult {
	results := make(chan models.IndexedResult)
	jobs := make(chan unit)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				if len(u.tasks) == 1 {
					r := s.exec.Execute(ctx, u.tasks[0])
					results <- models.IndexedResult{Index: u.start, Result: r}
					continue
				}
				for j, r := range s.exec.ExecuteBatch(ctx, u.tasks) {
					results <- models.IndexedResult{Index: u.start + j, Result: r}
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, u := range chunk(tasks, s.batchSize) {
			select {
			case <-ctx.Done():
				return
			case jobs <- u:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

func chunk(tasks []models.UploadTask, size int) []unit {
	var units []unit
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		units = append(units, unit{start: start, tasks: tasks[start:end]})
	}
	return units
}
