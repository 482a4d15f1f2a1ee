package upload

import (
	"time"

	"github.com/google/uuid"

	"github.com/raceshot/uploader/pkg/models"
)

// ProgressFunc observes one completed task: how many are done, the run
// total, and the latest result. The aggregator guarantees exactly one call
// per task, including tasks resolved as cancelled at finalization.
type ProgressFunc func(done, total int, result models.UploadResult)

// Aggregator owns the run-wide result set. It consumes the scheduler's
// stream alone, so its state needs no locking: results land in
// index-addressed slots and the final report is always in original
// discovery order regardless of completion order.
type Aggregator struct {
	tasks     []models.UploadTask
	slots     []*models.UploadResult
	done      int
	succeeded int
	failed    int
	progress  ProgressFunc
	startedAt time.Time
}

func NewAggregator(tasks []models.UploadTask, progress ProgressFunc) *Aggregator {
	return &Aggregator{
		tasks:     tasks,
		slots:     make([]*models.UploadResult, len(tasks)),
		progress:  progress,
		startedAt: time.Now(),
	}
}

// Consume drains the result stream until it is closed.
func (a *Aggregator) Consume(results <-chan models.IndexedResult) {
	for ir := range results {
		a.record(ir.Index, ir.Result)
	}
}

func (a *Aggregator) record(index int, result models.UploadResult) {
	if index < 0 || index >= len(a.slots) || a.slots[index] != nil {
		return
	}
	r := result
	a.slots[index] = &r
	a.done++
	if r.Success {
		a.succeeded++
	} else {
		a.failed++
	}
	if a.progress != nil {
		a.progress(a.done, len(a.slots), r)
	}
}

// Finalize fills every unresolved slot with a cancelled failure so each task
// yields exactly one result, then materializes the report. Backfilled slots
// are announced through the progress callback like any other completion.
func (a *Aggregator) Finalize() *models.RunReport {
	for i, slot := range a.slots {
		if slot != nil {
			continue
		}
		a.record(i, models.UploadResult{
			FileName: a.tasks[i].FileName,
			FilePath: a.tasks[i].FilePath,
			Message:  "cancelled before completion",
			Error:    "cancelled before completion",
			Class:    models.ClassCancelled,
		})
	}

	report := &models.RunReport{
		RunID:      uuid.New(),
		StartedAt:  a.startedAt,
		FinishedAt: time.Now(),
		Results:    make([]models.UploadResult, len(a.slots)),
		Succeeded:  a.succeeded,
		Failed:     a.failed,
	}
	for i, slot := range a.slots {
		report.Results[i] = *slot
		if slot.Success {
			report.SuccessList = append(report.SuccessList, slot.FileName)
		} else {
			report.FailureList = append(report.FailureList, slot.FileName)
		}
	}
	return report
}
