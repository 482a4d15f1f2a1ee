package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raceshot/uploader/pkg/models"
)

func namedTasks(names ...string) []models.UploadTask {
	tasks := make([]models.UploadTask, len(names))
	for i, n := range names {
		tasks[i] = models.UploadTask{FileName: n, FilePath: "/photos/" + n}
	}
	return tasks
}

func TestAggregator_ReportOrderMatchesDiscoveryOrder(t *testing.T) {
	tasks := namedTasks("a.jpg", "b.jpg", "c.jpg", "d.jpg")
	agg := NewAggregator(tasks, nil)

	results := make(chan models.IndexedResult)
	go func() {
		// Completion in reverse of discovery order.
		for i := len(tasks) - 1; i >= 0; i-- {
			results <- models.IndexedResult{
				Index:  i,
				Result: models.UploadResult{FileName: tasks[i].FileName, Success: true, Class: models.ClassSuccess},
			}
		}
		close(results)
	}()
	agg.Consume(results)

	report := agg.Finalize()
	require.Len(t, report.Results, 4)
	for i, task := range tasks {
		assert.Equal(t, task.FileName, report.Results[i].FileName)
	}
}

func TestAggregator_ListsPartitionFilenames(t *testing.T) {
	tasks := namedTasks("a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg")
	agg := NewAggregator(tasks, nil)

	results := make(chan models.IndexedResult)
	go func() {
		for i, task := range tasks {
			ok := i%2 == 0
			results <- models.IndexedResult{Index: i, Result: models.UploadResult{
				FileName: task.FileName,
				Success:  ok,
				Class:    models.ClassSuccess,
			}}
		}
		close(results)
	}()
	agg.Consume(results)

	report := agg.Finalize()
	assert.Equal(t, len(tasks), len(report.SuccessList)+len(report.FailureList))
	assert.Equal(t, report.Succeeded, len(report.SuccessList))
	assert.Equal(t, report.Failed, len(report.FailureList))

	seen := make(map[string]int)
	for _, n := range report.SuccessList {
		seen[n]++
	}
	for _, n := range report.FailureList {
		seen[n]++
	}
	for _, task := range tasks {
		assert.Equal(t, 1, seen[task.FileName], "%s must appear in exactly one list", task.FileName)
	}
}

func TestAggregator_FinalizeBackfillsCancelled(t *testing.T) {
	tasks := namedTasks("a.jpg", "b.jpg", "c.jpg")
	var notified int
	agg := NewAggregator(tasks, func(done, total int, result models.UploadResult) {
		notified++
		assert.Equal(t, 3, total)
	})

	results := make(chan models.IndexedResult, 1)
	results <- models.IndexedResult{Index: 1, Result: models.UploadResult{FileName: "b.jpg", Success: true, Class: models.ClassSuccess}}
	close(results)
	agg.Consume(results)

	report := agg.Finalize()
	require.Len(t, report.Results, 3)
	assert.Equal(t, models.ClassCancelled, report.Results[0].Class)
	assert.True(t, report.Results[1].Success)
	assert.Equal(t, models.ClassCancelled, report.Results[2].Class)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 3, notified, "exactly one notification per task, backfills included")
}

func TestAggregator_DuplicateIndexIgnored(t *testing.T) {
	tasks := namedTasks("a.jpg")
	agg := NewAggregator(tasks, nil)

	results := make(chan models.IndexedResult, 2)
	results <- models.IndexedResult{Index: 0, Result: models.UploadResult{FileName: "a.jpg", Success: true, Class: models.ClassSuccess}}
	results <- models.IndexedResult{Index: 0, Result: models.UploadResult{FileName: "a.jpg", Class: models.ClassServerError}}
	close(results)
	agg.Consume(results)

	report := agg.Finalize()
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, report.Results[0].Success, "first result wins")
}
