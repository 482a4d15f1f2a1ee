package upload

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/raceshot/uploader/internal/retry"
	"github.com/raceshot/uploader/pkg/models"
)

// Executor runs one task (or one batch) end-to-end: the attempt loop, the
// retry policy, and the backoff waits between attempts. No state is shared
// across tasks.
type Executor struct {
	client *Client
	policy retry.Policy
	dryRun bool
	logger *slog.Logger
}

func NewExecutor(client *Client, policy retry.Policy, dryRun bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{client: client, policy: policy, dryRun: dryRun, logger: logger}
}

// Execute uploads a single file, retrying per the policy, and returns the
// task's one and only result. The backoff wait between attempts is a
// cancellable suspension point: ctx cancellation wakes it early and the task
// resolves as cancelled.
func (e *Executor) Execute(ctx context.Context, task models.UploadTask) models.UploadResult {
	if e.dryRun {
		return models.UploadResult{
			FileName: task.FileName,
			FilePath: task.FilePath,
			Success:  true,
			Class:    models.ClassSuccess,
			Message:  "dry-run: upload skipped",
		}
	}

	data, err := os.ReadFile(task.FilePath)
	if err != nil {
		e.logger.Error("cannot read file, skipping upload", "file", task.FileName, "error", err)
		return models.UploadResult{
			FileName: task.FileName,
			FilePath: task.FilePath,
			Class:    models.ClassLocalFileError,
			Message:  "upload failed",
			Error:    err.Error(),
		}
	}

	for attempt := 1; ; attempt++ {
		out := e.client.UploadSingle(ctx, task, data)
		if out.Class == models.ClassSuccess {
			e.logger.Info("uploaded", "file", task.FileName, "photo_id", out.PhotoID, "attempts", attempt)
			return successResult(task, out, attempt)
		}
		if out.Class == models.ClassCancelled {
			return cancelledResult(task, attempt)
		}

		decision := e.policy.Decide(out.Class, attempt)
		if !decision.Retry {
			e.logger.Warn("upload failed",
				"file", task.FileName, "class", string(out.Class),
				"status", out.StatusCode, "attempts", attempt, "error", out.Message)
			return failureResult(task, out, attempt)
		}

		e.logger.Info("retrying upload",
			"file", task.FileName, "attempt", attempt, "max_retries", e.policy.MaxRetries,
			"wait", decision.Wait, "class", string(out.Class))
		if !sleepOrCancel(ctx, decision.Wait) {
			return cancelledResult(task, attempt)
		}
	}
}

// ExecuteBatch uploads several files in one request, retrying the whole
// request per the policy. Files that cannot be read locally fail immediately
// and are excluded from the request.
func (e *Executor) ExecuteBatch(ctx context.Context, tasks []models.UploadTask) []models.UploadResult {
	if e.dryRun {
		results := make([]models.UploadResult, len(tasks))
		for i, task := range tasks {
			results[i] = models.UploadResult{
				FileName: task.FileName,
				FilePath: task.FilePath,
				Success:  true,
				Class:    models.ClassSuccess,
				Message:  "dry-run: upload skipped",
			}
		}
		return results
	}

	results := make([]models.UploadResult, len(tasks))
	var sendable []models.UploadTask
	var files [][]byte
	var sendIdx []int
	for i, task := range tasks {
		data, err := os.ReadFile(task.FilePath)
		if err != nil {
			e.logger.Error("cannot read file, skipping upload", "file", task.FileName, "error", err)
			results[i] = models.UploadResult{
				FileName: task.FileName,
				FilePath: task.FilePath,
				Class:    models.ClassLocalFileError,
				Message:  "upload failed",
				Error:    err.Error(),
			}
			continue
		}
		sendable = append(sendable, task)
		files = append(files, data)
		sendIdx = append(sendIdx, i)
	}
	if len(sendable) == 0 {
		return results
	}

	for attempt := 1; ; attempt++ {
		batchResults, out := e.client.UploadBatch(ctx, sendable, files)
		if batchResults != nil {
			for j, r := range batchResults {
				r.Attempts = attempt
				results[sendIdx[j]] = r
			}
			e.logger.Info("batch uploaded", "size", len(sendable), "attempts", attempt)
			return results
		}
		if out.Class == models.ClassCancelled {
			for j, task := range sendable {
				results[sendIdx[j]] = cancelledResult(task, attempt)
			}
			return results
		}

		decision := e.policy.Decide(out.Class, attempt)
		if !decision.Retry {
			e.logger.Warn("batch upload failed",
				"size", len(sendable), "class", string(out.Class),
				"status", out.StatusCode, "attempts", attempt, "error", out.Message)
			for j, task := range sendable {
				results[sendIdx[j]] = failureResult(task, out, attempt)
			}
			return results
		}

		e.logger.Info("retrying batch upload",
			"size", len(sendable), "attempt", attempt, "max_retries", e.policy.MaxRetries,
			"wait", decision.Wait, "class", string(out.Class))
		if !sleepOrCancel(ctx, decision.Wait) {
			for j, task := range sendable {
				results[sendIdx[j]] = cancelledResult(task, attempt)
			}
			return results
		}
	}
}

// sleepOrCancel waits for d, waking early if ctx is cancelled. It returns
// false when the wait was interrupted.
func sleepOrCancel(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func successResult(task models.UploadTask, out models.AttemptOutcome, attempts int) models.UploadResult {
	msg := out.Message
	if msg == "" {
		msg = "uploaded"
	}
	return models.UploadResult{
		FileName:   task.FileName,
		FilePath:   task.FilePath,
		Success:    true,
		Message:    msg,
		PhotoID:    out.PhotoID,
		Class:      models.ClassSuccess,
		StatusCode: out.StatusCode,
		Attempts:   attempts,
	}
}

func failureResult(task models.UploadTask, out models.AttemptOutcome, attempts int) models.UploadResult {
	return models.UploadResult{
		FileName:   task.FileName,
		FilePath:   task.FilePath,
		Message:    "upload failed",
		Error:      out.Message,
		Class:      out.Class,
		StatusCode: out.StatusCode,
		Attempts:   attempts,
	}
}

func cancelledResult(task models.UploadTask, attempts int) models.UploadResult {
	return models.UploadResult{
		FileName: task.FileName,
		FilePath: task.FilePath,
		Message:  "cancelled before completion",
		Error:    "cancelled before completion",
		Class:    models.ClassCancelled,
		Attempts: attempts,
	}
}
