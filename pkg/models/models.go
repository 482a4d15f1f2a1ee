package models

import (
	"time"

	"github.com/google/uuid"
)

// Classification is the category assigned to an upload attempt's outcome.
// It drives the retry decision for the task.
type Classification string

const (
	ClassSuccess         Classification = "success"
	ClassClientError     Classification = "client_error"
	ClassServerError     Classification = "server_error"
	ClassRateLimited     Classification = "rate_limited"
	ClassTimeout         Classification = "timeout"
	ClassConnectionError Classification = "connection_error"
	ClassLocalFileError  Classification = "local_file_error"
	ClassCancelled       Classification = "cancelled"
)

// Retryable reports whether another attempt may help for this classification.
// Client errors are permanent, local file errors never reach the network,
// and cancellation is final for the run.
func (c Classification) Retryable() bool {
	switch c {
	case ClassServerError, ClassRateLimited, ClassTimeout, ClassConnectionError:
		return true
	default:
		return false
	}
}

// UploadTask is one file's upload request definition. Tasks are created once
// per discovered file at the start of a run and never mutated.
type UploadTask struct {
	FilePath  string
	FileName  string
	EventID   string
	Location  string
	Price     int
	BibNumber string

	// Optional coordinates from the shoot location. Whichever of the pair is
	// configured is passed through as-is; a partial pair is sent partially.
	Longitude *float64
	Latitude  *float64
}

// AttemptOutcome is the result of a single HTTP attempt for a task. A fresh
// outcome is produced on every attempt.
type AttemptOutcome struct {
	StatusCode int // 0 when the attempt failed before receiving a response
	Class      Classification
	Message    string
	PhotoID    string
	Elapsed    time.Duration
}

// UploadResult is the final record for a task after a success or after all
// attempts are exhausted. Exactly one exists per task.
type UploadResult struct {
	FileName   string
	FilePath   string
	Success    bool
	Message    string
	PhotoID    string // set iff Success
	Error      string // set iff !Success; last attempt's server message
	Class      Classification
	StatusCode int // last attempt's status, 0 if none was received
	Attempts   int // HTTP attempts performed; 0 for dry-run/local/cancelled
}

// IndexedResult tags a result with its task's position in the original
// discovery order so the aggregator can reconstruct that order regardless
// of completion order.
type IndexedResult struct {
	Index  int
	Result UploadResult
}

// RunReport is the finalized accounting for one run. Results are ordered by
// original file discovery order. SuccessList and FailureList partition the
// full filename set.
type RunReport struct {
	RunID       uuid.UUID
	StartedAt   time.Time
	FinishedAt  time.Time
	Results     []UploadResult
	SuccessList []string
	FailureList []string
	Succeeded   int
	Failed      int
}

// Total returns the number of tasks accounted for.
func (r *RunReport) Total() int {
	return len(r.Results)
}
