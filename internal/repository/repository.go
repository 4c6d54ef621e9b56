// Package repository contains data access layer abstractions for files and jobs.
// Implementations live in subpackages (postgres, memory) inside this directory.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"fileflow/internal/model"
)

// RecordStore is the sole writer of durable File and Job state.
// Every transition method is conditional on the current status and reports
// false, with a nil error, when the row was already past the transition.
// Lookups by id return sql.ErrNoRows when the row does not exist.
type RecordStore interface {
	// CreateFileWithJob inserts the file and its first job in one transaction.
	// job.FileID is filled from the inserted file.
	CreateFileWithJob(ctx context.Context, file *model.File, job *model.Job) (*model.File, *model.Job, error)

	// CreateRedispatchJob inserts a new job for an uploaded file whose latest job
	// failed before dispatch. It reports false when the file has an active job or
	// has moved on. A missing file yields sql.ErrNoRows.
	CreateRedispatchJob(ctx context.Context, job *model.Job) (*model.Job, bool, error)

	FindFileByID(ctx context.Context, id int64) (*model.File, error)
	FindJobByID(ctx context.Context, id int64) (*model.Job, error)

	// FindLatestJobByFileID returns the file's most recent job.
	FindLatestJobByFileID(ctx context.Context, fileID int64) (*model.Job, error)

	// ListFilesByOwner returns the owner's files, newest first, with their latest job.
	ListFilesByOwner(ctx context.Context, ownerID int64, pq PageQuery) (*PageResult[model.FileWithJob], error)

	// MarkProcessing moves a queued or processing job and its file to processing.
	MarkProcessing(ctx context.Context, jobID, fileID int64, at time.Time) (bool, error)

	// CompleteJob stores the analysis result: file processed, job completed.
	CompleteJob(ctx context.Context, jobID, fileID int64, data *model.ExtractedData, at time.Time) (bool, error)

	// FailJob records a terminal failure on the job and fails its file unless already processed.
	FailJob(ctx context.Context, jobID, fileID int64, message string, at time.Time) (bool, error)

	// MarkDispatchFailed fails a still-queued job without touching its file.
	MarkDispatchFailed(ctx context.Context, jobID int64, message string, at time.Time) (bool, error)

	// MarkFileFailed fails a file that never left the uploaded state.
	MarkFileFailed(ctx context.Context, fileID int64) (bool, error)

	// ClaimStaleJobs returns a bounded batch of jobs the reconciler should inspect.
	ClaimStaleJobs(ctx context.Context, q StaleJobQuery) ([]model.Job, error)

	// ListRedispatchCandidates returns uploaded files whose latest job failed before dispatch.
	ListRedispatchCandidates(ctx context.Context, limit int) ([]RedispatchCandidate, error)

	Ping(ctx context.Context) error
}

// StaleJobQuery selects processing jobs started before ProcessingBefore and
// queued jobs created before QueuedBefore.
type StaleJobQuery struct {
	ProcessingBefore time.Time
	QueuedBefore     time.Time
	Limit            int
}

// RedispatchCandidate is an uploaded file whose latest job never reached a worker.
type RedispatchCandidate struct {
	File     model.File
	JobCount int
}

// ErrDuplicateToken is returned when a job token is already taken.
var ErrDuplicateToken = errors.New("job token already exists")

// DispatchFailurePrefix marks job errors written when the queue rejected a publish.
const DispatchFailurePrefix = "failed to enqueue"

// FailedDispatch reports whether j failed before its message reached the queue.
func FailedDispatch(j *model.Job) bool {
	return j != nil && j.Status == model.JobStatusFailed && j.ErrorMessage != nil &&
		strings.HasPrefix(*j.ErrorMessage, DispatchFailurePrefix)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
