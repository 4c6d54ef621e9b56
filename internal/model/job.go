package model

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus is the state of one unit of asynchronous work.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is one of the known job states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is immutable.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job represents processing work against exactly one file.
type Job struct {
	ID           int64      `json:"id"`
	Token        string     `json:"token"`
	FileID       int64      `json:"fileId"`
	Status       JobStatus  `json:"status"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// WorkMessage is the body carried by the dispatch queue.
type WorkMessage struct {
	FileID   int64  `json:"fileId"`
	JobID    int64  `json:"jobId"`
	FilePath string `json:"filePath"`
}

var ErrMalformedMessage = errors.New("malformed work message")

// Validate rejects messages a worker cannot act on.
func (m WorkMessage) Validate() error {
	switch {
	case m.JobID <= 0:
		return fmt.Errorf("%w: jobId missing", ErrMalformedMessage)
	case m.FileID <= 0:
		return fmt.Errorf("%w: fileId missing", ErrMalformedMessage)
	case m.FilePath == "":
		return fmt.Errorf("%w: filePath missing", ErrMalformedMessage)
	}
	return nil
}

// FileStatusView is what the tracking boundary exposes for a single file.
type FileStatusView struct {
	FileID           int64          `json:"fileId"`
	OwnerID          int64          `json:"-"`
	OriginalName     string         `json:"originalName"`
	Status           FileStatus     `json:"status"`
	ProcessingStatus string         `json:"processingStatus"`
	JobToken         string         `json:"jobToken,omitempty"`
	StartedAt        *time.Time     `json:"startedAt"`
	CompletedAt      *time.Time     `json:"completedAt"`
	Error            *string        `json:"error"`
	ExtractedData    *ExtractedData `json:"extractedData"`
	UploadedAt       time.Time      `json:"uploadedAt"`
}

// ProcessingUnknown is reported when a file has no job yet.
const ProcessingUnknown = "unknown"

// NewFileStatusView flattens a file and its latest job.
func NewFileStatusView(f File, j *Job) *FileStatusView {
	v := &FileStatusView{
		FileID:           f.ID,
		OwnerID:          f.OwnerID,
		OriginalName:     f.OriginalName,
		Status:           f.Status,
		ProcessingStatus: ProcessingUnknown,
		ExtractedData:    f.ExtractedData,
		UploadedAt:       f.UploadedAt,
	}
	if j != nil {
		v.ProcessingStatus = string(j.Status)
		v.JobToken = j.Token
		v.StartedAt = j.StartedAt
		v.CompletedAt = j.CompletedAt
		v.Error = j.ErrorMessage
	}
	return v
}

// Settled reports whether neither record can change any more.
func (v *FileStatusView) Settled() bool {
	return v.Status.Terminal() && JobStatus(v.ProcessingStatus).Terminal()
}
