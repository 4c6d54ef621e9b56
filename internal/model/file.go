package model

import (
	"errors"
	"strings"
	"time"
)

// FileStatus is the lifecycle state of an uploaded file.
type FileStatus string

const (
	FileStatusUploaded   FileStatus = "uploaded"
	FileStatusProcessing FileStatus = "processing"
	FileStatusProcessed  FileStatus = "processed"
	FileStatusFailed     FileStatus = "failed"
)

// Valid reports whether s is one of the known file states.
func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusUploaded, FileStatusProcessing, FileStatusProcessed, FileStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no worker will move the file out of s.
func (s FileStatus) Terminal() bool {
	return s == FileStatusProcessed || s == FileStatusFailed
}

// File represents one uploaded artifact.
// This is a pure domain model with no database-specific dependencies or tags.
type File struct {
	ID                int64          `json:"id"`
	OriginalName      string         `json:"originalName"`
	StoredLocation    string         `json:"storedLocation"`
	DeclaredMediaType string         `json:"declaredMediaType"`
	Status            FileStatus     `json:"status"`
	ExtractedData     *ExtractedData `json:"extractedData"`
	OwnerID           int64          `json:"ownerId"`
	UploadedAt        time.Time      `json:"uploadedAt"`
}

// ExtractedData is the structured analysis result persisted on a processed file.
type ExtractedData struct {
	Hash         string    `json:"hash"`
	Size         int64     `json:"size"`
	Extension    string    `json:"extension"`
	LastModified time.Time `json:"lastModified"`
	Created      time.Time `json:"created"`
	ProcessedAt  time.Time `json:"processedAt"`
	MimeType     string    `json:"mimeType"`
	Summary      string    `json:"summary"`
	ArchiveKey   string    `json:"archiveKey,omitempty"`
}

// UploadDescriptor is handed over by the upload layer once the bytes are durably on disk.
type UploadDescriptor struct {
	StoredLocation    string
	OriginalName      string
	DeclaredMediaType string
	OwnerID           int64
}

var (
	ErrLocationRequired = errors.New("stored location is required")
	ErrNameRequired     = errors.New("original name is required")
	ErrOwnerRequired    = errors.New("owner id must be positive")
)

// Validate checks the fields the pipeline depends on.
func (d UploadDescriptor) Validate() error {
	if strings.TrimSpace(d.StoredLocation) == "" {
		return ErrLocationRequired
	}
	if strings.TrimSpace(d.OriginalName) == "" {
		return ErrNameRequired
	}
	if d.OwnerID <= 0 {
		return ErrOwnerRequired
	}
	return nil
}

// SubmitResult is returned to the caller of a submission.
type SubmitResult struct {
	FileID   int64  `json:"fileId"`
	JobToken string `json:"jobToken"`
}

// FileWithJob pairs a file with its latest job, if any.
type FileWithJob struct {
	File File
	Job  *Job
}
