package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fileflow/internal/model"
	"fileflow/internal/queue"
	"fileflow/internal/repository"
)

// SubmissionService accepts uploaded files into the pipeline.
type SubmissionService interface {
	// Submit persists a File(uploaded) and its Job(queued) atomically and then enqueues the job.
	// A failed enqueue is recorded on the job and does not fail the call.
	Submit(ctx context.Context, d model.UploadDescriptor) (*model.SubmitResult, error)

	// Ingest writes r under the upload directory with a generated name and submits it.
	// The written file is removed again if the records cannot be created.
	Ingest(ctx context.Context, r io.Reader, originalName, mediaType string, ownerID int64) (*model.SubmitResult, error)

	// Redispatch creates and enqueues a new job for an uploaded file whose latest job
	// failed to enqueue. Files with an active job are refused with ErrNotRedispatchable.
	Redispatch(ctx context.Context, fileID int64) (*model.Job, error)
}

type submissionService struct {
	repo      repository.RecordStore
	pub       queue.Publisher
	leases    LeaseRegistry
	uploadDir string
	log       *slog.Logger
	now       func() time.Time
	newToken  func() string
}

// NewSubmissionService constructs a SubmissionService. leases may be nil.
func NewSubmissionService(repo repository.RecordStore, pub queue.Publisher, leases LeaseRegistry, uploadDir string, log *slog.Logger) SubmissionService {
	return &submissionService{
		repo:      repo,
		pub:       pub,
		leases:    leases,
		uploadDir: uploadDir,
		log:       log.With("component", "submission"),
		now:       func() time.Time { return time.Now().UTC() },
		newToken:  func() string { return uuid.New().String() },
	}
}

func (s *submissionService) Submit(ctx context.Context, d model.UploadDescriptor) (*model.SubmitResult, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	now := s.now()
	file := &model.File{
		OriginalName:      d.OriginalName,
		StoredLocation:    d.StoredLocation,
		DeclaredMediaType: d.DeclaredMediaType,
		Status:            model.FileStatusUploaded,
		OwnerID:           d.OwnerID,
		UploadedAt:        now,
	}
	job := &model.Job{
		Token:     s.newToken(),
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}

	f, j, err := s.repo.CreateFileWithJob(ctx, file, job)
	if err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	s.log.Info("job_created", "file_id", f.ID, "job_id", j.ID, "owner_id", f.OwnerID)

	// The records are committed; an enqueue failure is already recorded on the job.
	_ = s.dispatch(ctx, f, j)

	return &model.SubmitResult{FileID: f.ID, JobToken: j.Token}, nil
}

// dispatch publishes the work message for j. On failure the job is marked
// failed with a DispatchFailurePrefix message so the reconciler can redispatch it.
func (s *submissionService) dispatch(ctx context.Context, f *model.File, j *model.Job) error {
	msg := model.WorkMessage{FileID: f.ID, JobID: j.ID, FilePath: f.StoredLocation}

	if s.leases != nil {
		if err := s.leases.Track(ctx, j.ID); err != nil {
			s.log.Warn("lease not tracked", "job_id", j.ID, "error", err)
		}
	}

	err := s.pub.Publish(ctx, msg)
	if err == nil {
		return nil
	}

	wctx := context.WithoutCancel(ctx)
	if s.leases != nil {
		if rErr := s.leases.Release(wctx, j.ID); rErr != nil {
			s.log.Warn("lease not released", "job_id", j.ID, "error", rErr)
		}
	}
	reason := fmt.Sprintf("%s: %v", repository.DispatchFailurePrefix, err)
	if _, mErr := s.repo.MarkDispatchFailed(wctx, j.ID, reason, s.now()); mErr != nil {
		s.log.Error("dispatch failure not recorded", "job_id", j.ID, "error", mErr)
	}
	s.log.Error("job_enqueue_failed", "file_id", f.ID, "job_id", j.ID, "error", err)
	return err
}

func (s *submissionService) Ingest(ctx context.Context, r io.Reader, originalName, mediaType string, ownerID int64) (*model.SubmitResult, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: reader is nil", ErrValidation)
	}
	if strings.TrimSpace(originalName) == "" {
		return nil, fmt.Errorf("%w: %w", ErrValidation, model.ErrNameRequired)
	}
	if ownerID <= 0 {
		return nil, fmt.Errorf("%w: %w", ErrValidation, model.ErrOwnerRequired)
	}

	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return nil, fmt.Errorf("prepare upload dir: %w", err)
	}
	name := uuid.New().String() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.uploadDir, name)

	if err := writeFile(path, r); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write upload: %w", err)
	}

	res, err := s.Submit(ctx, model.UploadDescriptor{
		StoredLocation:    path,
		OriginalName:      originalName,
		DeclaredMediaType: mediaType,
		OwnerID:           ownerID,
	})
	if err != nil {
		// Rollback: nothing references the bytes.
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, fmt.Errorf("%w; rollback remove failed: %v", err, rmErr)
		}
		return nil, err
	}
	return res, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *submissionService) Redispatch(ctx context.Context, fileID int64) (*model.Job, error) {
	f, err := s.repo.FindFileByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if f.Status != model.FileStatusUploaded {
		return nil, ErrNotRedispatchable
	}

	j, ok, err := s.repo.CreateRedispatchJob(ctx, &model.Job{
		Token:     s.newToken(),
		FileID:    f.ID,
		Status:    model.JobStatusQueued,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	if !ok {
		return nil, ErrNotRedispatchable
	}
	s.log.Info("job_created", "file_id", f.ID, "job_id", j.ID, "redispatch", true)

	if err := s.dispatch(ctx, f, j); err != nil {
		return j, err
	}
	return j, nil
}
