package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"fileflow/internal/analyzer"
	"fileflow/internal/config"
	"fileflow/internal/model"
	"fileflow/internal/queue"
	"fileflow/internal/repository"
)

// Analyzer computes the extracted data of a stored file.
type Analyzer interface {
	Analyze(path, declaredMediaType string) (*model.ExtractedData, error)
}

// Archiver copies a processed file to object storage and returns its key.
type Archiver interface {
	Archive(ctx context.Context, path string, data *model.ExtractedData) (string, error)
}

const supersededMessage = "job superseded: file already settled by another job"

// Outcome is how a single delivery ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRetried   Outcome = "retried"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeInvalid   Outcome = "invalid"
)

// WorkerPool consumes work messages and drives jobs to a terminal state.
type WorkerPool struct {
	cfg      config.WorkerConfig
	repo     repository.RecordStore
	consumer queue.Consumer
	analyzer Analyzer
	archiver Archiver
	leases   LeaseRegistry
	metrics  *Metrics
	policy   RetryPolicy
	tracer   trace.Tracer
	log      *slog.Logger
	now      func() time.Time
}

type WorkerOption func(*WorkerPool)

// WithArchiver enables archiving processed files.
func WithArchiver(a Archiver) WorkerOption {
	return func(p *WorkerPool) { p.archiver = a }
}

func WithLeases(l LeaseRegistry) WorkerOption {
	return func(p *WorkerPool) { p.leases = l }
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(p *WorkerPool) { p.metrics = m }
}

func NewWorkerPool(cfg config.WorkerConfig, repo repository.RecordStore, consumer queue.Consumer, a Analyzer, log *slog.Logger, opts ...WorkerOption) *WorkerPool {
	p := &WorkerPool{
		cfg:      cfg,
		repo:     repo,
		consumer: consumer,
		analyzer: a,
		policy:   NewRetryPolicy(cfg),
		tracer:   otel.Tracer("fileflow/worker"),
		log:      log.With("component", "worker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts Concurrency workers and blocks until ctx is done and every
// in-flight job has been settled.
func (p *WorkerPool) Run(ctx context.Context) error {
	deliveries, err := p.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	var g errgroup.Group
	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			for d := range deliveries {
				p.Handle(ctx, d)
			}
			return nil
		})
	}
	p.log.Info("worker pool started", "concurrency", p.cfg.Concurrency, "max_attempts", p.cfg.MaxAttempts)

	err = g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

// Handle runs the job protocol for one delivery and settles it.
// It never returns an error: every failure ends up on the job record or in a retry.
func (p *WorkerPool) Handle(ctx context.Context, d queue.Delivery) (outcome Outcome) {
	// In-flight work finishes even when the pool is shutting down.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "job.process")
	defer span.End()
	defer func() {
		span.SetAttributes(attribute.String("job.outcome", string(outcome)))
		p.metrics.observeJob(outcome, time.Since(start))
	}()

	msg, err := queue.Decode(d.Body())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return p.invalid(ctx, d, msg, err)
	}

	span.SetAttributes(
		attribute.Int64("job.id", msg.JobID),
		attribute.Int64("file.id", msg.FileID),
		attribute.Int("job.attempt", d.Attempt()),
	)
	log := p.log.With("job_id", msg.JobID, "file_id", msg.FileID, "attempt", d.Attempt())

	outcome, err = p.process(ctx, msg, log)
	if err != nil {
		span.RecordError(err)
		if Classify(err) == KindValidation {
			return p.invalid(ctx, d, msg, err)
		}
		return p.retryOrGiveUp(ctx, d, msg, err, log)
	}

	switch outcome {
	case OutcomeDuplicate:
		log.Info("job_duplicate_delivery")
	case OutcomeFailed:
		span.SetStatus(codes.Error, "analysis failed")
		p.release(ctx, msg.JobID, log)
	default:
		p.release(ctx, msg.JobID, log)
	}
	if err := d.Ack(); err != nil {
		log.Error("ack failed", "error", err)
	}
	return outcome
}

// process returns a settled outcome, or a transient error.
func (p *WorkerPool) process(ctx context.Context, msg model.WorkMessage, log *slog.Logger) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = "", &TransientError{Op: "process", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	job, err := p.repo.FindJobByID(ctx, msg.JobID)
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", &TransientError{Op: "load job", Err: err}
	}
	if job.Status.Terminal() {
		return OutcomeDuplicate, nil
	}
	if job.FileID != msg.FileID {
		return "", fmt.Errorf("%w: fileId %d does not belong to job", model.ErrMalformedMessage, msg.FileID)
	}

	file, err := p.repo.FindFileByID(ctx, msg.FileID)
	if errors.Is(err, sql.ErrNoRows) {
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", &TransientError{Op: "load file", Err: err}
	}
	if file.Status.Terminal() {
		return p.supersede(ctx, job, log)
	}

	ok, err := p.repo.MarkProcessing(ctx, msg.JobID, msg.FileID, p.now())
	if err != nil {
		return "", &TransientError{Op: "mark processing", Err: err}
	}
	if !ok {
		return p.supersede(ctx, job, log)
	}
	log.Info("job_started")

	data, err := p.analyzer.Analyze(msg.FilePath, file.DeclaredMediaType)
	if err != nil {
		if !analyzer.IsAnalysisError(err) {
			return "", &TransientError{Op: "analyze", Err: err}
		}
		ok, ferr := p.repo.FailJob(ctx, msg.JobID, msg.FileID, err.Error(), p.now())
		if ferr != nil {
			return "", &TransientError{Op: "record failure", Err: ferr}
		}
		if !ok {
			return OutcomeDuplicate, nil
		}
		log.Warn("job_failed", "error", err)
		return OutcomeFailed, nil
	}

	if p.archiver != nil {
		key, err := p.archiver.Archive(ctx, msg.FilePath, data)
		if err != nil {
			return "", &TransientError{Op: "archive", Err: err}
		}
		data.ArchiveKey = key
	}

	ok, err = p.repo.CompleteJob(ctx, msg.JobID, msg.FileID, data, p.now())
	if err != nil {
		return "", &TransientError{Op: "record result", Err: err}
	}
	if !ok {
		return OutcomeDuplicate, nil
	}
	log.Info("job_completed", "hash", data.Hash, "size", data.Size, "mime_type", data.MimeType)
	return OutcomeCompleted, nil
}

// supersede fails a job that can no longer run because its file was settled
// by another job. A job that is already terminal is a plain duplicate.
func (p *WorkerPool) supersede(ctx context.Context, job *model.Job, log *slog.Logger) (Outcome, error) {
	ok, err := p.repo.FailJob(ctx, job.ID, job.FileID, supersededMessage, p.now())
	if err != nil {
		return "", &TransientError{Op: "close superseded job", Err: err}
	}
	if !ok {
		return OutcomeDuplicate, nil
	}
	log.Warn("job_failed", "reason", supersededMessage)
	return OutcomeFailed, nil
}

func (p *WorkerPool) retryOrGiveUp(ctx context.Context, d queue.Delivery, msg model.WorkMessage, cause error, log *slog.Logger) Outcome {
	attempt := d.Attempt()
	if attempt < p.cfg.MaxAttempts {
		delay := p.policy.Delay(attempt)
		if p.leases != nil {
			if err := p.leases.Track(ctx, msg.JobID); err != nil {
				log.Warn("lease not refreshed", "error", err)
			}
		}
		if err := d.Retry(delay); err != nil {
			log.Error("retry not scheduled", "error", err)
		}
		p.metrics.retry()
		log.Warn("job_retry_scheduled", "delay", delay.String(), "error", cause)
		return OutcomeRetried
	}

	exhausted := &RetryExhaustedError{Attempts: attempt, Err: cause}
	if _, err := p.repo.FailJob(ctx, msg.JobID, msg.FileID, exhausted.Reason(), p.now()); err != nil {
		// Left for the reconciler's stale sweep.
		log.Error("exhausted job not recorded", "error", err)
	} else {
		p.release(ctx, msg.JobID, log)
	}
	if err := d.Reject(); err != nil {
		log.Error("reject failed", "error", err)
	}
	log.Error("job_retry_exhausted", "error", exhausted)
	return OutcomeExhausted
}

// invalid fails the job named by a malformed message, when one can be identified.
func (p *WorkerPool) invalid(ctx context.Context, d queue.Delivery, msg model.WorkMessage, cause error) Outcome {
	log := p.log.With("job_id", msg.JobID)

	if msg.JobID > 0 {
		// The stored job is authoritative; the message's fileId may be the garbled part.
		fileID := msg.FileID
		if job, err := p.repo.FindJobByID(ctx, msg.JobID); err == nil {
			fileID = job.FileID
		}
		if fileID > 0 {
			reason := "invalid work message: " + cause.Error()
			if _, err := p.repo.FailJob(ctx, msg.JobID, fileID, reason, p.now()); err != nil {
				log.Error("invalid message not recorded", "error", err)
			} else {
				p.release(ctx, msg.JobID, log)
			}
		}
	}
	if err := d.Reject(); err != nil {
		log.Error("reject failed", "error", err)
	}
	log.Error("job_failed", "error", cause, "reason", "invalid work message")
	return OutcomeInvalid
}

func (p *WorkerPool) release(ctx context.Context, jobID int64, log *slog.Logger) {
	if p.leases == nil {
		return
	}
	if err := p.leases.Release(ctx, jobID); err != nil {
		log.Warn("lease not released", "error", err)
	}
}
