package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fileflow/internal/config"
	"fileflow/internal/model"
	"fileflow/internal/repository"
)

// ReconcileResult summarizes one sweep.
type ReconcileResult struct {
	StaleFailed      int       `json:"staleFailed"`
	AbandonedFailed  int       `json:"abandonedFailed"`
	SkippedLive      int       `json:"skippedLive"`
	Redispatched     int       `json:"redispatched"`
	RedispatchFailed int       `json:"redispatchFailed"`
	FilesFailed      int       `json:"filesFailed"`
	Errors           int       `json:"errors"`
	StartedAt        time.Time `json:"startedAt"`
	CompletedAt      time.Time `json:"completedAt"`
}

func (r *ReconcileResult) counts() map[string]int {
	return map[string]int{
		"stale_failed":      r.StaleFailed,
		"abandoned_failed":  r.AbandonedFailed,
		"skipped_live":      r.SkippedLive,
		"redispatched":      r.Redispatched,
		"redispatch_failed": r.RedispatchFailed,
		"file_failed":       r.FilesFailed,
		"error":             r.Errors,
	}
}

// Reconciler periodically fails jobs that stopped making progress and
// redispatches files whose job never reached the queue.
type Reconciler struct {
	cfg        config.WorkerConfig
	repo       repository.RecordStore
	submission SubmissionService
	leases     LeaseRegistry
	metrics    *Metrics
	log        *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconciler creates a Reconciler. submission, leases and metrics may be nil:
// without submission nothing is redispatched, without leases queued jobs are judged by age alone.
func NewReconciler(cfg config.WorkerConfig, repo repository.RecordStore, submission SubmissionService, leases LeaseRegistry, metrics *Metrics, log *slog.Logger) *Reconciler {
	return &Reconciler{
		cfg:        cfg,
		repo:       repo,
		submission: submission,
		leases:     leases,
		metrics:    metrics,
		log:        log.With(slog.String("component", "reconciler")),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start runs RunOnce on every tick until Stop is called or ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	rctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(rctx)

	r.log.Info("reconciler started", slog.String("interval", r.cfg.ReconcileInterval().String()))
}

// Stop ends the ticker loop and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.log.Info("reconciler stopped")
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.ReconcileInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. It returns (nil, true) when another sweep is in progress.
func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileResult, bool) {
	r.mu.Lock()
	if r.inProcess {
		r.mu.Unlock()
		r.log.Warn("reconcile already running, skipping")
		return nil, true
	}
	r.inProcess = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProcess = false
		r.mu.Unlock()
	}()

	res := &ReconcileResult{StartedAt: r.now()}
	r.sweepStale(ctx, res)
	r.sweepUndispatched(ctx, res)
	res.CompletedAt = r.now()

	duration := res.CompletedAt.Sub(res.StartedAt)
	r.metrics.observeReconcile(res, duration)
	r.log.Info("reconcile finished",
		slog.Int("stale_failed", res.StaleFailed),
		slog.Int("abandoned_failed", res.AbandonedFailed),
		slog.Int("skipped_live", res.SkippedLive),
		slog.Int("redispatched", res.Redispatched),
		slog.Int("files_failed", res.FilesFailed),
		slog.Int("errors", res.Errors),
		slog.String("duration", duration.String()),
	)
	return res, false
}

func (r *Reconciler) sweepStale(ctx context.Context, res *ReconcileResult) {
	now := res.StartedAt
	jobs, err := r.repo.ClaimStaleJobs(ctx, repository.StaleJobQuery{
		ProcessingBefore: now.Add(-r.cfg.StaleThreshold()),
		QueuedBefore:     now.Add(-r.cfg.QueuedStaleThreshold()),
		Limit:            r.cfg.ReconcileBatchSize,
	})
	if err != nil {
		res.Errors++
		r.log.Error("claim stale jobs failed", slog.String("error", err.Error()))
		return
	}

	for _, j := range jobs {
		log := r.log.With(slog.Int64("job_id", j.ID), slog.Int64("file_id", j.FileID))
		var reason string

		switch j.Status {
		case model.JobStatusProcessing:
			reason = fmt.Sprintf("stale job: no progress for %s", r.cfg.StaleThreshold())
		case model.JobStatusQueued:
			if r.leases != nil {
				live, err := r.leases.IsLive(ctx, j.ID)
				if err != nil {
					res.Errors++
					log.Warn("lease check failed", slog.String("error", err.Error()))
					continue
				}
				if live {
					res.SkippedLive++
					continue
				}
			}
			reason = "abandoned job: no live queue message"
		default:
			continue
		}

		ok, err := r.repo.FailJob(ctx, j.ID, j.FileID, reason, r.now())
		if err != nil {
			res.Errors++
			log.Error("fail stale job failed", slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		if j.Status == model.JobStatusProcessing {
			res.StaleFailed++
		} else {
			res.AbandonedFailed++
		}
		if r.leases != nil {
			if err := r.leases.Release(ctx, j.ID); err != nil {
				log.Warn("lease not released", slog.String("error", err.Error()))
			}
		}
		log.Warn("job_failed", slog.String("reason", reason))
	}
}

func (r *Reconciler) sweepUndispatched(ctx context.Context, res *ReconcileResult) {
	cands, err := r.repo.ListRedispatchCandidates(ctx, r.cfg.ReconcileBatchSize)
	if err != nil {
		res.Errors++
		r.log.Error("list redispatch candidates failed", slog.String("error", err.Error()))
		return
	}

	for _, c := range cands {
		log := r.log.With(slog.Int64("file_id", c.File.ID), slog.Int("jobs", c.JobCount))

		if c.JobCount >= r.cfg.MaxAttempts {
			ok, err := r.repo.MarkFileFailed(ctx, c.File.ID)
			if err != nil {
				res.Errors++
				log.Error("fail undispatched file failed", slog.String("error", err.Error()))
				continue
			}
			if ok {
				res.FilesFailed++
				log.Warn("file failed: dispatch attempts exhausted")
			}
			continue
		}

		if r.submission == nil {
			continue
		}
		j, err := r.submission.Redispatch(ctx, c.File.ID)
		if err != nil {
			res.RedispatchFailed++
			log.Warn("redispatch failed", slog.String("error", err.Error()))
			continue
		}
		res.Redispatched++
		log.Info("file redispatched", slog.Int64("job_id", j.ID))
	}
}
