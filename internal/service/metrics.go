package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	jobsProcessed     *prometheus.CounterVec
	jobDuration       prometheus.Histogram
	jobRetries        prometheus.Counter
	reconcileRuns     prometheus.Counter
	reconcileActions  *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
}

// NewMetrics registers the pipeline collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		jobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fileflow_jobs_processed_total",
			Help: "Jobs handled by workers, by outcome.",
		}, []string{"outcome"}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileflow_job_duration_seconds",
			Help:    "Time spent handling one delivery.",
			Buckets: prometheus.DefBuckets,
		}),
		jobRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "fileflow_job_retries_total",
			Help: "Deliveries scheduled for another attempt.",
		}),
		reconcileRuns: f.NewCounter(prometheus.CounterOpts{
			Name: "fileflow_reconcile_runs_total",
			Help: "Completed reconciler sweeps.",
		}),
		reconcileActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "fileflow_reconcile_actions_total",
			Help: "Reconciler actions, by kind.",
		}, []string{"action"}),
		reconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileflow_reconcile_duration_seconds",
			Help:    "Duration of a reconciler sweep.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}
}

func (m *Metrics) observeJob(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.jobsProcessed.WithLabelValues(string(outcome)).Inc()
	m.jobDuration.Observe(d.Seconds())
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.jobRetries.Inc()
}

func (m *Metrics) observeReconcile(res *ReconcileResult, d time.Duration) {
	if m == nil {
		return
	}
	m.reconcileRuns.Inc()
	m.reconcileDuration.Observe(d.Seconds())
	for action, n := range res.counts() {
		if n > 0 {
			m.reconcileActions.WithLabelValues(action).Add(float64(n))
		}
	}
}
