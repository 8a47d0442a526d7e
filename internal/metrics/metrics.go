// Package metrics exposes scheduler operation counters, gauges, and latency
// histograms in Prometheus format. A nil *Set is a valid no-op, so components
// can run metric-free in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Set struct {
	scheduled      *prometheus.CounterVec
	completed      *prometheus.CounterVec
	failed         *prometheus.CounterVec
	retried        *prometheus.CounterVec
	cancelled      *prometheus.CounterVec
	admissionSkips *prometheus.CounterVec

	running prometheus.Gauge
	pending *prometheus.GaugeVec

	duration *prometheus.HistogramVec
}

// New builds the metric set and registers it on reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reeljobs_jobs_scheduled_total",
			Help: "Jobs accepted into the pending queues.",
		}, []string{"type", "priority"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reeljobs_jobs_completed_total",
			Help: "Jobs that reached completed.",
		}, []string{"type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reeljobs_jobs_failed_total",
			Help: "Jobs that reached terminal failed.",
		}, []string{"type"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reeljobs_jobs_retried_total",
			Help: "Attempts re-queued for retry.",
		}, []string{"type"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reeljobs_jobs_cancelled_total",
			Help: "Jobs cancelled before or during execution.",
		}, []string{"type"}),
		admissionSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reeljobs_admission_skips_total",
			Help: "Ticks that admitted nothing, by gate.",
		}, []string{"reason"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reeljobs_jobs_running",
			Help: "Jobs currently executing.",
		}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reeljobs_jobs_pending",
			Help: "Jobs queued per priority.",
		}, []string{"priority"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reeljobs_job_duration_seconds",
			Help:    "Wall-clock duration of finished attempts.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"type"}),
	}

	if reg != nil {
		reg.MustRegister(
			s.scheduled, s.completed, s.failed, s.retried, s.cancelled,
			s.admissionSkips, s.running, s.pending, s.duration,
		)
	}
	return s
}

func (s *Set) Scheduled(jobType, priority string) {
	if s == nil {
		return
	}
	s.scheduled.WithLabelValues(jobType, priority).Inc()
}

func (s *Set) Completed(jobType string, d time.Duration) {
	if s == nil {
		return
	}
	s.completed.WithLabelValues(jobType).Inc()
	if d > 0 {
		s.duration.WithLabelValues(jobType).Observe(d.Seconds())
	}
}

func (s *Set) Failed(jobType string, d time.Duration) {
	if s == nil {
		return
	}
	s.failed.WithLabelValues(jobType).Inc()
	if d > 0 {
		s.duration.WithLabelValues(jobType).Observe(d.Seconds())
	}
}

func (s *Set) Retried(jobType string) {
	if s == nil {
		return
	}
	s.retried.WithLabelValues(jobType).Inc()
}

func (s *Set) Cancelled(jobType string) {
	if s == nil {
		return
	}
	s.cancelled.WithLabelValues(jobType).Inc()
}

func (s *Set) AdmissionSkip(reason string) {
	if s == nil {
		return
	}
	s.admissionSkips.WithLabelValues(reason).Inc()
}

func (s *Set) SetRunning(n int) {
	if s == nil {
		return
	}
	s.running.Set(float64(n))
}

func (s *Set) SetPending(priority string, n int) {
	if s == nil {
		return
	}
	s.pending.WithLabelValues(priority).Set(float64(n))
}
