package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vowvendors"

// CronJobMetrics records metadata for scheduled jobs.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the cron job metrics on the provided registerer.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of cron jobs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_success_total",
		Help:      "Successful cron job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_failure_total",
		Help:      "Failed cron job executions.",
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run per job.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure, lastSuccess)
	return &CronJobMetrics{
		duration:    duration,
		success:     success,
		failure:     failure,
		lastSuccess: lastSuccess,
	}
}

// ObserveDuration records the duration for the named job.
func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter and stamps the last success time.
func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
	c.lastSuccess.WithLabelValues(normalizeLabel(job)).SetToCurrentTime()
}

// IncFailure increments the failure counter for the named job.
func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
