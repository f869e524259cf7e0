package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// CronJobMetrics tracks cron-worker job runs. last_success lets alerts fire
// when reconciliation or promotion stops completing.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settlement_cron_job_duration_seconds",
			Help:    "Wall time of cron job runs.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_cron_job_runs_total",
			Help: "Cron job runs by outcome.",
		}, []string{"job", "outcome"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settlement_cron_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs, m.lastSuccess)
	return m
}

// ObserveRun records one finished run. finishedAt feeds last_success when
// err is nil.
func (c *CronJobMetrics) ObserveRun(job string, took time.Duration, finishedAt time.Time, err error) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(took.Seconds())
	if err != nil {
		c.runs.WithLabelValues(job, outcomeFailed).Inc()
		return
	}
	c.runs.WithLabelValues(job, outcomeSucceeded).Inc()
	c.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
