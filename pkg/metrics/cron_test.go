package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "ledger-reconciliation"
	finished := time.Unix(1_780_000_000, 0)

	m.ObserveRun(job, 250*time.Millisecond, finished, nil)
	m.ObserveRun(job, time.Second, finished.Add(time.Minute), errors.New("wallet drift"))

	if got := testutil.ToFloat64(m.runs.WithLabelValues(job, outcomeSucceeded)); got != 1 {
		t.Fatalf("expected one success, got %f", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues(job, outcomeFailed)); got != 1 {
		t.Fatalf("expected one failure, got %f", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues(job)); got != float64(finished.Unix()) {
		t.Fatalf("failed run must not move last success, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchHistogramSum(mfs, "settlement_cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 1.25 {
		t.Fatalf("expected duration sum 1.25, got %f", got)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.ObserveRun("order-expiry", time.Second, time.Now(), nil)
	NewCronJobMetrics(nil).ObserveRun("order-expiry", time.Second, time.Now(), nil)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
