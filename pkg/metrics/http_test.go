package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("POST", "/api/v1/vendor/payouts", 201, 20*time.Millisecond)
	m.Observe("POST", "/api/v1/vendor/payouts", 201, 10*time.Millisecond)
	m.Observe("GET", "", 404, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/v1/vendor/payouts", "201")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")))

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, time.Millisecond)
	NewHTTPMetrics(nil).Observe("GET", "/", 200, time.Millisecond)
}
