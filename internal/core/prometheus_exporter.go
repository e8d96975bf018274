package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Compile-time contract assertion for the Prometheus exporter.
var _ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)

// PrometheusMetricsRecorder fulfills MetricsRecorder by exporting a
// duration histogram and a result counter per service operation.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the service collectors on the
// supplied registerer. A nil registerer uses the default registry.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scancore",
		Subsystem: "service",
		Name:      "operation_duration_seconds",
		Help:      "Duration of core service operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scancore",
		Subsystem: "service",
		Name:      "operation_results_total",
		Help:      "Outcomes of core service operations by status.",
	}, []string{"operation", "status"})
	for _, c := range []prometheus.Collector{durations, results} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &PrometheusMetricsRecorder{durations: durations, results: results}, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}
