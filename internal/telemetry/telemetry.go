// Package telemetry exposes the pipeline's Prometheus metrics.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry bundles the pipeline metric instruments.
type Telemetry struct {
	registry *prometheus.Registry

	ClustersProcessed *prometheus.CounterVec
	ClustersSkipped   *prometheus.CounterVec
	ClustersFailed    *prometheus.CounterVec
	RecordingsFailed  *prometheus.CounterVec
	ClusterDuration   *prometheus.HistogramVec
	StitchRows        prometheus.Gauge
}

// New creates and registers the pipeline metrics.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	t := &Telemetry{
		registry: reg,
		ClustersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spikeline_clusters_processed_total",
			Help: "Clusters completed per stage.",
		}, []string{"stage"}),
		ClustersSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spikeline_clusters_skipped_total",
			Help: "Clusters skipped because their artifact is up to date.",
		}, []string{"stage"}),
		ClustersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spikeline_clusters_failed_total",
			Help: "Clusters that failed and were dropped from a stage.",
		}, []string{"stage"}),
		RecordingsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spikeline_recordings_failed_total",
			Help: "Recordings skipped due to missing or broken inputs.",
		}, []string{"stage"}),
		ClusterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spikeline_cluster_duration_seconds",
			Help:    "Per-cluster wall time per stage.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		StitchRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spikeline_stitch_rows",
			Help: "Rows in the most recent stitch table.",
		}),
	}
	reg.MustRegister(
		t.ClustersProcessed, t.ClustersSkipped, t.ClustersFailed,
		t.RecordingsFailed, t.ClusterDuration, t.StitchRows,
	)
	return t
}

// Handler serves the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
