// Package metrics provides Prometheus metrics for docvcs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nainya/docvcs/pkg/model"
)

// Metrics holds every docvcs collector. It implements engine.Recorder.
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Engine metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	VersionsCreated   *prometheus.CounterVec
	MergesTotal       *prometheus.CounterVec
	MergeConflicts    prometheus.Counter
	DocumentsTotal    prometheus.Gauge

	ServerStartTime time.Time
}

// NewMetrics registers all collectors with reg. A nil reg uses the default
// Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	m := &Metrics{ServerStartTime: time.Now()}

	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docvcs_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)
	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docvcs_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docvcs_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docvcs_operations_total",
			Help: "Total number of engine operations by outcome",
		},
		[]string{"operation", "status"},
	)
	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docvcs_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
	m.VersionsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docvcs_versions_created_total",
			Help: "Total number of versions created by kind",
		},
		[]string{"kind"},
	)
	m.MergesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docvcs_merges_total",
			Help: "Total number of merges by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)
	m.MergeConflicts = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "docvcs_merge_conflict_regions_total",
			Help: "Total number of conflicting regions seen by merges",
		},
	)
	m.DocumentsTotal = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "docvcs_documents",
			Help: "Number of documents in the repository",
		},
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "docvcs_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)
	return m
}

// RecordGrpcRequest records a finished gRPC call.
func (m *Metrics) RecordGrpcRequest(method, code string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, code).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *Metrics) RecordOperation(op, status string, d time.Duration) {
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) RecordVersionCreated(kind model.VersionKind) {
	m.VersionsCreated.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) RecordMerge(strategy model.MergeStrategy, outcome string, conflicts int) {
	m.MergesTotal.WithLabelValues(string(strategy), outcome).Inc()
	m.MergeConflicts.Add(float64(conflicts))
}

func (m *Metrics) RecordDocumentCreated() {
	m.DocumentsTotal.Inc()
}

// SetDocuments seeds the document gauge, e.g. after opening a repository.
func (m *Metrics) SetDocuments(n int) {
	m.DocumentsTotal.Set(float64(n))
}
