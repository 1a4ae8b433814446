// Package metrics exposes jbapi's Prometheus collectors: queue depth and EMA,
// connector pool occupancy, fleet/host stats published by the autoscaler, and
// request counters for the HTTP gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueueOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jbapi_queue_outstanding",
			Help: "Current number of dispatched-but-unresolved requests, per API",
		},
		[]string{"api_name"},
	)

	QueueMeanOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jbapi_queue_mean_outstanding",
			Help: "Exponentially-weighted moving average of outstanding requests, per API",
		},
		[]string{"api_name"},
	)

	// Connector pool metrics
	ConnectorsIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jbapi_connectors_idle",
			Help: "Idle connectors currently cached in the pool, per API",
		},
		[]string{"api_name"},
	)

	ConnectorTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jbapi_connector_timeouts_total",
			Help: "Total send_recv calls that timed out, per API",
		},
		[]string{"api_name"},
	)

	// Container registry / autoscaler metrics
	ContainersActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jbapi_containers_active",
			Help: "Registered worker containers, per API",
		},
		[]string{"api_name"},
	)

	DesiredCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jbapi_desired_count",
			Help: "Autoscaler's current desired container count, per API",
		},
		[]string{"api_name"},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jbapi_reconciliation_cycles_total",
			Help: "Total number of completed autoscaler reconciliation cycles",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jbapi_reconciliation_duration_seconds",
			Help:    "Duration of one autoscaler reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jbapi_containers_created_total",
			Help: "Total containers created by the autoscaler, per API",
		},
		[]string{"api_name"},
	)

	ContainersTerminatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jbapi_containers_terminated_total",
			Help: "Total terminate commands issued by the autoscaler, per API",
		},
		[]string{"api_name"},
	)

	ContainersStopped = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jbapi_containers_stopped",
			Help: "Non-running containers the last reconciliation cycle failed to reap",
		},
	)

	// Fleet / host stats published by the cloud host each cycle
	FleetLoad = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jbapi_fleet_load",
			Help: "Overall fleet load (max of ContainersUsed, DiskUsed, MemUsed, CpuUsed)",
		},
	)

	CloudHostStat = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jbapi_cloudhost_stat",
			Help: "Raw stats published to the cloud host, by stat name",
		},
		[]string{"stat"},
	)

	// HTTP gateway metrics
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jbapi_http_requests_total",
			Help: "Total HTTP requests handled by the gateway, by api_name and status",
		},
		[]string{"api_name", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jbapi_http_request_duration_seconds",
			Help:    "HTTP gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api_name"},
	)
)

func init() {
	prometheus.MustRegister(
		QueueOutstanding,
		QueueMeanOutstanding,
		ConnectorsIdle,
		ConnectorTimeoutsTotal,
		ContainersActive,
		DesiredCount,
		ReconciliationCyclesTotal,
		ReconciliationDuration,
		ContainersCreatedTotal,
		ContainersTerminatedTotal,
		ContainersStopped,
		FleetLoad,
		CloudHostStat,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
