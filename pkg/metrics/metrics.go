package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	AgentsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ankaios_agents_connected",
			Help: "Number of agents currently connected to the server",
		},
	)

	WorkloadsDesiredTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ankaios_workloads_desired_total",
			Help: "Total number of workloads in the desired state",
		},
	)

	WorkloadInstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ankaios_workload_instances_total",
			Help: "Total number of workload instances by execution state",
		},
		[]string{"state"},
	)

	// Server API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ankaios_api_requests_total",
			Help: "Total number of control interface requests by kind and status",
		},
		[]string{"kind", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ankaios_api_request_duration_seconds",
			Help:    "Control interface request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ankaios_reconciliation_duration_seconds",
			Help:    "Time taken for a server reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ankaios_reconciliation_cycles_total",
			Help: "Total number of reconciliation passes completed",
		},
	)

	UpdateStateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ankaios_update_state_duration_seconds",
			Help:    "Time taken to apply an UpdateState request in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Agent control loop metrics
	WorkloadCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ankaios_workload_create_duration_seconds",
			Help:    "Time taken for a runtime adaptor to create a workload in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	WorkloadDeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ankaios_workload_delete_duration_seconds",
			Help:    "Time taken for a runtime adaptor to delete a workload in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ControlLoopRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ankaios_control_loop_retries_total",
			Help: "Total number of control loop create retries by workload",
		},
		[]string{"workload"},
	)

	ControlLoopRetryLimitReachedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ankaios_control_loop_retry_limit_reached_total",
			Help: "Total number of control loops that exhausted their retry limit",
		},
	)

	// Transport metrics
	AgentReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ankaios_agent_reconnects_total",
			Help: "Total number of agent reconnect attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(AgentsConnected)
	prometheus.MustRegister(WorkloadsDesiredTotal)
	prometheus.MustRegister(WorkloadInstancesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(UpdateStateDuration)
	prometheus.MustRegister(WorkloadCreateDuration)
	prometheus.MustRegister(WorkloadDeleteDuration)
	prometheus.MustRegister(ControlLoopRetriesTotal)
	prometheus.MustRegister(ControlLoopRetryLimitReachedTotal)
	prometheus.MustRegister(AgentReconnectsTotal)
}

// Handler returns the Prometheus HTTP handler exposed by the server's
// /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with
// labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
