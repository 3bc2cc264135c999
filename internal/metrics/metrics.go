package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_stage_duration_seconds",
			Help:    "Wall-clock duration of stage executions as seen by the caller",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"stage", "outcome"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_stage_failures_total",
			Help: "Stage failures by kind",
		},
		[]string{"stage", "kind"},
	)

	// AbandonedJobs counts jobs still running after their caller timed out.
	AbandonedJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_abandoned_jobs_total",
			Help: "Jobs whose result was discarded because the deadline elapsed first",
		},
		[]string{"stage"},
	)

	PoolInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommend_pool_in_flight",
			Help: "Jobs currently executing on a stage worker pool",
		},
		[]string{"stage"},
	)

	PoolQueueWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommend_pool_queue_wait_seconds",
			Help:    "Time a job waited for a free worker",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_gateway_requests_total",
			Help: "Calls to the generative text service by outcome",
		},
		[]string{"provider", "outcome"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recommend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommend_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)
