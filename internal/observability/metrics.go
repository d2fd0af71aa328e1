package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vistalink",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total procedure calls per site and outcome.",
		},
		[]string{"site", "rpc", "outcome"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vistalink",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Procedure call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"site", "rpc", "outcome"},
	)
	poolInUse = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vistalink",
			Subsystem: "pool",
			Name:      "connections_in_use",
			Help:      "Connections currently checked out per site.",
		},
		[]string{"site"},
	)
	poolIdle = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vistalink",
			Subsystem: "pool",
			Name:      "connections_idle",
			Help:      "Idle ready connections per site.",
		},
		[]string{"site"},
	)
	mergeConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vistalink",
			Subsystem: "aggregate",
			Name:      "conflicts_total",
			Help:      "Divergent field values detected during merge.",
		},
		[]string{"domain"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vistalink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vistalink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			rpcCalls, rpcDuration, poolInUse, poolIdle,
			mergeConflicts, httpRequests, httpDuration,
		)
	})
}

func RecordCall(site, rpc, outcome string, duration time.Duration) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(site, rpc, outcome).Inc()
	rpcDuration.WithLabelValues(site, rpc, outcome).Observe(duration.Seconds())
}

func SetPoolGauges(site string, inUse, idle int) {
	RegisterMetrics()
	poolInUse.WithLabelValues(site).Set(float64(inUse))
	poolIdle.WithLabelValues(site).Set(float64(idle))
}

func RecordConflicts(domain string, count int) {
	RegisterMetrics()
	if count > 0 {
		mergeConflicts.WithLabelValues(domain).Add(float64(count))
	}
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
