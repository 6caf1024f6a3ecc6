package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiolink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "radiolink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	stateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiolink",
			Subsystem: "transport",
			Name:      "state_changes_total",
			Help:      "Transport power state transitions.",
		},
		[]string{"state"},
	)
	sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiolink",
			Subsystem: "transport",
			Name:      "sends_total",
			Help:      "Message transmit attempts by channel class and result.",
		},
		[]string{"class", "result"},
	)
	flowWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "radiolink",
			Subsystem: "transport",
			Name:      "flow_wait_duration_seconds",
			Help:      "Time spent waiting for the peer's flow go.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	recoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "radiolink",
			Subsystem: "transport",
			Name:      "recoveries_total",
			Help:      "Automated recovery attempts by trigger and result.",
		},
		[]string{"trigger", "result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, stateChanges, sends,
			flowWaitDuration, recoveries)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordStateChange(state string) {
	RegisterMetrics()
	stateChanges.WithLabelValues(state).Inc()
}

func RecordSend(class string, result string) {
	RegisterMetrics()
	sends.WithLabelValues(class, result).Inc()
}

func RecordFlowWait(duration time.Duration) {
	RegisterMetrics()
	flowWaitDuration.Observe(duration.Seconds())
}

func RecordRecovery(trigger string, success bool) {
	RegisterMetrics()
	result := "failed"
	if success {
		result = "recovered"
	}
	recoveries.WithLabelValues(trigger, result).Inc()
}
