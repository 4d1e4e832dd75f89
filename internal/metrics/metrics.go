package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests.",
		},
		[]string{"path", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of latencies for HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	// Reconciler (C2) metrics.
	MirrorsAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mirrorsqa_reconciler_mirrors_added_total", Help: "Mirrors newly inserted or re-enabled by reconciliation."},
	)
	MirrorsDisabledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mirrorsqa_reconciler_mirrors_disabled_total", Help: "Mirrors disabled by reconciliation."},
	)
	ReconcileDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "mirrorsqa_reconciler_duration_seconds", Help: "Wall-clock duration of a reconciliation pass.", Buckets: prometheus.DefBuckets},
	)

	// Scheduler (C5) metrics.
	TestsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mirrorsqa_scheduler_tests_expired_total", Help: "Tests transitioned PENDING -> MISSED by the expiry step."},
	)
	TestsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mirrorsqa_scheduler_tests_created_total", Help: "Tests created by the fan-out step."},
	)
	SchedulerTickDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "mirrorsqa_scheduler_tick_duration_seconds", Help: "Duration of one scheduler tick.", Buckets: prometheus.DefBuckets},
	)
	SchedulerTickErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mirrorsqa_scheduler_tick_errors_total", Help: "Scheduler ticks that aborted with an error."},
	)

	// Worker manager (C6) metrics.
	TunnelUp = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "mirrorsqa_manager_tunnel_up", Help: "1 if the tunnel's last healthcheck succeeded, else 0."},
	)
	TestsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mirrorsqa_manager_tests_submitted_total", Help: "Tests submitted back to the backend, by outcome."},
		[]string{"outcome"},
	)
	TestsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mirrorsqa_manager_tests_skipped_total", Help: "Tests skipped because no healthy tunnel config was found."},
	)
)

func init() { RegisterAll() }

var registerOnce sync.Once

// RegisterAll registers all metrics on the current default Prometheus registry.
// Only the first call registers; later calls are no-ops.
func RegisterAll() {
	registerOnce.Do(registerAll)
}

func registerAll() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MirrorsAddedTotal,
		MirrorsDisabledTotal,
		ReconcileDurationSeconds,
		TestsExpiredTotal,
		TestsCreatedTotal,
		SchedulerTickDurationSeconds,
		SchedulerTickErrorsTotal,
		TunnelUp,
		TestsSubmittedTotal,
		TestsSkippedTotal,
	)
}

// GinMiddleware records basic Prometheus metrics for HTTP requests.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		c.Next()
		status := c.Writer.Status()

		HTTPRequestsTotal.WithLabelValues(path, method, itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the promhttp handler.
func Handler() http.Handler { return promhttp.Handler() }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return sign + string(buf[i:])
}
