package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path, method and status code",
		},
		[]string{"path", "method", "status"},
	)

	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by path",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Name:      "runs_total",
			Help:      "Finished verification runs by final status",
		},
		[]string{"status"},
	)

	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Name:      "stage_failures_total",
			Help:      "Stage failures by stage and error code",
		},
		[]string{"stage", "code"},
	)

	providerReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Name:      "provider_requests_total",
			Help:      "External service calls by service and result",
		},
		[]string{"service", "result"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Name:      "provider_request_duration_seconds",
			Help:      "External service call duration by service",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service"},
	)

	breakerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Name:      "breaker_events_total",
			Help:      "Circuit breaker transitions by service and action",
		},
		[]string{"service", "action"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docverify",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"service"},
	)

	ocrInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docverify",
			Name:      "ocr_inflight",
			Help:      "OCR conversations currently holding a semaphore slot",
		},
	)

	runsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docverify",
			Name:      "runs_inflight",
			Help:      "Verification runs currently admitted",
		},
	)

	dbWriteRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Name:      "db_write_retries_total",
			Help:      "Transient persistence write retries",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(httpReqs, httpLatency, runsTotal, stageLatency, stageFailures,
		providerReqs, providerLatency, breakerEvents, breakerState, ocrInflight, runsInflight, dbWriteRetries)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveHTTP(path, method, status string, dur time.Duration) {
	httpReqs.WithLabelValues(path, method, status).Inc()
	httpLatency.WithLabelValues(path).Observe(dur.Seconds())
}

func RunFinished(status string) { runsTotal.WithLabelValues(status).Inc() }

func ObserveStage(stage string, dur time.Duration) {
	stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

func StageFailed(stage, code string) { stageFailures.WithLabelValues(stage, code).Inc() }

func ObserveProvider(service, result string, dur time.Duration) {
	providerReqs.WithLabelValues(service, result).Inc()
	providerLatency.WithLabelValues(service).Observe(dur.Seconds())
}

func BreakerOpened(service string) {
	breakerEvents.WithLabelValues(service, "opened").Inc()
	breakerState.WithLabelValues(service).Set(2)
}

func BreakerHalfOpen(service string) {
	breakerEvents.WithLabelValues(service, "half_open").Inc()
	breakerState.WithLabelValues(service).Set(1)
}

func BreakerClosed(service string) {
	breakerEvents.WithLabelValues(service, "closed").Inc()
	breakerState.WithLabelValues(service).Set(0)
}

func OCRInflightAdd(delta float64)  { ocrInflight.Add(delta) }
func RunsInflightAdd(delta float64) { runsInflight.Add(delta) }
func IncDBRetry()                   { dbWriteRetries.Inc() }
