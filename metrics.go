package resilience

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the outbound-call
// lifecycle and the reliability layers. All record methods are safe on a
// nil collector, so instrumented code needs no guards. It is safe for
// concurrent use.
type MetricsCollector struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight prometheus.Gauge

	retriesTotal        *prometheus.CounterVec
	retryBudgetExceeded prometheus.Counter

	circuitBreakerState      *prometheus.GaugeVec
	circuitBreakerRejections *prometheus.CounterVec

	rateLimiterQueueLength *prometheus.GaugeVec

	deduplicationHits prometheus.Counter

	errorsTotal *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registerer prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		callsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstudio_outbound_calls_total",
				Help: "Total number of outbound calls executed",
			},
			[]string{"outcome"},
		),
		callDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatstudio_outbound_call_duration_seconds",
				Help:    "Duration of outbound calls in seconds, including retries and queueing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		callsInFlight: promauto.With(registerer).NewGauge(
			prometheus.GaugeOpts{
				Name: "chatstudio_outbound_calls_in_flight",
				Help: "Number of outbound calls currently in flight",
			},
		),
		retriesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstudio_outbound_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"attempt"},
		),
		retryBudgetExceeded: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "chatstudio_outbound_retry_budget_exceeded_total",
				Help: "Total number of retries suppressed by an exhausted retry budget",
			},
		),
		circuitBreakerState: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatstudio_outbound_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		circuitBreakerRejections: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstudio_outbound_circuit_breaker_rejections_total",
				Help: "Total number of calls rejected by an open circuit breaker",
			},
			[]string{"name"},
		),
		rateLimiterQueueLength: promauto.With(registerer).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatstudio_outbound_rate_limiter_queue_length",
				Help: "Number of callers currently queued by the rate limiter",
			},
			[]string{"name"},
		),
		deduplicationHits: promauto.With(registerer).NewCounter(
			prometheus.CounterOpts{
				Name: "chatstudio_outbound_deduplication_hits_total",
				Help: "Total number of calls coalesced onto an in-flight execution",
			},
		),
		errorsTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatstudio_outbound_errors_total",
				Help: "Total number of errors encountered, by error type",
			},
			[]string{"type"},
		),
		registerer: registerer,
	}
}

// RecordCall records an outcome and duration for one logical call.
func (mc *MetricsCollector) RecordCall(outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.callsTotal.WithLabelValues(outcome).Inc()
	mc.callDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordCallStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordCallStart() {
	if mc == nil {
		return
	}

	mc.callsInFlight.Inc()
}

// RecordCallEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordCallEnd() {
	if mc == nil {
		return
	}

	mc.callsInFlight.Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(strconv.Itoa(attempt)).Inc()
}

// RecordRetryBudgetExceeded increments the suppressed-retry counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded() {
	if mc == nil {
		return
	}

	mc.retryBudgetExceeded.Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordCircuitBreakerRejection increments the breaker rejection counter.
func (mc *MetricsCollector) RecordCircuitBreakerRejection(name string) {
	if mc == nil {
		return
	}

	mc.circuitBreakerRejections.WithLabelValues(name).Inc()
}

// RecordRateLimiterQueueLength sets the queued-callers gauge.
func (mc *MetricsCollector) RecordRateLimiterQueueLength(name string, length int) {
	if mc == nil {
		return
	}

	mc.rateLimiterQueueLength.WithLabelValues(name).Set(float64(length))
}

// RecordDeduplicationHit increments the coalesced-call counter.
func (mc *MetricsCollector) RecordDeduplicationHit() {
	if mc == nil {
		return
	}

	mc.deduplicationHits.Inc()
}

// RecordError increments the error counter by type.
func (mc *MetricsCollector) RecordError(errorType string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType).Inc()
}

// Registerer exposes the registerer metrics were registered with.
func (mc *MetricsCollector) Registerer() prometheus.Registerer {
	return mc.registerer
}
