package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting gateway metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Inference requests by function, variant, and outcome
//   - Per-model-call latency, token usage, and estimated cost
//   - Fallback attempts across variants
//   - Rate-limit rejections
//   - HTTP request latency
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	defer metrics.RecordModelCall("openai", "gpt-4o", "success", time.Since(start).Seconds(), 100, 500)
type Metrics struct {
	// InferenceCounter counts inference calls by function, variant, and status.
	// Labels: function, variant, status (success|error)
	InferenceCounter *prometheus.CounterVec

	// InferenceDuration measures end-to-end inference latency in seconds.
	// Labels: function, variant
	InferenceDuration *prometheus.HistogramVec

	// ModelCallCounter counts individual model calls by provider, model, and status.
	// Labels: provider, model, status (success|error)
	ModelCallCounter *prometheus.CounterVec

	// ModelCallDuration measures individual model call latency in seconds.
	// Labels: provider, model
	ModelCallDuration *prometheus.HistogramVec

	// ModelTokensUsed tracks token consumption by provider, model, and type.
	// Labels: provider, model, type (prompt|completion)
	ModelTokensUsed *prometheus.CounterVec

	// FallbackCounter counts cross-variant fallback attempts.
	// Labels: function, from_variant
	FallbackCounter *prometheus.CounterVec

	// RateLimitRejections counts requests rejected by the rate limiter.
	// Labels: scope
	RateLimitRejections *prometheus.CounterVec

	// CacheCounter counts response cache lookups.
	// Labels: outcome (hit|miss)
	CacheCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
//
// All metrics are automatically registered with Prometheus's default registry
// and are served at /metrics by httpapi's promhttp handler.
func NewMetrics() *Metrics {
	return &Metrics{
		InferenceCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_inference_requests_total",
				Help: "Total number of inference calls by function, variant, and status",
			},
			[]string{"function", "variant", "status"},
		),

		InferenceDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatewayd_inference_duration_seconds",
				Help:    "End-to-end inference latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"function", "variant"},
		),

		ModelCallCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_model_calls_total",
				Help: "Total number of model calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		ModelCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatewayd_model_call_duration_seconds",
				Help:    "Duration of individual model calls in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		ModelTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_model_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		FallbackCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_fallback_attempts_total",
				Help: "Total number of cross-variant fallback attempts by function and originating variant",
			},
			[]string{"function", "from_variant"},
		),

		RateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the rate limiter, by scope",
			},
			[]string{"scope"},
		),

		CacheCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_cache_lookups_total",
				Help: "Total number of response cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatewayd_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatewayd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordInference records the outcome of a top-level inference call.
func (m *Metrics) RecordInference(function, variant, status string, durationSeconds float64) {
	m.InferenceCounter.WithLabelValues(function, variant, status).Inc()
	m.InferenceDuration.WithLabelValues(function, variant).Observe(durationSeconds)
}

// RecordModelCall records metrics for a single model call.
//
// Example:
//
//	start := time.Now()
//	// ... call the provider ...
//	metrics.RecordModelCall("anthropic", "claude-3-opus", "success", time.Since(start).Seconds(), 100, 500)
func (m *Metrics) RecordModelCall(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.ModelCallCounter.WithLabelValues(provider, model, status).Inc()
	m.ModelCallDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ModelTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordFallback records a cross-variant fallback attempt.
func (m *Metrics) RecordFallback(function, fromVariant string) {
	m.FallbackCounter.WithLabelValues(function, fromVariant).Inc()
}

// RecordRateLimitRejection records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimitRejection(scope string) {
	m.RateLimitRejections.WithLabelValues(scope).Inc()
}

// RecordCacheLookup records a response cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheCounter.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
