// Package observability provides monitoring and debugging capabilities for
// the inference gateway through metrics, structured logging, and distributed
// tracing.
//
// # Overview
//
// The observability package implements the three pillars of observability:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//  3. Tracing - Distributed request tracing with OpenTelemetry
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Inference call outcomes by function and variant
//   - Per-model-call latency and token usage
//   - Cross-variant fallback attempts
//   - Rate-limit rejections and response cache hit rate
//   - HTTP request/response metrics
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	start := time.Now()
//	// ... call the provider ...
//	metrics.RecordModelCall("anthropic", "claude-3-opus", "success",
//	    time.Since(start).Seconds(), promptTokens, completionTokens)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddEpisodeID(ctx, episodeID)
//
//	logger.Info(ctx, "dispatching inference",
//	    "function", functionName,
//	    "variant", variantName,
//	)
//
//	logger.Error(ctx, "model call failed",
//	    "error", err,
//	    "provider", "anthropic",
//	    "api_key", apiKey, // automatically redacted
//	)
//
// # Tracing
//
// Distributed tracing uses OpenTelemetry to track requests across components:
//
//	tracer, shutdown := observability.NewTracer(observability.TraceConfig{
//	    ServiceName:    "gatewayd",
//	    ServiceVersion: "1.0.0",
//	    Environment:    "production",
//	    Endpoint:       "localhost:4317", // OTLP collector
//	    SamplingRate:   0.1,
//	})
//	defer shutdown(context.Background())
//
//	ctx, span := tracer.TraceInference(ctx, functionName, variantName, episodeID)
//	defer span.End()
//
//	ctx, callSpan := tracer.TraceModelCall(ctx, "anthropic", "claude-3-opus")
//	defer callSpan.End()
//	if err != nil {
//	    tracer.RecordError(callSpan, err)
//	}
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (Anthropic, OpenAI, generic)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// # Performance
//
// Metrics use lock-free counters where possible, slog logging is a handful
// of microseconds per call, and tracing supports sampling to bound overhead
// in high-throughput deployments.
package observability
