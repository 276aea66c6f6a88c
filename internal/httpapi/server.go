// Package httpapi exposes the orchestrator's infer()/infer_stream() entry
// points over HTTP, per spec.md §6: POST /inference (JSON or SSE depending
// on stream), plus /healthz and /metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/gateway/internal/orchestrator"
)

// Config controls the HTTP server's listen address and timeouts.
type Config struct {
	Host string
	Port int

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (c Config) addr() string {
	host := c.Host
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// Server wraps the orchestrator behind an HTTP mux. It is started and
// stopped explicitly (no signal handling of its own); cmd/gatewayd owns
// the process lifecycle.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	cfg    Config

	httpServer *http.Server
	listener   net.Listener
}

func New(orch *orchestrator.Orchestrator, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, cfg: cfg, logger: logger}
}

func (s *Server) mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", s.instrument("/healthz", http.HandlerFunc(s.handleHealthz)))
	mux.Handle("/inference", s.instrument("/inference", http.HandlerFunc(s.handleInference)))
	return mux
}

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush delegates to the wrapped ResponseWriter's http.Flusher, so
// instrumenting a handler doesn't break SSE streaming in handleInferStream.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument wraps a handler with the orchestrator's HTTP request metrics
// and tracing span, when those observability seams are set; a nil
// Metrics/Tracer (the default for an Orchestrator built by
// orchestrator.New without further wiring) makes this a passthrough.
func (s *Server) instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.orch.Tracer != nil {
			var span trace.Span
			ctx, span = s.orch.Tracer.TraceHTTPRequest(ctx, r.Method, path)
			defer span.End()
			r = r.WithContext(ctx)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		if s.orch.Metrics != nil {
			s.orch.Metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start).Seconds())
		}
	})
}

// Start begins serving and returns once the listener is bound; the serve
// loop itself runs in a background goroutine, matching the teacher's
// startHTTPServer/stopHTTPServer split so the caller can bind synchronously
// but shut down independently.
func (s *Server) Start(ctx context.Context) error {
	addr := s.cfg.addr()
	readHeaderTimeout := s.cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           s.mux(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down, waiting up to cfg.ShutdownTimeout
// (default 5s) for in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"functions": len(s.orch.Functions),
	})
}
