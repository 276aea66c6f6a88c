// Package main provides the CLI entry point for gatewayd, the inference
// gateway: it mediates application callers and heterogeneous LLM backends,
// dispatching chat_completion, best_of_n_sampling, mixture_of_n,
// chain_of_thought and dicl variants behind a single HTTP interface.
//
// # Basic Usage
//
// Start the server:
//
//	gatewayd serve --config gatewayd.yaml
//
// Validate a configuration file without starting the server:
//
//	gatewayd validate-config --config gatewayd.yaml
//
// # Environment Variables
//
//   - GATEWAYD_CONFIG: path to the configuration file (default: gatewayd.yaml)
//   - GATEWAYD_HOST, GATEWAYD_PORT: override gateway.host/gateway.port
//   - <PROVIDER>_API_KEY style vars named by each model's credentials.env
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/gateway/internal/config"
	"github.com/haasonsaas/gateway/internal/httpapi"
	"github.com/haasonsaas/gateway/internal/observability"
	"github.com/haasonsaas/gateway/internal/orchestrator"
	"github.com/haasonsaas/gateway/internal/ratelimit"
	"github.com/haasonsaas/gateway/internal/records"
	"github.com/haasonsaas/gateway/internal/schema"
	"github.com/haasonsaas/gateway/internal/templating"
	"github.com/haasonsaas/gateway/internal/variant"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gatewayd",
		Short: "gatewayd - inference gateway for heterogeneous LLM backends",
		Long: `gatewayd mediates application callers and LLM backends behind one
interface: variant selection (weighted experimentation + fallback),
template rendering against JSON-schema-validated inputs, variant
execution (chat_completion, best_of_n_sampling, mixture_of_n,
chain_of_thought, dicl), uniform response serialization and streaming,
and durable inference/model-call record emission.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	rootCmd.AddCommand(buildValidateConfigCmd())
	return rootCmd
}

func resolveConfigPath(path string) string {
	if strings.TrimSpace(path) != "" {
		return path
	}
	if env := strings.TrimSpace(os.Getenv("GATEWAYD_CONFIG")); env != "" {
		return env
	}
	return "gatewayd.yaml"
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the inference gateway server",
		Long: `Start the inference gateway server.

The server will:
1. Load and validate configuration from the specified file
2. Build the provider adapter registry and per-model provider chains
3. Embed any statically-configured DICL exemplars
4. Start the HTTP server for inference, health checks and metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  gatewayd serve

  # Start with a custom config
  gatewayd serve --config /etc/gatewayd/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting gatewayd", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !debug {
		slog.SetDefault(slog.New(newSlogHandler(cfg.Gateway.Observability, os.Stderr)))
	}

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "gatewayd",
		ServiceVersion: version,
		Environment:    cfg.Gateway.Observability.Environment,
		Endpoint:       cfg.Gateway.Observability.TracingEndpoint,
		SamplingRate:   cfg.Gateway.Observability.TracingSampling,
	})

	orch, err := buildOrchestrator(ctx, cfg, tracer)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	server := httpapi.New(orch, httpapi.Config{
		Host:              cfg.Gateway.Host,
		Port:              cfg.Gateway.Port,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   cfg.Gateway.ShutdownTimeout,
	}, slog.Default())

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	slog.Info("gatewayd started", "addr", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port), "functions", len(orch.Functions))

	<-ctx.Done()
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()
	server.Stop(shutdownCtx)

	if err := shutdownTracer(shutdownCtx); err != nil {
		slog.Warn("tracer shutdown returned an error", "error", err)
	}

	slog.Info("gatewayd stopped gracefully")
	return nil
}

// newSlogHandler builds the process-wide slog handler from the gateway's
// observability config (log_level/log_format); it's separate from the
// redacting observability.Logger, which the orchestrator uses directly for
// per-call structured logs.
func newSlogHandler(cfg config.ObservabilityConfig, w io.Writer) slog.Handler {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func buildValidateConfigCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a configuration file without starting the server",
		Long: `Load and validate a configuration file: resolves $include directives,
checks it against the current config version, applies defaults, and runs
every cross-field check (provider/variant timeouts against the global
outbound HTTP timeout, variant-to-model references, output schema
presence on json functions). Prints every problem found, not just the
first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d model(s), %d function(s)\n",
				configPath, len(cfg.Models), len(cfg.Functions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

// buildOrchestrator wires one config file into a ready-to-serve
// orchestrator.Orchestrator: provider adapters, per-model provider chains,
// the shared response cache, DICL exemplars, the rate limiter, and the
// metrics/tracing seams (tracer is always non-nil; NewTracer returns a no-op
// implementation when tracing_endpoint is unset).
func buildOrchestrator(ctx context.Context, cfg *config.Config, tracer *observability.Tracer) (*orchestrator.Orchestrator, error) {
	adapters, err := cfg.BuildProviderRegistry(ctx)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()

	responseCache := cfg.BuildCache()
	models := cfg.BuildModelRegistry(adapters, responseCache)
	models.SetMetrics(metrics)

	exemplars, err := cfg.BuildDICLStore(ctx, models)
	if err != nil {
		return nil, err
	}

	functions, err := cfg.ToFunctions()
	if err != nil {
		return nil, err
	}

	deps := variant.Deps{
		Models:    models,
		Templates: templating.New(),
		Validator: schema.New(),
		Exemplars: exemplars,
	}

	orch := orchestrator.New(functions, deps)
	orch.Records = records.NewMemoryEmitter()
	orch.Metrics = metrics
	orch.Tracer = tracer
	orch.Logger = observability.NewLogger(observability.LogConfig{
		Level:  cfg.Gateway.Observability.LogLevel,
		Format: cfg.Gateway.Observability.LogFormat,
	})
	if cfg.Gateway.RateLimit.Enabled {
		orch.Limiter = ratelimit.NewLimiter(cfg.Gateway.RateLimit)
	}
	return orch, nil
}
