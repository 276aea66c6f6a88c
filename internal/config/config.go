// Package config loads the gateway's YAML configuration file into the
// runtime shapes pkg/inference, internal/modeltable and internal/cache
// expect. It is deliberately the only package that knows about the file
// on disk: everything downstream works with plain structs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/gateway/internal/modeltable"
	"github.com/haasonsaas/gateway/internal/ratelimit"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// Config is the root of a gateway configuration file.
type Config struct {
	Version   int                        `yaml:"version"`
	Gateway   GatewayConfig              `yaml:"gateway"`
	Models    map[string]ModelConfig     `yaml:"models"`
	Functions map[string]FunctionConfig  `yaml:"functions"`
}

// GatewayConfig holds server-wide settings that aren't specific to any one
// function or model.
type GatewayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// GlobalOutboundHTTPTimeout bounds every outbound provider call; a
	// per-provider or per-variant timeout greater than this is a config
	// error, checked in validateConfig.
	GlobalOutboundHTTPTimeout time.Duration `yaml:"global_outbound_http_timeout"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Cache         CacheConfig            `yaml:"cache"`
	RateLimit     ratelimit.Config       `yaml:"rate_limit"`
	Breaker       modeltable.BreakerConfig `yaml:"circuit_breaker"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

// ObservabilityConfig governs the ambient metrics/logging/tracing stack;
// unlike Cache/RateLimit/Breaker it has no effect on inference semantics.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// TracingEndpoint is the OTLP collector address (e.g. "localhost:4317").
	// Tracing is disabled (no-op tracer) when empty.
	TracingEndpoint string  `yaml:"tracing_endpoint"`
	TracingSampling float64 `yaml:"tracing_sampling_rate"`
	Environment     string  `yaml:"environment"`
}

// CacheConfig configures the process-local response cache (internal/cache);
// it governs capacity and eviction only, never the per-call cache_options
// mode, which is a request-level choice (spec.md §6.1).
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// Load reads path (plus any $include'd files), decodes it strictly against
// Config, fills in defaults, and validates cross-field invariants.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("GATEWAYD_HOST")); value != "" {
		cfg.Gateway.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("GATEWAYD_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Gateway.Port = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("GATEWAYD_OTEL_ENDPOINT")); value != "" {
		cfg.Gateway.Observability.TracingEndpoint = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "0.0.0.0"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 3000
	}
	if cfg.Gateway.GlobalOutboundHTTPTimeout == 0 {
		cfg.Gateway.GlobalOutboundHTTPTimeout = 90 * time.Second
	}
	if cfg.Gateway.ShutdownTimeout == 0 {
		cfg.Gateway.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Gateway.Cache.MaxSize == 0 {
		cfg.Gateway.Cache.MaxSize = 10000
	}
	if cfg.Gateway.Breaker.FailureThreshold == 0 && cfg.Gateway.Breaker.OpenDuration == 0 {
		cfg.Gateway.Breaker = modeltable.DefaultBreakerConfig()
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond == 0 && cfg.Gateway.RateLimit.BurstSize == 0 {
		cfg.Gateway.RateLimit = ratelimit.DefaultConfig()
		cfg.Gateway.RateLimit.Enabled = false
	}
	if cfg.Gateway.Observability.LogLevel == "" {
		cfg.Gateway.Observability.LogLevel = "info"
	}
	if cfg.Gateway.Observability.LogFormat == "" {
		cfg.Gateway.Observability.LogFormat = "json"
	}
	if cfg.Gateway.Observability.TracingSampling == 0 {
		cfg.Gateway.Observability.TracingSampling = 1.0
	}
	if cfg.Gateway.Observability.Environment == "" {
		cfg.Gateway.Observability.Environment = "production"
	}

	for name, model := range cfg.Models {
		for i := range model.Providers {
			if model.Providers[i].Timeout == 0 {
				model.Providers[i].Timeout = cfg.Gateway.GlobalOutboundHTTPTimeout
			}
		}
		cfg.Models[name] = model
	}
}

// ConfigValidationError collects every problem found in one pass, rather
// than failing on the first, so an operator can fix a config file in one
// edit instead of one error at a time.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	var issues []string

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, "gateway.port must be between 0 and 65535")
	}

	for name, model := range cfg.Models {
		if len(model.Providers) == 0 {
			issues = append(issues, fmt.Sprintf("models.%s must declare at least one provider", name))
		}
		for i, p := range model.Providers {
			if p.Timeout > cfg.Gateway.GlobalOutboundHTTPTimeout {
				issues = append(issues, fmt.Sprintf(
					"models.%s.providers[%d].timeout (%s) exceeds gateway.global_outbound_http_timeout (%s)",
					name, i, p.Timeout, cfg.Gateway.GlobalOutboundHTTPTimeout))
			}
			if !validProviderType(p.Type) {
				issues = append(issues, fmt.Sprintf("models.%s.providers[%d].type %q is not a known provider", name, i, p.Type))
			}
		}
	}

	for name, fn := range cfg.Functions {
		if fn.Type != "chat" && fn.Type != "json" {
			issues = append(issues, fmt.Sprintf("functions.%s.type must be \"chat\" or \"json\"", name))
		}
		if fn.Type == "json" && fn.OutputSchema.Kind == 0 {
			issues = append(issues, fmt.Sprintf("functions.%s requires output_schema for a json function", name))
		}
		if len(fn.Variants) == 0 {
			issues = append(issues, fmt.Sprintf("functions.%s must declare at least one variant", name))
		}
		for vName, v := range fn.Variants {
			if v.Timeout > cfg.Gateway.GlobalOutboundHTTPTimeout {
				issues = append(issues, fmt.Sprintf(
					"functions.%s.variants.%s.timeout (%s) exceeds gateway.global_outbound_http_timeout (%s)",
					name, vName, v.Timeout, cfg.Gateway.GlobalOutboundHTTPTimeout))
			}
			if v.Type != "dicl" && v.Model != "" {
				if _, ok := cfg.Models[v.Model]; !ok {
					issues = append(issues, fmt.Sprintf("functions.%s.variants.%s references unknown model %q", name, vName, v.Model))
				}
			}
		}
	}

	switch cfg.Gateway.Observability.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("gateway.observability.log_level %q must be one of debug, info, warn, error", cfg.Gateway.Observability.LogLevel))
	}
	switch cfg.Gateway.Observability.LogFormat {
	case "json", "text":
	default:
		issues = append(issues, fmt.Sprintf("gateway.observability.log_format %q must be \"json\" or \"text\"", cfg.Gateway.Observability.LogFormat))
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func validProviderType(t string) bool {
	switch inference.ProviderType(t) {
	case inference.ProviderOpenAI, inference.ProviderAnthropic, inference.ProviderAzure,
		inference.ProviderGemini, inference.ProviderBedrock, inference.ProviderOllama,
		inference.ProviderOpenRouter, inference.ProviderDummy:
		return true
	default:
		return false
	}
}
