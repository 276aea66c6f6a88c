// Package modeltable dispatches a model inference request across a model's
// configured provider chain, applying per-provider timeouts, retries and a
// circuit breaker so a failing provider is skipped rather than retried
// forever.
package modeltable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/gateway/internal/cache"
	"github.com/haasonsaas/gateway/internal/observability"
	"github.com/haasonsaas/gateway/internal/providers"
	"github.com/haasonsaas/gateway/internal/retry"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// BreakerConfig controls when a provider is temporarily skipped after
// repeated failures.
type BreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, OpenDuration: 30 * time.Second}
}

type providerState struct {
	failures    int
	circuitOpen bool
	openedAt    time.Time
}

func (s *providerState) available(cfg BreakerConfig) bool {
	if !s.circuitOpen {
		return true
	}
	return time.Since(s.openedAt) > cfg.OpenDuration
}

// Table dispatches requests for a single logical model across its ordered
// provider chain.
type Table struct {
	model    inference.ModelConfig
	registry *providers.Registry
	breaker  BreakerConfig
	retry    retry.Config
	cache    *cache.ResponseCache
	metrics  *observability.Metrics

	mu     sync.Mutex
	states map[string]*providerState
}

// SetCache wires a shared response cache into the table. A nil cache (the
// default) means every call behaves as if cache_options were Off.
func (t *Table) SetCache(c *cache.ResponseCache) {
	t.cache = c
}

// SetMetrics wires cache-hit/miss reporting into the table. A nil metrics
// (the default) disables recording entirely.
func (t *Table) SetMetrics(m *observability.Metrics) {
	t.metrics = m
}

func New(model inference.ModelConfig, registry *providers.Registry, breaker BreakerConfig) *Table {
	return &Table{
		model:    model,
		registry: registry,
		breaker:  breaker,
		retry:    retry.Exponential(3, 200*time.Millisecond, 5*time.Second),
		states:   make(map[string]*providerState),
	}
}

func (t *Table) stateFor(key string) *providerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[key]
	if !ok {
		s = &providerState{}
		t.states[key] = s
	}
	return s
}

func (t *Table) recordSuccess(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[key]; ok {
		s.failures = 0
		s.circuitOpen = false
	}
}

func (t *Table) recordFailure(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[key]
	if !ok {
		s = &providerState{}
		t.states[key] = s
	}
	s.failures++
	if s.failures >= t.breaker.FailureThreshold {
		s.circuitOpen = true
		s.openedAt = time.Now()
	}
}

func providerKey(p inference.ProviderConfig) string {
	return string(p.Type) + ":" + p.ModelName
}

// Infer runs a non-streaming request against the model's provider chain,
// failing over to the next provider when an error's ShouldFailover is true.
// mode governs whether a cache lookup/store brackets the provider call, per
// spec.md §4.7; fingerprint covers model identity, the rendered request and
// req.ExtraCacheKey, so distinct candidates of a best-of-N variant never
// collide on cache key despite sharing a model.
func (t *Table) Infer(ctx context.Context, req *inference.ModelInferenceRequest, mode cache.Mode) (*inference.ModelInferenceResult, error) {
	var fingerprint string
	if t.cache != nil {
		fingerprint = t.requestFingerprint(req)
		if cached, ok := t.cache.Lookup(mode, fingerprint); ok {
			if t.metrics != nil {
				t.metrics.RecordCacheLookup(true)
			}
			result := cached
			return &result, nil
		}
		if t.metrics != nil && (mode == cache.ModeOn || mode == cache.ModeReadOnly) {
			t.metrics.RecordCacheLookup(false)
		}
	}

	result, err := t.inferUncached(ctx, req)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		t.cache.Store(mode, fingerprint, *result)
	}
	return result, nil
}

// requestFingerprint serializes req (the uniform pre-provider request,
// standing in for spec.md §4.7's "rendered request payload") alongside the
// model's logical name.
func (t *Table) requestFingerprint(req *inference.ModelInferenceRequest) string {
	body, err := json.Marshal(req)
	if err != nil {
		return cache.Fingerprint(t.model.Name, req.ExtraCacheKey, "")
	}
	return cache.Fingerprint(t.model.Name, string(body), req.ExtraCacheKey)
}

func (t *Table) inferUncached(ctx context.Context, req *inference.ModelInferenceRequest) (*inference.ModelInferenceResult, error) {
	var lastErr error
	for _, pc := range t.model.Providers {
		key := providerKey(pc)
		state := t.stateFor(key)
		if !state.available(t.breaker) {
			continue
		}

		adapter, err := t.registry.Get(pc.Type)
		if err != nil {
			lastErr = err
			continue
		}

		result, err := t.inferWithTimeout(ctx, adapter, req, pc)
		if err == nil {
			t.recordSuccess(key)
			result.ProviderName = key
			return result, nil
		}

		lastErr = err
		t.recordFailure(key)

		infErr, ok := inference.AsError(err)
		if ok && !infErr.ShouldFailover() {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = inference.New(inference.ErrInferenceServer, "model %q has no configured providers", t.model.Name)
	}
	return nil, fmt.Errorf("model %q: all providers exhausted: %w", t.model.Name, lastErr)
}

// inferWithTimeout issues one provider call, retrying within this same
// provider (bounded attempts, exponential backoff) while the error
// classifies as Retryable, per spec.md §4.3. This is distinct from the
// model table's cross-provider failover in Infer: a retryable-but-not-
// failover-worthy error (e.g. a transient 5xx) is retried here before
// Infer's loop ever considers moving to the next provider.
func (t *Table) inferWithTimeout(ctx context.Context, adapter providers.Adapter, req *inference.ModelInferenceRequest, pc inference.ProviderConfig) (*inference.ModelInferenceResult, error) {
	call := func() (*inference.ModelInferenceResult, error) {
		if pc.Timeout <= 0 {
			return adapter.Infer(ctx, req, pc, nil)
		}
		timeoutCtx, cancel := context.WithTimeout(ctx, pc.Timeout)
		defer cancel()
		return adapter.Infer(timeoutCtx, req, pc, nil)
	}

	result, rerr := retry.DoWithValue(ctx, t.retry, func() (*inference.ModelInferenceResult, error) {
		res, err := call()
		if err != nil {
			if infErr, ok := inference.AsError(err); ok && !infErr.Retryable() {
				return nil, retry.Permanent(err)
			}
			return nil, err
		}
		return res, nil
	})
	if rerr.Err != nil {
		return nil, rerr.Err
	}
	return result, nil
}

// InferStream runs a streaming request against the model's provider chain,
// returning the chosen provider's config alongside the stream so the
// caller can attribute the eventual record to it. Unlike Infer, a
// mid-stream failure cannot transparently fail over once content has
// already been emitted to the caller; failover is only attempted if the
// initial stream setup fails before any chunk is sent.
func (t *Table) InferStream(ctx context.Context, req *inference.ModelInferenceRequest) (<-chan providers.StreamEvent, string, inference.ProviderConfig, error) {
	var lastErr error
	for _, pc := range t.model.Providers {
		key := providerKey(pc)
		state := t.stateFor(key)
		if !state.available(t.breaker) {
			continue
		}

		adapter, err := t.registry.Get(pc.Type)
		if err != nil {
			lastErr = err
			continue
		}

		stream, rawReq, err := adapter.InferStream(ctx, req, pc, nil)
		if err == nil {
			t.recordSuccess(key)
			return stream, rawReq, pc, nil
		}

		lastErr = err
		t.recordFailure(key)

		infErr, ok := inference.AsError(err)
		if ok && !infErr.ShouldFailover() {
			return nil, rawReq, pc, err
		}
	}
	if lastErr == nil {
		lastErr = inference.New(inference.ErrInferenceServer, "model %q has no configured providers", t.model.Name)
	}
	return nil, "", inference.ProviderConfig{}, fmt.Errorf("model %q: all providers exhausted: %w", t.model.Name, lastErr)
}

// Embed runs an embedding request against the model's provider chain.
func (t *Table) Embed(ctx context.Context, req *inference.EmbeddingRequest) (*inference.ModelInferenceResult, error) {
	var lastErr error
	for _, pc := range t.model.Providers {
		key := providerKey(pc)
		state := t.stateFor(key)
		if !state.available(t.breaker) {
			continue
		}
		adapter, err := t.registry.Get(pc.Type)
		if err != nil {
			lastErr = err
			continue
		}
		result, err := adapter.Embed(ctx, req, pc, nil)
		if err == nil {
			t.recordSuccess(key)
			return result, nil
		}
		lastErr = err
		t.recordFailure(key)
		infErr, ok := inference.AsError(err)
		if ok && !infErr.ShouldFailover() {
			return nil, err
		}
	}
	if lastErr == nil {
		lastErr = inference.New(inference.ErrInferenceServer, "model %q has no configured providers", t.model.Name)
	}
	return nil, fmt.Errorf("model %q: all providers exhausted: %w", t.model.Name, lastErr)
}

// Registry holds one Table per configured model name.
type Registry struct {
	tables  map[string]*Table
	cache   *cache.ResponseCache
	metrics *observability.Metrics
}

func NewRegistry() *Registry { return &Registry{tables: make(map[string]*Table)} }

// SetCache wires a shared response cache into the registry and every table
// already added to it; tables added afterward pick it up automatically.
func (r *Registry) SetCache(c *cache.ResponseCache) {
	r.cache = c
	for _, t := range r.tables {
		t.SetCache(c)
	}
}

// SetMetrics wires cache-hit/miss reporting into the registry and every
// table already added to it; tables added afterward pick it up automatically.
func (r *Registry) SetMetrics(m *observability.Metrics) {
	r.metrics = m
	for _, t := range r.tables {
		t.SetMetrics(m)
	}
}

func (r *Registry) Add(model inference.ModelConfig, adapters *providers.Registry, breaker BreakerConfig) {
	t := New(model, adapters, breaker)
	t.SetCache(r.cache)
	t.SetMetrics(r.metrics)
	r.tables[model.Name] = t
}

func (r *Registry) Get(modelName string) (*Table, error) {
	t, ok := r.tables[modelName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownModel, "model %q is not configured", modelName)
	}
	return t, nil
}
