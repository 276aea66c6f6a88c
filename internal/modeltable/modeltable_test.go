package modeltable

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/gateway/internal/cache"
	"github.com/haasonsaas/gateway/internal/observability"
	"github.com/haasonsaas/gateway/internal/providers"
	"github.com/haasonsaas/gateway/pkg/inference"
)

func dummyAdapters() *providers.Registry {
	r := providers.NewRegistry()
	r.Register(inference.ProviderDummy, providers.NewDummyProvider())
	return r
}

func TestTableInferSucceedsWithDummyProvider(t *testing.T) {
	tbl := New(inference.ModelConfig{
		Name:      "good-model",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, dummyAdapters(), DefaultBreakerConfig())

	result, err := tbl.Infer(context.Background(), &inference.ModelInferenceRequest{}, cache.ModeOff)
	if err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}
	if result.ProviderType != inference.ProviderDummy {
		t.Fatalf("expected dummy provider result, got %+v", result)
	}
}

func TestTableInferFailsOverAcrossProviders(t *testing.T) {
	tbl := New(inference.ModelConfig{
		Name: "multi-provider-model",
		Providers: []inference.ProviderConfig{
			{Type: inference.ProviderDummy, ModelName: inference.DummyModelError},
			{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood},
		},
	}, dummyAdapters(), DefaultBreakerConfig())

	result, err := tbl.Infer(context.Background(), &inference.ModelInferenceRequest{}, cache.ModeOff)
	if err != nil {
		t.Fatalf("expected failover to the second provider to succeed, got error: %v", err)
	}
	if result.ModelName != inference.DummyModelGood {
		t.Fatalf("expected the second provider's model name, got %q", result.ModelName)
	}
}

func TestTableInferExhaustsAllProviders(t *testing.T) {
	tbl := New(inference.ModelConfig{
		Name: "all-failing-model",
		Providers: []inference.ProviderConfig{
			{Type: inference.ProviderDummy, ModelName: inference.DummyModelError},
		},
	}, dummyAdapters(), DefaultBreakerConfig())

	if _, err := tbl.Infer(context.Background(), &inference.ModelInferenceRequest{}, cache.ModeOff); err == nil {
		t.Fatal("expected an error when every provider fails")
	}
}

func TestTableInferCacheHitSkipsProviderCall(t *testing.T) {
	tbl := New(inference.ModelConfig{
		Name:      "cached-model",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, dummyAdapters(), DefaultBreakerConfig())
	tbl.SetCache(cache.New(cache.Options{MaxSize: 10}))

	req := &inference.ModelInferenceRequest{System: "same request both times"}

	first, err := tbl.Infer(context.Background(), req, cache.ModeOn)
	if err != nil {
		t.Fatalf("first Infer returned error: %v", err)
	}

	second, err := tbl.Infer(context.Background(), req, cache.ModeOn)
	if err != nil {
		t.Fatalf("second Infer returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the cached result to be returned verbatim (same ID), got %q vs %q", second.ID, first.ID)
	}
}

// TestTableCacheMetrics exercises both the hit/miss counting path and the
// mode-off no-op path against one shared *observability.Metrics, since
// NewMetrics registers against Prometheus's default registry and can only
// be constructed once per test binary (see observability.TestNewMetrics).
func TestTableCacheMetrics(t *testing.T) {
	metrics := observability.NewMetrics()

	onModeTable := New(inference.ModelConfig{
		Name:      "metered-model",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, dummyAdapters(), DefaultBreakerConfig())
	onModeTable.SetCache(cache.New(cache.Options{MaxSize: 10}))
	onModeTable.SetMetrics(metrics)

	req := &inference.ModelInferenceRequest{System: "metrics request"}
	if _, err := onModeTable.Infer(context.Background(), req, cache.ModeOn); err != nil {
		t.Fatalf("first Infer returned error: %v", err)
	}
	if _, err := onModeTable.Infer(context.Background(), req, cache.ModeOn); err != nil {
		t.Fatalf("second Infer returned error: %v", err)
	}

	if got := testutil.ToFloat64(metrics.CacheCounter.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected 1 cache miss, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.CacheCounter.WithLabelValues("hit")); got != 1 {
		t.Errorf("expected 1 cache hit, got %v", got)
	}

	offModeTable := New(inference.ModelConfig{
		Name:      "mode-off-model",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, dummyAdapters(), DefaultBreakerConfig())
	offModeTable.SetCache(cache.New(cache.Options{MaxSize: 10}))
	offModeTable.SetMetrics(metrics)

	if _, err := offModeTable.Infer(context.Background(), &inference.ModelInferenceRequest{}, cache.ModeOff); err != nil {
		t.Fatalf("Infer returned error: %v", err)
	}

	if got := testutil.ToFloat64(metrics.CacheCounter.WithLabelValues("miss")); got != 1 {
		t.Errorf("expected cache.ModeOff not to add another miss recording, got %v", got)
	}
}

func TestRegistryPropagatesCacheAndMetricsToTables(t *testing.T) {
	registry := NewRegistry()
	registry.Add(inference.ModelConfig{
		Name:      "pre-existing",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, dummyAdapters(), DefaultBreakerConfig())

	// A bare struct, not observability.NewMetrics(), since the latter
	// registers against Prometheus's default registry and this test only
	// cares about pointer propagation, not recorded values.
	registry.SetCache(cache.New(cache.Options{MaxSize: 10}))
	registry.SetMetrics(&observability.Metrics{})

	registry.Add(inference.ModelConfig{
		Name:      "added-after",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, dummyAdapters(), DefaultBreakerConfig())

	for _, name := range []string{"pre-existing", "added-after"} {
		tbl, err := registry.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if tbl.cache == nil {
			t.Errorf("table %q: expected cache to be propagated", name)
		}
		if tbl.metrics == nil {
			t.Errorf("table %q: expected metrics to be propagated", name)
		}
	}
}

func TestRegistryGetUnknownModel(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.Get("nope"); err == nil {
		t.Fatal("expected an error for an unconfigured model")
	}
}
