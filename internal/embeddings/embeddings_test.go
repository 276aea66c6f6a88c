package embeddings

import (
	"context"
	"testing"

	"github.com/haasonsaas/gateway/internal/modeltable"
	"github.com/haasonsaas/gateway/internal/providers"
	"github.com/haasonsaas/gateway/pkg/inference"
)

func newEmbedTable(t *testing.T) *modeltable.Table {
	t.Helper()
	adapters := providers.NewRegistry()
	adapters.Register(inference.ProviderDummy, providers.NewDummyProvider())

	registry := modeltable.NewRegistry()
	registry.Add(inference.ModelConfig{
		Name:      "embed-model",
		Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: inference.DummyModelGood}},
	}, adapters, modeltable.DefaultBreakerConfig())

	table, err := registry.Get("embed-model")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return table
}

func TestProviderEmbedReturnsVector(t *testing.T) {
	p := NewProvider("embed-model", newEmbedTable(t))

	vec, err := p.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) == 0 {
		t.Fatal("expected a non-empty embedding vector")
	}
	if p.Name() != "embed-model" {
		t.Fatalf("Name() = %q, want embed-model", p.Name())
	}
}

func TestProviderEmbedBatchPreservesOrder(t *testing.T) {
	p := NewProvider("embed-model", newEmbedTable(t))

	vecs, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			t.Fatalf("vector %d is empty", i)
		}
	}
}

func TestProviderEmbedPropagatesTableError(t *testing.T) {
	// A table with no configured providers surfaces the model table's own
	// exhaustion error straight through the Provider interface.
	p := NewProvider("bad-model", &modeltable.Table{})
	if _, err := p.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected an error from a model table with no providers")
	}
}
