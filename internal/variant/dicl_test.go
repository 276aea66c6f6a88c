package variant

import (
	"context"
	"testing"

	"github.com/haasonsaas/gateway/internal/dicl"
	"github.com/haasonsaas/gateway/pkg/inference"
)

func diclFunction(k int, scope string) *inference.FunctionConfig {
	return chatFunctionConfig(map[string]*inference.VariantConfig{
		"dicl": {
			Name: "dicl", Type: inference.VariantDICL, Weight: 1,
			Model: "dummy-model", EmbeddingModel: "embed-model",
			K: k, NeighborScope: scope,
		},
	})
}

func TestDICLExecuteInjectsExemplarsAndPrependsEmbeddingCall(t *testing.T) {
	deps := testDeps(t)
	store := dicl.NewMemoryStore()
	store.Add("greet", "", dicl.Exemplar{Input: "far example", Output: "far-out", Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}})
	store.Add("greet", "", dicl.Exemplar{Input: "near example", Output: "near-out", Embedding: []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}})
	deps.Exemplars = store

	fn := diclFunction(1, "function")

	result, err := NewDICL().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "dicl",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// 1 embedding call + 1 chat completion call.
	if len(result.ModelCalls) != 2 {
		t.Fatalf("expected 2 model calls (embed + chat), got %d", len(result.ModelCalls))
	}
	if result.ModelCalls[0].ApiType != inference.ApiTypeEmbedding {
		t.Fatalf("expected the first model call to be the embedding call, got %q", result.ModelCalls[0].ApiType)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected chat completion content from the augmented call")
	}
}

func TestDICLExecuteWithNoExemplarsStillCompletes(t *testing.T) {
	deps := testDeps(t)
	fn := diclFunction(3, "function")

	result, err := NewDICL().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "dicl",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.ModelCalls) != 2 {
		t.Fatalf("expected embed + chat model calls even with an empty exemplar pool, got %d", len(result.ModelCalls))
	}
}

func TestDICLExecuteNoExemplarStoreConfigured(t *testing.T) {
	deps := testDeps(t)
	deps.Exemplars = nil
	fn := diclFunction(1, "function")

	_, err := NewDICL().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "dicl",
		Input:       userInput("hi"),
	}, deps)
	infErr, ok := inference.AsError(err)
	if !ok || infErr.Kind != inference.ErrInternal {
		t.Fatalf("err = %v, want ErrInternal when no exemplar store is configured", err)
	}
}

func TestDICLExecuteUnknownEmbeddingModel(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"dicl": {
			Name: "dicl", Type: inference.VariantDICL, Weight: 1,
			Model: "dummy-model", EmbeddingModel: "does-not-exist",
			K: 1,
		},
	})

	_, err := NewDICL().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "dicl",
		Input:       userInput("hi"),
	}, deps)
	if err == nil {
		t.Fatal("expected an error for an unknown embedding model")
	}
}
