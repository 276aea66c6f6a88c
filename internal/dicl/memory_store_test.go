package dicl

import (
	"context"
	"testing"
)

func TestMemoryStoreListScopesByFunctionAndVariant(t *testing.T) {
	store := NewMemoryStore()
	store.Add("greet", "", Exemplar{Input: "hi", Output: "hello"})
	store.Add("greet", "formal", Exemplar{Input: "hey", Output: "good day"})
	store.Add("other", "", Exemplar{Input: "x", Output: "y"})

	functionScoped, err := store.List(context.Background(), "greet", "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(functionScoped) != 1 {
		t.Fatalf("expected 1 function-scoped exemplar, got %d", len(functionScoped))
	}

	variantScoped, err := store.List(context.Background(), "greet", "formal")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(variantScoped) != 2 {
		t.Fatalf("expected function-scoped + variant-scoped exemplars (2), got %d", len(variantScoped))
	}

	otherVariant, err := store.List(context.Background(), "greet", "casual")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(otherVariant) != 1 {
		t.Fatalf("expected only function-scoped exemplar for an unrelated variant, got %d", len(otherVariant))
	}
}

func TestMemoryStoreListUnknownFunctionReturnsEmpty(t *testing.T) {
	store := NewMemoryStore()
	out, err := store.List(context.Background(), "missing", "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no exemplars for an unknown function, got %d", len(out))
	}
}
