package variant

import (
	"context"
	"testing"

	"github.com/haasonsaas/gateway/pkg/inference"
)

func TestChatCompletionExecuteReturnsContentAndModelCall(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"v1": {Name: "v1", Type: inference.VariantChatCompletion, Weight: 1, Model: "dummy-model"},
	})

	result, err := NewChatCompletion().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "v1",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.ModelCalls) != 1 {
		t.Fatalf("expected 1 model call, got %d", len(result.ModelCalls))
	}
	if len(result.Content) == 0 || result.Content[0].Type != inference.ContentText {
		t.Fatalf("expected text content, got %+v", result.Content)
	}
	if result.FinishReason != inference.FinishStop {
		t.Fatalf("finish_reason = %q, want stop", result.FinishReason)
	}
	if result.JSONOutput != nil {
		t.Fatal("chat function should not populate JSONOutput")
	}
}

func TestChatCompletionExecuteUnknownVariant(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{})

	_, err := NewChatCompletion().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "missing",
		Input:       userInput("hi"),
	}, deps)
	infErr, ok := inference.AsError(err)
	if !ok || infErr.Kind != inference.ErrUnknownVariant {
		t.Fatalf("err = %v, want ErrUnknownVariant", err)
	}
}

func TestChatCompletionExecutePropagatesProviderError(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"v1": {Name: "v1", Type: inference.VariantChatCompletion, Weight: 1, Model: "error-model"},
	})

	_, err := NewChatCompletion().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "v1",
		Input:       userInput("hi"),
	}, deps)
	if err == nil {
		t.Fatal("expected an error from the failing provider")
	}
}

func TestChatCompletionExecutePopulatesJSONOutputForJSONFunction(t *testing.T) {
	deps := testDeps(t)
	fn := jsonFunctionConfig(map[string]*inference.VariantConfig{
		"v1": {Name: "v1", Type: inference.VariantChatCompletion, Weight: 1, Model: "json-model"},
	})

	result, err := NewChatCompletion().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "v1",
		Input:       userInput("what's the answer?"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.JSONOutput == nil {
		t.Fatal("expected JSONOutput to be populated")
	}
	if result.JSONOutput.Parsed == nil {
		t.Fatalf("expected JSON to validate against the output schema, raw=%s", result.JSONOutput.Raw)
	}
}

func TestChatCompletionExecuteDowngradesInvalidJSONToRawOnly(t *testing.T) {
	deps := testDeps(t)
	fn := jsonFunctionConfig(map[string]*inference.VariantConfig{
		"v1": {Name: "v1", Type: inference.VariantChatCompletion, Weight: 1, Model: "json-fail-model"},
	})

	result, err := NewChatCompletion().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "v1",
		Input:       userInput("what's the answer?"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.JSONOutput == nil {
		t.Fatal("expected a JSONOutput with raw-only content")
	}
	if result.JSONOutput.Parsed != nil {
		t.Fatalf("expected Parsed to stay nil for invalid json, got %s", result.JSONOutput.Parsed)
	}
	if result.JSONOutput.Raw == "" {
		t.Fatal("expected raw content to be preserved")
	}
}
