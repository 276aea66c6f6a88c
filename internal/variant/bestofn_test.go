package variant

import (
	"context"
	"testing"

	"github.com/haasonsaas/gateway/pkg/inference"
)

func bestOfNFunction(candidates ...string) *inference.FunctionConfig {
	variants := map[string]*inference.VariantConfig{
		"bon": {
			Name: "bon", Type: inference.VariantBestOfN, Weight: 1,
			Candidates: candidates,
			EvaluatorOrFuser: &inference.VariantConfig{
				Name: "judge", Type: inference.VariantChatCompletion, Model: "dummy-model",
			},
		},
	}
	for _, c := range candidates {
		variants[c] = &inference.VariantConfig{Name: c, Type: inference.VariantChatCompletion, Model: "dummy-model"}
	}
	return chatFunctionConfig(variants)
}

// TestBestOfNExecuteFoldsAllCandidateAndJudgeModelCalls exercises the full
// fan-out/judge path. The dummy provider's canned judge answer doesn't
// satisfy the judge schema's required answer_choice/thinking fields, so the
// judge call itself fails validation and selection falls back to the
// episode-seeded hash (judgeSurvivors' documented fallback) -- but every
// candidate's and the judge's own model call must still be folded in.
func TestBestOfNExecuteFoldsAllCandidateAndJudgeModelCalls(t *testing.T) {
	deps := testDeps(t)
	fn := bestOfNFunction("c1", "c2", "c3")

	result, err := NewBestOfN().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "bon",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.ModelCalls) != 4 {
		t.Fatalf("expected 4 model calls (3 candidates + judge), got %d", len(result.ModelCalls))
	}
	if len(result.Content) == 0 {
		t.Fatal("expected the selected candidate's content to be returned")
	}

	var want inference.Usage
	for _, call := range result.ModelCalls {
		want = want.Add(call.Usage)
	}
	if result.Usage.InputTokens == nil || want.InputTokens == nil || *result.Usage.InputTokens != *want.InputTokens {
		t.Fatalf("Usage.InputTokens = %v, want the sum across all %d model calls (%v)", result.Usage.InputTokens, len(result.ModelCalls), want.InputTokens)
	}
	if result.Usage.OutputTokens == nil || want.OutputTokens == nil || *result.Usage.OutputTokens != *want.OutputTokens {
		t.Fatalf("Usage.OutputTokens = %v, want the sum across all %d model calls (%v)", result.Usage.OutputTokens, len(result.ModelCalls), want.OutputTokens)
	}
}

func TestBestOfNExecuteSingleSurvivorSkipsJudge(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"bon": {
			Name: "bon", Type: inference.VariantBestOfN, Weight: 1,
			Candidates: []string{"c1"},
			EvaluatorOrFuser: &inference.VariantConfig{
				Name: "judge", Type: inference.VariantChatCompletion, Model: "dummy-model",
			},
		},
		"c1": {Name: "c1", Type: inference.VariantChatCompletion, Model: "dummy-model"},
	})

	result, err := NewBestOfN().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "bon",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.ModelCalls) != 1 {
		t.Fatalf("expected a single surviving candidate's call with no judge, got %d", len(result.ModelCalls))
	}
}

func TestBestOfNExecuteWithoutEvaluatorReturnsFirstSurvivor(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"bon": {
			Name: "bon", Type: inference.VariantBestOfN, Weight: 1,
			Candidates: []string{"c1", "c2"},
		},
		"c1": {Name: "c1", Type: inference.VariantChatCompletion, Model: "dummy-model"},
		"c2": {Name: "c2", Type: inference.VariantChatCompletion, Model: "dummy-model"},
	})

	result, err := NewBestOfN().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "bon",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.ModelCalls) != 1 {
		t.Fatalf("expected only the first survivor's call with no evaluator configured, got %d", len(result.ModelCalls))
	}
}

func TestBestOfNExecuteAllCandidatesFail(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"bon": {
			Name: "bon", Type: inference.VariantBestOfN, Weight: 1,
			Candidates: []string{"c1", "c2"},
		},
		"c1": {Name: "c1", Type: inference.VariantChatCompletion, Model: "error-model"},
		"c2": {Name: "c2", Type: inference.VariantChatCompletion, Model: "error-model"},
	})

	_, err := NewBestOfN().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "bon",
		Input:       userInput("hi"),
	}, deps)
	infErr, ok := inference.AsError(err)
	if !ok || infErr.Kind != inference.ErrInferenceServer {
		t.Fatalf("err = %v, want ErrInferenceServer when every candidate fails", err)
	}
}

func TestBestOfNExecuteSurvivesPartialCandidateFailure(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{
		"bon": {
			Name: "bon", Type: inference.VariantBestOfN, Weight: 1,
			Candidates: []string{"c1", "c2"},
			EvaluatorOrFuser: &inference.VariantConfig{
				Name: "judge", Type: inference.VariantChatCompletion, Model: "dummy-model",
			},
		},
		"c1": {Name: "c1", Type: inference.VariantChatCompletion, Model: "error-model"},
		"c2": {Name: "c2", Type: inference.VariantChatCompletion, Model: "dummy-model"},
	})

	result, err := NewBestOfN().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "bon",
		Input:       userInput("hi"),
	}, deps)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(result.ModelCalls) != 1 {
		t.Fatalf("expected the single surviving candidate's call, got %d", len(result.ModelCalls))
	}
}

func TestBestOfNExecuteUnknownVariant(t *testing.T) {
	deps := testDeps(t)
	fn := chatFunctionConfig(map[string]*inference.VariantConfig{})

	_, err := NewBestOfN().Execute(context.Background(), InferenceConfig{
		Function:    fn,
		VariantName: "missing",
		Input:       userInput("hi"),
	}, deps)
	infErr, ok := inference.AsError(err)
	if !ok || infErr.Kind != inference.ErrUnknownVariant {
		t.Fatalf("err = %v, want ErrUnknownVariant", err)
	}
}
