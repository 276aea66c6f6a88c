package variant

import (
	"context"

	"github.com/haasonsaas/gateway/internal/dicl"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// DICL implements spec.md §4.6's dynamic in-context learning variant:
// embed the caller's latest user message, retrieve up to K nearest stored
// exemplars, inject them as alternating user/assistant pre-messages, and
// delegate the rest to chat completion. The embedding call itself is
// recorded as its own model-call row with ApiType=embedding.
type DICL struct{}

func NewDICL() *DICL { return &DICL{} }

func (d *DICL) Execute(ctx context.Context, cfg InferenceConfig, deps Deps) (*Result, error) {
	augmentedCfg, embedResult, err := d.augmentWithExemplars(ctx, cfg, deps, nil)
	if err != nil {
		return nil, err
	}

	result, err := NewChatCompletion().Execute(ctx, augmentedCfg, deps)
	if err != nil {
		return nil, err
	}
	result.ModelCalls = append([]inference.ModelInferenceResult{*embedResult}, result.ModelCalls...)
	return result, nil
}

// augmentWithExemplars embeds the query, retrieves the K nearest exemplars,
// and returns a copy of cfg with exemplars injected as alternating
// user/assistant pre-messages, plus the embedding call's own
// ModelInferenceResult for the caller to fold into its ModelCalls. v may
// be passed by a caller that already looked up the variant; nil triggers
// a fresh lookup.
func (d *DICL) augmentWithExemplars(ctx context.Context, cfg InferenceConfig, deps Deps, v *inference.VariantConfig) (InferenceConfig, *inference.ModelInferenceResult, error) {
	if v == nil {
		var ok bool
		v, ok = cfg.Function.Variants[cfg.VariantName]
		if !ok {
			return InferenceConfig{}, nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", cfg.VariantName)
		}
	}
	if deps.Exemplars == nil {
		return InferenceConfig{}, nil, inference.New(inference.ErrInternal, "dicl variant %q: no exemplar store configured", cfg.VariantName)
	}

	query := lastUserText(cfg.Input.Messages)

	embedTable, err := deps.Models.Get(v.EmbeddingModel)
	if err != nil {
		return InferenceConfig{}, nil, err
	}
	embedResult, err := embedTable.Embed(ctx, &inference.EmbeddingRequest{Input: query})
	if err != nil {
		return InferenceConfig{}, nil, err
	}

	scope := dicl.ScopeFunction
	if v.NeighborScope == string(dicl.ScopeVariant) {
		scope = dicl.ScopeVariant
	}
	injector := dicl.NewInjector(deps.Exemplars, nil)
	neighbors, err := injector.NeighborsFromVector(ctx, cfg.Function.Name, cfg.VariantName, scope, embedResult.Embedding, v.K)
	if err != nil {
		return InferenceConfig{}, nil, err
	}

	augmented := cfg.Input
	augmented.Messages = make([]inference.Message, 0, len(neighbors)*2+len(cfg.Input.Messages))
	for _, ex := range neighbors {
		augmented.Messages = append(augmented.Messages,
			inference.Message{Role: inference.RoleUser, Content: []inference.ContentBlock{inference.TextBlock(ex.Input)}},
			inference.Message{Role: inference.RoleAssistant, Content: []inference.ContentBlock{inference.TextBlock(ex.Output)}},
		)
	}
	augmented.Messages = append(augmented.Messages, cfg.Input.Messages...)

	childCfg := cfg
	childCfg.Input = augmented
	return childCfg, embedResult, nil
}

func lastUserText(messages []inference.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != inference.RoleUser {
			continue
		}
		for _, block := range messages[i].Content {
			if block.Type == inference.ContentText {
				return block.Text
			}
		}
	}
	return ""
}
