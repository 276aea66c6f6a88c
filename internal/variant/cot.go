package variant

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/gateway/internal/templating"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// ChainOfThought implements spec.md §4.6: a chat-completion variant forced
// to emit {thinking, response} where response matches the function's own
// output schema; the thinking field stays internal while response is
// projected as the user-visible output.
type ChainOfThought struct{}

func NewChainOfThought() *ChainOfThought { return &ChainOfThought{} }

func (c *ChainOfThought) Execute(ctx context.Context, cfg InferenceConfig, deps Deps) (*Result, error) {
	v, ok := cfg.Function.Variants[cfg.VariantName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", cfg.VariantName)
	}

	envelopeSchema := json.RawMessage(templating.ChainOfThoughtSchema(string(cfg.Function.OutputSchema)))

	jsonMode := v.JSONMode
	if jsonMode == "" {
		jsonMode = inference.JSONModeOn
	}

	req, err := buildRequest(v, cfg, deps, cfg.ExtraCacheKey)
	if err != nil {
		return nil, err
	}
	req.OutputSchema = envelopeSchema
	req.JSONMode = jsonMode
	if jsonMode == inference.JSONModeTool {
		req.Tools = inference.WithSyntheticRespondTool(envelopeSchema)
	}

	table, err := deps.Models.Get(v.Model)
	if err != nil {
		return nil, err
	}
	result, err := table.Infer(ctx, req, cfg.CacheMode)
	if err != nil {
		return nil, err
	}

	envelope := resolveOutputParsing(result.Content, envelopeSchema, deps.Validator)
	out := &Result{
		Usage:        result.Usage,
		FinishReason: result.FinishReason,
		ModelCalls:   []inference.ModelInferenceResult{*result},
	}

	if envelope.Parsed == nil {
		// Envelope failed to validate; surface raw content as-is and let
		// the orchestrator's own output-schema validation downgrade it.
		out.Content = result.Content
		out.JSONOutput = &inference.JSONOutput{Raw: envelope.Raw}
		return out, nil
	}

	var decoded struct {
		Thinking string          `json:"thinking"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(envelope.Parsed, &decoded); err != nil {
		out.Content = result.Content
		out.JSONOutput = &inference.JSONOutput{Raw: envelope.Raw}
		return out, nil
	}

	thinkingBlock := inference.ContentBlock{Type: inference.ContentUnknown, Thought: decoded.Thinking}
	out.Content = []inference.ContentBlock{thinkingBlock, inference.TextBlock(string(decoded.Response))}

	if cfg.Function.Type == inference.FunctionJSON {
		valid := deps.Validator.ValidJSON("output", cfg.Function.OutputSchema, string(decoded.Response))
		if valid {
			out.JSONOutput = &inference.JSONOutput{Raw: string(decoded.Response), Parsed: decoded.Response}
		} else {
			out.JSONOutput = &inference.JSONOutput{Raw: string(decoded.Response)}
		}
	}
	return out, nil
}
