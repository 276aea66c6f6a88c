package variant

import (
	"context"

	"github.com/haasonsaas/gateway/internal/toolcfg"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// ChatCompletion is the leaf variant executor of spec.md §4.3: render
// templates, build a ModelInferenceRequest, dispatch through the model
// table, and convert the result back into the uniform content-block model.
type ChatCompletion struct{}

func NewChatCompletion() *ChatCompletion { return &ChatCompletion{} }

// buildRequest renders system/messages and assembles the uniform
// ModelInferenceRequest for one ChatCompletion-kind variant. Exported at
// package level (not a method receiving *VariantConfig) so composed
// variants (best-of-N candidates, judges, fusers) can reuse it for their
// own ChatCompletion-shaped sub-calls.
func buildRequest(v *inference.VariantConfig, cfg InferenceConfig, deps Deps, extraCacheKey string) (*inference.ModelInferenceRequest, error) {
	system, err := renderSystem(v.SystemTemplate, cfg.Input.System, deps.Templates)
	if err != nil {
		return nil, inference.Wrap(inference.ErrTemplateRender, err, "render system for variant %q", v.Name)
	}
	messages, err := renderMessages(cfg.Input.Messages, v.UserTemplate, v.AssistantTemplate, deps.Templates)
	if err != nil {
		return nil, err
	}

	jsonMode := v.JSONMode
	var outputSchema []byte
	if cfg.Function.Type == inference.FunctionJSON {
		outputSchema = cfg.Function.OutputSchema
		if jsonMode == "" {
			jsonMode = inference.JSONModeOn
		}
	}

	tools := toolcfg.Resolve(cfg.Function, cfg.ToolParams, jsonMode)

	req := &inference.ModelInferenceRequest{
		System:        system,
		Messages:      messages,
		Tools:         tools,
		OutputSchema:  outputSchema,
		JSONMode:      jsonMode,
		Params:        buildParamsFromVariant(v),
		Stream:        cfg.Stream,
		ExtraBody:     cfg.ExtraBody,
		ExtraHeaders:  cfg.ExtraHeaders,
		ExtraCacheKey: extraCacheKey,
	}
	return req, nil
}

func (c *ChatCompletion) Execute(ctx context.Context, cfg InferenceConfig, deps Deps) (*Result, error) {
	v, ok := cfg.Function.Variants[cfg.VariantName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", cfg.VariantName)
	}

	req, err := buildRequest(v, cfg, deps, cfg.ExtraCacheKey)
	if err != nil {
		return nil, err
	}

	table, err := deps.Models.Get(v.Model)
	if err != nil {
		return nil, err
	}

	result, err := table.Infer(ctx, req, cfg.CacheMode)
	if err != nil {
		return nil, err
	}

	out := &Result{
		Content:      result.Content,
		Usage:        result.Usage,
		FinishReason: result.FinishReason,
		ModelCalls:   []inference.ModelInferenceResult{*result},
	}
	if cfg.Function.Type == inference.FunctionJSON {
		out.JSONOutput = resolveOutputParsing(result.Content, cfg.Function.OutputSchema, deps.Validator)
	}
	return out, nil
}
