// Package variant implements the five variant executors of spec.md §4.3–4.6:
// ChatCompletion, BestOfN, MixtureOfN, ChainOfThought and DICL, each
// producing a ChatResponse/JsonResponse (or a streamed equivalent) from one
// or more underlying model-table calls.
package variant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/gateway/internal/cache"
	"github.com/haasonsaas/gateway/internal/dicl"
	"github.com/haasonsaas/gateway/internal/modeltable"
	"github.com/haasonsaas/gateway/internal/schema"
	"github.com/haasonsaas/gateway/internal/templating"
	"github.com/haasonsaas/gateway/internal/toolcfg"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// InferenceConfig is the shared context threaded into every variant
// executor for one call: the function/variant it is running under, the
// caller's input, and per-call overrides.
type InferenceConfig struct {
	InferenceID string
	EpisodeID   string
	Function    *inference.FunctionConfig
	VariantName string
	Input       inference.Input
	Stream      bool
	ToolParams  toolcfg.Params
	ExtraBody   map[string]any
	ExtraHeaders map[string]string
	ExtraCacheKey string

	// CacheMode governs the model table's response cache for every
	// underlying call this variant makes, per spec.md §4.7's per-call
	// cache_options; the zero value behaves as cache.ModeOff.
	CacheMode cache.Mode
}

// Deps bundles the collaborators every executor needs, resolved once by
// the orchestrator and passed down so leaf/composed executors share them.
type Deps struct {
	Models    *modeltable.Registry
	Templates *templating.Engine
	Validator *schema.Validator

	// Exemplars backs DICL variant lookups; nil if the gateway has no
	// exemplar store configured, in which case DICL variants error.
	Exemplars dicl.Store
}

// Executor is the uniform entry point every variant kind implements.
type Executor interface {
	Execute(ctx context.Context, cfg InferenceConfig, deps Deps) (*Result, error)
}

// Resolve maps a variant's configured Type to its executor. The
// orchestrator calls this once per inference after variant selection;
// composed variants resolve their own candidates' executors separately via
// resolveLeafExecutor.
func Resolve(v *inference.VariantConfig) Executor {
	switch v.Type {
	case inference.VariantBestOfN:
		return NewBestOfN()
	case inference.VariantMixtureOfN:
		return NewMixtureOfN()
	case inference.VariantChainOfThought:
		return NewChainOfThought()
	case inference.VariantDICL:
		return NewDICL()
	default:
		return NewChatCompletion()
	}
}

// Result is a variant's output before the orchestrator wraps it into the
// externally-visible ChatResponse/JsonResponse shape.
type Result struct {
	Content     []inference.ContentBlock
	JSONOutput  *inference.JSONOutput
	Usage       inference.Usage
	FinishReason inference.FinishReason
	ModelCalls  []inference.ModelInferenceResult
}

// renderSystem applies the variant's system template (if any) to
// input.System; text system prompts pass through verbatim when no
// template is configured, per spec.md §4.3.
func renderSystem(tmplStr string, system json.RawMessage, eng *templating.Engine) (string, error) {
	if tmplStr == "" {
		if len(system) == 0 {
			return "", nil
		}
		var asString string
		if err := json.Unmarshal(system, &asString); err == nil {
			return asString, nil
		}
		return string(system), nil
	}
	return eng.RenderJSON(tmplStr, system)
}

// renderMessages applies the variant's per-role templates to each text
// content block of each message; tool calls, tool results, and file
// blocks pass through untouched.
func renderMessages(messages []inference.Message, userTmpl, assistantTmpl string, eng *templating.Engine) ([]inference.Message, error) {
	out := make([]inference.Message, len(messages))
	for i, msg := range messages {
		tmplStr := userTmpl
		if msg.Role == inference.RoleAssistant {
			tmplStr = assistantTmpl
		}
		blocks := make([]inference.ContentBlock, len(msg.Content))
		for j, block := range msg.Content {
			if block.Type != inference.ContentText || tmplStr == "" {
				blocks[j] = block
				continue
			}
			rendered, err := eng.RenderJSON(tmplStr, json.RawMessage(fmt.Sprintf("%q", block.Text)))
			if err != nil {
				return nil, inference.Wrap(inference.ErrTemplateRender, err, "render message %d", i)
			}
			blocks[j] = inference.TextBlock(rendered)
		}
		out[i] = inference.Message{Role: msg.Role, Content: blocks}
	}
	return out, nil
}

// buildParamsFromVariant copies the variant's static inference params,
// which the orchestrator may further override with per-call sliders
// (not modeled here since spec.md scopes dynamic sliders to variant
// config, not per-request overrides beyond extra_body).
func buildParamsFromVariant(v *inference.VariantConfig) inference.InferenceParams {
	return v.Params
}

// resolveOutputParsing implements spec.md §4.3's JSON-typed response
// handling: extract parsed JSON either from a synthetic "respond" tool
// call (JSONMode=Tool) or from the first text block, then validate
// against the function's output schema, downgrading to raw-only on
// failure rather than erroring the call.
func resolveOutputParsing(content []inference.ContentBlock, outputSchema json.RawMessage, validator *schema.Validator) *inference.JSONOutput {
	var raw string
	if args, ok := toolcfg.CoerceJSONResponse(content); ok {
		raw = string(args)
	} else {
		for _, block := range content {
			if block.Type == inference.ContentText {
				raw = block.Text
				break
			}
		}
	}
	if raw == "" {
		return &inference.JSONOutput{Raw: raw}
	}
	if !validator.ValidJSON("output", outputSchema, raw) {
		return &inference.JSONOutput{Raw: raw}
	}
	return &inference.JSONOutput{Raw: raw, Parsed: json.RawMessage(raw)}
}
