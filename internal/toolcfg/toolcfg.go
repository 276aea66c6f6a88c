// Package toolcfg composes the tool configuration for one inference call:
// the function's declared tools, any per-call additional tools/overrides
// the caller supplied, and, when a variant runs under JSON mode "tool", the
// synthetic "respond" tool that coerces the model into emitting its
// structured output as a tool call instead of free text.
package toolcfg

import (
	"encoding/json"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// Params is the caller-supplied, per-call tool overlay (spec §3's
// dynamic_tool_params): additional tools beyond the function's static
// config, and an optional override of the tool choice / parallel flag.
type Params struct {
	AdditionalTools []inference.Tool
	ToolChoice      *inference.ToolChoice
	ParallelCalls   *bool
}

// Resolve builds the effective ToolConfig for one call against one variant.
//
// When jsonMode is JSONModeTool, the function's declared tools are ignored
// entirely in favor of the single synthetic "respond" tool forced via
// ToolChoiceSpecific, since the model's only job in that mode is to emit
// the structured output.
func Resolve(fn *inference.FunctionConfig, params Params, jsonMode inference.JSONMode) inference.ToolConfig {
	if jsonMode == inference.JSONModeTool {
		return inference.WithSyntheticRespondTool(fn.OutputSchema)
	}

	cfg := inference.ToolConfig{
		Tools:         append([]inference.Tool{}, declaredTools(fn)...),
		Choice:        inference.ToolChoice{Mode: inference.ToolChoiceAuto},
		ParallelCalls: true,
	}
	cfg.Tools = append(cfg.Tools, params.AdditionalTools...)
	if params.ToolChoice != nil {
		cfg.Choice = *params.ToolChoice
	}
	if params.ParallelCalls != nil {
		cfg.ParallelCalls = *params.ParallelCalls
	}
	return cfg
}

func declaredTools(fn *inference.FunctionConfig) []inference.Tool {
	if fn == nil {
		return nil
	}
	return fn.Tools.Tools
}

// CoerceJSONResponse extracts the parsed JSON payload from a "respond" tool
// call's arguments, used by the chat-completion variant when it ran under
// JSONModeTool instead of native JSON mode.
func CoerceJSONResponse(content []inference.ContentBlock) (json.RawMessage, bool) {
	for _, block := range content {
		if block.Type == inference.ContentToolCall && block.Name == inference.RespondToolName {
			return block.Arguments, true
		}
	}
	return nil, false
}
