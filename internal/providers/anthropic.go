package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// AnthropicAdapter implements Adapter against the Anthropic Messages API.
type AnthropicAdapter struct{}

func NewAnthropicAdapter() *AnthropicAdapter { return &AnthropicAdapter{} }

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) client(cfg inference.ProviderConfig, creds Credentials) (anthropic.Client, error) {
	key := resolveCredential(cfg.Credential, creds)
	if key == "" {
		return anthropic.Client{}, inference.New(inference.ErrAPIKeyMissing, "anthropic api key not configured")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	return anthropic.NewClient(opts...), nil
}

func buildAnthropicParams(req *inference.ModelInferenceRequest, cfg inference.ProviderConfig) (anthropic.MessageNewParams, error) {
	messages, err := convertMessagesToAnthropic(req)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	maxTokens := int64(1024)
	if req.Params.MaxTokens != nil {
		maxTokens = int64(*req.Params.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.ModelName),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if p := req.Params.Temperature; p != nil {
		params.Temperature = anthropic.Float(*p)
	}
	if p := req.Params.TopP; p != nil {
		params.TopP = anthropic.Float(*p)
	}
	if len(req.Params.StopSequences) > 0 {
		params.StopSequences = req.Params.StopSequences
	}
	if len(req.Tools.Tools) > 0 {
		tools, err := convertToolsToAnthropic(req.Tools.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
		params.ToolChoice = convertAnthropicToolChoice(req.Tools.Choice)
	}
	if req.Params.ThinkingBudgetTokens != nil {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(*req.Params.ThinkingBudgetTokens))
	}
	return params, nil
}

func (a *AnthropicAdapter) Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	client, err := a.client(cfg, creds)
	if err != nil {
		return nil, err
	}
	params, err := buildAnthropicParams(req, cfg)
	if err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "build anthropic request")
	}
	rawReq, _ := json.Marshal(params)

	start := time.Now()
	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err, string(rawReq))
	}
	rawResp, _ := json.Marshal(msg)

	result := &inference.ModelInferenceResult{
		ID:           msg.ID,
		ApiType:      inference.ApiTypeChat,
		ProviderType: inference.ProviderAnthropic,
		ProviderName: "anthropic",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawReq),
		RawResponse:  string(rawResp),
		Latency:      time.Since(start),
		Content:      convertAnthropicContentToBlocks(msg.Content),
		FinishReason: convertAnthropicStopReason(string(msg.StopReason)),
		Usage: inference.Usage{
			InputTokens:  inference.IntPtr(int(msg.Usage.InputTokens)),
			OutputTokens: inference.IntPtr(int(msg.Usage.OutputTokens)),
		},
	}
	return result, nil
}

func (a *AnthropicAdapter) InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error) {
	client, err := a.client(cfg, creds)
	if err != nil {
		return nil, "", err
	}
	params, err := buildAnthropicParams(req, cfg)
	if err != nil {
		return nil, "", inference.Wrap(inference.ErrSerialization, err, "build anthropic request")
	}
	rawReq, _ := json.Marshal(params)

	stream := client.Messages.NewStreaming(ctx, params)

	out := make(chan StreamEvent)
	go func() {
		defer close(out)

		type toolAccum struct{ id, name, args string }
		var currentTool *toolAccum

		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if tu := variant.ContentBlock.AsAny(); tu != nil {
					if tub, ok := tu.(anthropic.ToolUseBlock); ok {
						currentTool = &toolAccum{id: tub.ID, name: tub.Name}
						out <- StreamEvent{Chunk: &inference.Chunk{
							Content: []inference.ContentBlockChunk{{Type: inference.ChunkToolCall, ID: tub.ID, RawNameDelta: tub.Name}},
						}}
					}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					out <- StreamEvent{Chunk: &inference.Chunk{
						Content: []inference.ContentBlockChunk{{Type: inference.ChunkText, Text: delta.Text}},
					}}
				case anthropic.InputJSONDelta:
					if currentTool != nil {
						currentTool.args += delta.PartialJSON
						out <- StreamEvent{Chunk: &inference.Chunk{
							Content: []inference.ContentBlockChunk{{Type: inference.ChunkToolCall, ID: currentTool.id, RawArgumentsDelta: delta.PartialJSON}},
						}}
					}
				}
			case anthropic.MessageDeltaEvent:
				finish := convertAnthropicStopReason(string(variant.Delta.StopReason))
				usage := inference.Usage{OutputTokens: inference.IntPtr(int(variant.Usage.OutputTokens))}
				out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{}, Usage: &usage, FinishReason: &finish}}
			}
		}
		if err := stream.Err(); err != nil {
			out <- StreamEvent{Err: classifyAnthropicError(err, string(rawReq))}
		}
	}()
	return out, string(rawReq), nil
}

func (a *AnthropicAdapter) Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	return nil, inference.New(inference.ErrInternal, "anthropic does not provide an embeddings endpoint")
}

func convertMessagesToAnthropic(req *inference.ModelInferenceRequest) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range req.Messages {
		var blocks []anthropic.ContentBlockParamUnion
		for _, block := range msg.Content {
			switch block.Type {
			case inference.ContentText:
				blocks = append(blocks, anthropic.NewTextBlock(block.Text))
			case inference.ContentToolCall:
				var input any
				_ = json.Unmarshal(block.Arguments, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(block.ID, input, block.Name))
			case inference.ContentToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(block.ToolCallID, string(block.Result), false))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == inference.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result, nil
}

func convertToolsToAnthropic(tools []inference.Tool) ([]anthropic.ToolUnionParam, error) {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(t.Parameters, &schema); err != nil {
			schema = anthropic.ToolInputSchemaParam{}
		}
		tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if t.Description != "" {
			tp.OfTool.Description = anthropic.String(t.Description)
		}
		result = append(result, tp)
	}
	return result, nil
}

func convertAnthropicToolChoice(choice inference.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case inference.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case inference.ToolChoiceSpecific:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func convertAnthropicContentToBlocks(blocks []anthropic.ContentBlockUnion) []inference.ContentBlock {
	var out []inference.ContentBlock
	for _, b := range blocks {
		switch v := b.AsAny().(type) {
		case anthropic.TextBlock:
			out = append(out, inference.TextBlock(v.Text))
		case anthropic.ToolUseBlock:
			raw, _ := json.Marshal(v.Input)
			out = append(out, inference.ToolCallBlock(v.ID, v.Name, v.Name, raw, string(raw)))
		}
	}
	return out
}

func convertAnthropicStopReason(reason string) inference.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return inference.FinishStop
	case "max_tokens":
		return inference.FinishLength
	case "tool_use":
		return inference.FinishToolCall
	default:
		return inference.FinishUnknown
	}
}

func classifyAnthropicError(err error, rawReq string) *inference.Error {
	var apiErr *anthropic.Error
	if e, ok := err.(*anthropic.Error); ok {
		apiErr = e
		status := apiErr.StatusCode
		kind := inference.ClassifyStatusCode(status)
		return &inference.Error{
			Kind:         kind,
			Message:      apiErr.Error(),
			ProviderType: string(inference.ProviderAnthropic),
			Status:       &status,
			RawRequest:   rawReq,
			Cause:        err,
		}
	}
	return &inference.Error{
		Kind:         inference.ErrInferenceServer,
		Message:      "anthropic transport error",
		ProviderType: string(inference.ProviderAnthropic),
		RawRequest:   rawReq,
		Cause:        err,
	}
}
