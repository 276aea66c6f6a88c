package providers

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// BedrockAdapter implements Adapter against AWS Bedrock's Converse and
// ConverseStream APIs, which present a unified wire shape across the
// Anthropic, Titan, Llama, Mistral and Cohere models hosted there.
type BedrockAdapter struct {
	client *bedrockruntime.Client
}

func NewBedrockAdapter(ctx context.Context, region string) (*BedrockAdapter, error) {
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, inference.Wrap(inference.ErrInternal, err, "load aws config for bedrock")
	}
	return &BedrockAdapter{client: bedrockruntime.NewFromConfig(awsCfg)}, nil
}

func (a *BedrockAdapter) Name() string { return "bedrock" }

func convertMessagesToBedrock(req *inference.ModelInferenceRequest) []types.Message {
	result := make([]types.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := types.ConversationRoleUser
		if msg.Role == inference.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		var blocks []types.ContentBlock
		for _, block := range msg.Content {
			switch block.Type {
			case inference.ContentText:
				blocks = append(blocks, &types.ContentBlockMemberText{Value: block.Text})
			case inference.ContentToolCall:
				var doc any
				_ = json.Unmarshal(block.Arguments, &doc)
				blocks = append(blocks, &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String(block.ID),
					Name:      aws.String(block.Name),
					Input:     document.NewLazyDocument(doc),
				}})
			case inference.ContentToolResult:
				blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
					ToolUseId: aws.String(block.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: string(block.Result)},
					},
				}})
			}
		}
		if len(blocks) > 0 {
			result = append(result, types.Message{Role: role, Content: blocks})
		}
	}
	return result
}

func convertToolsToBedrock(cfg inference.ToolConfig) *types.ToolConfiguration {
	if len(cfg.Tools) == 0 {
		return nil
	}
	tools := make([]types.Tool, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		var schema any
		_ = json.Unmarshal(t.Parameters, &schema)
		tools = append(tools, &types.ToolMemberToolSpec{Value: types.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}})
	}
	tc := &types.ToolConfiguration{Tools: tools}
	switch cfg.Choice.Mode {
	case inference.ToolChoiceRequired:
		tc.ToolChoice = &types.ToolChoiceMemberAny{}
	case inference.ToolChoiceSpecific:
		tc.ToolChoice = &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(cfg.Choice.Name)}}
	default:
		tc.ToolChoice = &types.ToolChoiceMemberAuto{}
	}
	return tc
}

func (a *BedrockAdapter) buildConverseInput(req *inference.ModelInferenceRequest, cfg inference.ProviderConfig) *bedrockruntime.ConverseInput {
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(cfg.ModelName),
		Messages: convertMessagesToBedrock(req),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	infCfg := &types.InferenceConfiguration{}
	if req.Params.MaxTokens != nil {
		infCfg.MaxTokens = aws.Int32(int32(*req.Params.MaxTokens))
	}
	if req.Params.Temperature != nil {
		t := float32(*req.Params.Temperature)
		infCfg.Temperature = &t
	}
	if req.Params.TopP != nil {
		p := float32(*req.Params.TopP)
		infCfg.TopP = &p
	}
	input.InferenceConfig = infCfg
	input.ToolConfig = convertToolsToBedrock(req.Tools)
	return input
}

func convertBedrockStopReason(reason types.StopReason) inference.FinishReason {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return inference.FinishStop
	case types.StopReasonMaxTokens:
		return inference.FinishLength
	case types.StopReasonToolUse:
		return inference.FinishToolCall
	default:
		return inference.FinishUnknown
	}
}

func convertBedrockContentToBlocks(blocks []types.ContentBlock) []inference.ContentBlock {
	var out []inference.ContentBlock
	for _, b := range blocks {
		switch v := b.(type) {
		case *types.ContentBlockMemberText:
			out = append(out, inference.TextBlock(v.Value))
		case *types.ContentBlockMemberToolUse:
			var decoded any
			_ = v.Value.Input.UnmarshalSmithyDocument(&decoded)
			raw, _ := json.Marshal(decoded)
			name := aws.ToString(v.Value.Name)
			out = append(out, inference.ToolCallBlock(aws.ToString(v.Value.ToolUseId), name, name, raw, string(raw)))
		}
	}
	return out
}

func (a *BedrockAdapter) Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	input := a.buildConverseInput(req, cfg)
	rawReq, _ := json.Marshal(input)

	start := time.Now()
	resp, err := a.client.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(err, string(rawReq))
	}
	rawResp, _ := json.Marshal(resp)

	result := &inference.ModelInferenceResult{
		ApiType:      inference.ApiTypeChat,
		ProviderType: inference.ProviderBedrock,
		ProviderName: "bedrock",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawReq),
		RawResponse:  string(rawResp),
		Latency:      time.Since(start),
		FinishReason: convertBedrockStopReason(resp.StopReason),
	}
	if msg, ok := resp.Output.(*types.ConverseOutputMemberMessage); ok {
		result.Content = convertBedrockContentToBlocks(msg.Value.Content)
	}
	if resp.Usage != nil {
		result.Usage = inference.Usage{
			InputTokens:  inference.IntPtr(int(aws.ToInt32(resp.Usage.InputTokens))),
			OutputTokens: inference.IntPtr(int(aws.ToInt32(resp.Usage.OutputTokens))),
		}
	}
	return result, nil
}

func (a *BedrockAdapter) InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error) {
	base := a.buildConverseInput(req, cfg)
	streamInput := &bedrockruntime.ConverseStreamInput{
		ModelId:         base.ModelId,
		Messages:        base.Messages,
		System:          base.System,
		InferenceConfig: base.InferenceConfig,
		ToolConfig:      base.ToolConfig,
	}
	rawReq, _ := json.Marshal(streamInput)

	resp, err := a.client.ConverseStream(ctx, streamInput)
	if err != nil {
		return nil, string(rawReq), classifyBedrockError(err, string(rawReq))
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		eventStream := resp.GetStream()
		defer eventStream.Close()

		var toolID, toolName string
		var toolArgs strings.Builder

		for event := range eventStream.Events() {
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolID = aws.ToString(toolUse.Value.ToolUseId)
					toolName = aws.ToString(toolUse.Value.Name)
					toolArgs.Reset()
					out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{{Type: inference.ChunkToolCall, ID: toolID, RawNameDelta: toolName}}}}
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{{Type: inference.ChunkText, Text: delta.Value}}}}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolArgs.WriteString(*delta.Value.Input)
						out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{{Type: inference.ChunkToolCall, ID: toolID, RawArgumentsDelta: *delta.Value.Input}}}}
					}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				finish := convertBedrockStopReason(ev.Value.StopReason)
				out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{}, FinishReason: &finish}}
			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					usage := inference.Usage{
						InputTokens:  inference.IntPtr(int(aws.ToInt32(ev.Value.Usage.InputTokens))),
						OutputTokens: inference.IntPtr(int(aws.ToInt32(ev.Value.Usage.OutputTokens))),
					}
					out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{}, Usage: &usage}}
				}
			}
		}
		if err := eventStream.Err(); err != nil {
			out <- StreamEvent{Err: classifyBedrockError(err, string(rawReq))}
		}
	}()
	return out, string(rawReq), nil
}

func (a *BedrockAdapter) Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	payload, _ := json.Marshal(map[string]string{"inputText": req.Input})
	resp, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(cfg.ModelName),
		ContentType: aws.String("application/json"),
		Body:        payload,
	})
	if err != nil {
		return nil, classifyBedrockError(err, string(payload))
	}
	var decoded struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "decode bedrock embedding response")
	}
	return &inference.ModelInferenceResult{
		ApiType:      inference.ApiTypeEmbedding,
		ProviderType: inference.ProviderBedrock,
		ProviderName: "bedrock",
		ModelName:    cfg.ModelName,
		Embedding:    decoded.Embedding,
	}, nil
}

func classifyBedrockError(err error, rawReq string) *inference.Error {
	return &inference.Error{
		Kind:         inference.ErrInferenceServer,
		Message:      err.Error(),
		ProviderType: string(inference.ProviderBedrock),
		RawRequest:   rawReq,
		Cause:        err,
	}
}
