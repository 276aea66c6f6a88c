package providers

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/genai"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// GeminiAdapter implements Adapter against Google's Gemini API via the
// official google.golang.org/genai SDK.
type GeminiAdapter struct{}

func NewGeminiAdapter() *GeminiAdapter { return &GeminiAdapter{} }

func (a *GeminiAdapter) Name() string { return "gemini" }

func (a *GeminiAdapter) client(ctx context.Context, cfg inference.ProviderConfig, creds Credentials) (*genai.Client, error) {
	key := resolveCredential(cfg.Credential, creds)
	if key == "" {
		return nil, inference.New(inference.ErrAPIKeyMissing, "gemini api key not configured")
	}
	return genai.NewClient(ctx, &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI})
}

func convertMessagesToGemini(req *inference.ModelInferenceRequest) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range req.Messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == inference.RoleAssistant {
			content.Role = genai.RoleModel
		}
		for _, block := range msg.Content {
			switch block.Type {
			case inference.ContentText:
				content.Parts = append(content.Parts, &genai.Part{Text: block.Text})
			case inference.ContentToolCall:
				var args map[string]any
				_ = json.Unmarshal(block.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: block.Name, Args: args},
				})
			case inference.ContentToolResult:
				var response map[string]any
				if err := json.Unmarshal(block.Result, &response); err != nil {
					response = map[string]any{"result": string(block.Result)}
				}
				content.Parts = append(content.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{Name: block.ResultName, Response: response},
				})
			}
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return contents
}

func convertToolsToGemini(tools []inference.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schema *genai.Schema
		_ = json.Unmarshal(t.Parameters, &schema)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func buildGeminiConfig(req *inference.ModelInferenceRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.Params.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.Params.MaxTokens)
	}
	if req.Params.Temperature != nil {
		t := float32(*req.Params.Temperature)
		cfg.Temperature = &t
	}
	if req.Params.TopP != nil {
		p := float32(*req.Params.TopP)
		cfg.TopP = &p
	}
	if len(req.Tools.Tools) > 0 {
		cfg.Tools = convertToolsToGemini(req.Tools.Tools)
	}
	if req.JSONMode == inference.JSONModeOn || req.JSONMode == inference.JSONModeStrict {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func convertGeminiFinishReason(reason genai.FinishReason) inference.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return inference.FinishStop
	case genai.FinishReasonMaxTokens:
		return inference.FinishLength
	default:
		return inference.FinishUnknown
	}
}

func (a *GeminiAdapter) Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	client, err := a.client(ctx, cfg, creds)
	if err != nil {
		return nil, err
	}
	contents := convertMessagesToGemini(req)
	genCfg := buildGeminiConfig(req)
	rawReq, _ := json.Marshal(map[string]any{"model": cfg.ModelName, "contents": contents, "config": genCfg})

	start := time.Now()
	resp, err := client.Models.GenerateContent(ctx, cfg.ModelName, contents, genCfg)
	if err != nil {
		return nil, classifyGeminiError(err, string(rawReq))
	}
	rawResp, _ := json.Marshal(resp)

	result := &inference.ModelInferenceResult{
		ApiType:      inference.ApiTypeChat,
		ProviderType: inference.ProviderGemini,
		ProviderName: "gemini",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawReq),
		RawResponse:  string(rawResp),
		Latency:      time.Since(start),
	}
	if len(resp.Candidates) > 0 {
		result.Content = convertGeminiPartsToBlocks(resp.Candidates[0].Content)
		result.FinishReason = convertGeminiFinishReason(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		result.Usage = inference.Usage{
			InputTokens:  inference.IntPtr(int(resp.UsageMetadata.PromptTokenCount)),
			OutputTokens: inference.IntPtr(int(resp.UsageMetadata.CandidatesTokenCount)),
		}
	}
	return result, nil
}

func convertGeminiPartsToBlocks(content *genai.Content) []inference.ContentBlock {
	if content == nil {
		return nil
	}
	var out []inference.ContentBlock
	for _, part := range content.Parts {
		if part.Text != "" {
			out = append(out, inference.TextBlock(part.Text))
		}
		if part.FunctionCall != nil {
			raw, _ := json.Marshal(part.FunctionCall.Args)
			out = append(out, inference.ToolCallBlock(part.FunctionCall.Name, part.FunctionCall.Name, part.FunctionCall.Name, raw, string(raw)))
		}
	}
	return out
}

func (a *GeminiAdapter) InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error) {
	client, err := a.client(ctx, cfg, creds)
	if err != nil {
		return nil, "", err
	}
	contents := convertMessagesToGemini(req)
	genCfg := buildGeminiConfig(req)
	rawReq, _ := json.Marshal(map[string]any{"model": cfg.ModelName, "contents": contents, "config": genCfg})

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for resp, err := range client.Models.GenerateContentStream(ctx, cfg.ModelName, contents, genCfg) {
			if err != nil {
				out <- StreamEvent{Err: classifyGeminiError(err, string(rawReq))}
				return
			}
			if len(resp.Candidates) == 0 {
				continue
			}
			cand := resp.Candidates[0]
			var chunkBlocks []inference.ContentBlockChunk
			if cand.Content != nil {
				for _, part := range cand.Content.Parts {
					if part.Text != "" {
						chunkBlocks = append(chunkBlocks, inference.ContentBlockChunk{Type: inference.ChunkText, Text: part.Text})
					}
					if part.FunctionCall != nil {
						raw, _ := json.Marshal(part.FunctionCall.Args)
						chunkBlocks = append(chunkBlocks, inference.ContentBlockChunk{
							Type:              inference.ChunkToolCall,
							ID:                part.FunctionCall.Name,
							RawNameDelta:      part.FunctionCall.Name,
							RawArgumentsDelta: string(raw),
						})
					}
				}
			}
			chunk := &inference.Chunk{Content: chunkBlocks}
			if cand.FinishReason != "" {
				finish := convertGeminiFinishReason(cand.FinishReason)
				chunk.FinishReason = &finish
			}
			if resp.UsageMetadata != nil {
				usage := inference.Usage{
					InputTokens:  inference.IntPtr(int(resp.UsageMetadata.PromptTokenCount)),
					OutputTokens: inference.IntPtr(int(resp.UsageMetadata.CandidatesTokenCount)),
				}
				chunk.Usage = &usage
			}
			out <- StreamEvent{Chunk: chunk}
		}
	}()
	return out, string(rawReq), nil
}

func (a *GeminiAdapter) Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	client, err := a.client(ctx, cfg, creds)
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.EmbedContent(ctx, cfg.ModelName, []*genai.Content{{Parts: []*genai.Part{{Text: req.Input}}}}, nil)
	if err != nil {
		return nil, classifyGeminiError(err, req.Input)
	}
	var vec []float32
	if len(resp.Embeddings) > 0 {
		vec = resp.Embeddings[0].Values
	}
	return &inference.ModelInferenceResult{
		ApiType:      inference.ApiTypeEmbedding,
		ProviderType: inference.ProviderGemini,
		ProviderName: "gemini",
		ModelName:    cfg.ModelName,
		Embedding:    vec,
	}, nil
}

func classifyGeminiError(err error, rawReq string) *inference.Error {
	return &inference.Error{
		Kind:         inference.ErrInferenceServer,
		Message:      err.Error(),
		ProviderType: string(inference.ProviderGemini),
		RawRequest:   rawReq,
		Cause:        err,
	}
}
