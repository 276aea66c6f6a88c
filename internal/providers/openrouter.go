package providers

import (
	"context"
	"encoding/json"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// OpenRouterAdapter implements Adapter against OpenRouter's
// OpenAI-compatible API (https://openrouter.ai/api/v1), which aggregates
// many upstream models behind one wire format.
type OpenRouterAdapter struct{}

func NewOpenRouterAdapter() *OpenRouterAdapter { return &OpenRouterAdapter{} }

func (a *OpenRouterAdapter) Name() string { return "openrouter" }

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

func (a *OpenRouterAdapter) client(cfg inference.ProviderConfig, creds Credentials) (*openai.Client, error) {
	key := resolveCredential(cfg.Credential, creds)
	if key == "" {
		return nil, inference.New(inference.ErrAPIKeyMissing, "openrouter api key not configured")
	}
	oaiCfg := openai.DefaultConfig(key)
	oaiCfg.BaseURL = defaultOpenRouterBaseURL
	if cfg.Endpoint != "" {
		oaiCfg.BaseURL = cfg.Endpoint
	}
	return openai.NewClientWithConfig(oaiCfg), nil
}

func (a *OpenRouterAdapter) Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	client, err := a.client(cfg, creds)
	if err != nil {
		return nil, err
	}
	chatReq, err := buildChatRequest(req, cfg, false)
	if err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "build openrouter request")
	}
	rawReq, _ := json.Marshal(chatReq)

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err, string(rawReq))
	}
	rawResp, _ := json.Marshal(resp)

	result := &inference.ModelInferenceResult{
		ID:           resp.ID,
		ApiType:      inference.ApiTypeChat,
		ProviderType: inference.ProviderOpenRouter,
		ProviderName: "openrouter",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawReq),
		RawResponse:  string(rawResp),
		Latency:      time.Since(start),
	}
	if len(resp.Choices) > 0 {
		result.Content = convertOpenAIMessageToBlocks(resp.Choices[0].Message)
		result.FinishReason = convertOpenAIFinishReason(resp.Choices[0].FinishReason)
	}
	result.Usage = inference.Usage{
		InputTokens:  inference.IntPtr(resp.Usage.PromptTokens),
		OutputTokens: inference.IntPtr(resp.Usage.CompletionTokens),
	}
	return result, nil
}

func (a *OpenRouterAdapter) InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error) {
	client, err := a.client(cfg, creds)
	if err != nil {
		return nil, "", err
	}
	chatReq, err := buildChatRequest(req, cfg, true)
	if err != nil {
		return nil, "", inference.Wrap(inference.ErrSerialization, err, "build openrouter request")
	}
	rawReq, _ := json.Marshal(chatReq)

	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, string(rawReq), classifyOpenAIError(err, string(rawReq))
	}
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if err.Error() == "EOF" {
					return
				}
				out <- StreamEvent{Err: classifyOpenAIError(err, string(rawReq))}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{{Type: inference.ChunkText, Text: delta.Content}}}}
			}
			if resp.Choices[0].FinishReason != "" {
				finish := convertOpenAIFinishReason(resp.Choices[0].FinishReason)
				out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{}, FinishReason: &finish}}
			}
		}
	}()
	return out, string(rawReq), nil
}

func (a *OpenRouterAdapter) Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	return nil, inference.New(inference.ErrInternal, "openrouter embeddings are not exposed through this adapter")
}
