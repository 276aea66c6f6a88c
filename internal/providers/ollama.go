package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// OllamaAdapter implements Adapter against a local or remote Ollama
// server's native /api/chat endpoint.
type OllamaAdapter struct {
	httpClient *http.Client
}

func NewOllamaAdapter() *OllamaAdapter {
	return &OllamaAdapter{httpClient: &http.Client{Timeout: 2 * time.Minute}}
}

func (a *OllamaAdapter) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  map[string]any   `json:"options,omitempty"`
	Format   json.RawMessage  `json:"format,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done               bool `json:"done"`
	PromptEvalCount    int  `json:"prompt_eval_count"`
	EvalCount          int  `json:"eval_count"`
}

func baseURL(cfg inference.ProviderConfig) string {
	url := strings.TrimRight(cfg.Endpoint, "/")
	if url == "" {
		url = "http://localhost:11434"
	}
	return url
}

func (a *OllamaAdapter) buildRequest(req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, stream bool) ollamaChatRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		var text string
		for _, b := range m.Content {
			if b.Type == inference.ContentText {
				text += b.Text
			}
		}
		role := "user"
		if m.Role == inference.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, ollamaMessage{Role: role, Content: text})
	}
	out := ollamaChatRequest{Model: cfg.ModelName, Messages: messages, Stream: stream}
	if req.JSONMode == inference.JSONModeOn || req.JSONMode == inference.JSONModeStrict {
		out.Format = json.RawMessage(`"json"`)
	}
	return out
}

func (a *OllamaAdapter) Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	chatReq := a.buildRequest(req, cfg, false)
	rawReq, _ := json.Marshal(chatReq)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(cfg)+"/api/chat", bytes.NewReader(rawReq))
	if err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "build ollama request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range MergeExtraHeaders(req.ExtraHeaders, cfg.ExtraHeaders) {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, WrapTransportError(inference.ProviderOllama, err, string(rawReq))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ClassifyHTTPResponse(inference.ProviderOllama, resp, string(rawReq))
	}

	var decoded ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "decode ollama response")
	}
	rawResp, _ := json.Marshal(decoded)

	return &inference.ModelInferenceResult{
		ApiType:      inference.ApiTypeChat,
		ProviderType: inference.ProviderOllama,
		ProviderName: "ollama",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawReq),
		RawResponse:  string(rawResp),
		Latency:      time.Since(start),
		Content:      []inference.ContentBlock{inference.TextBlock(decoded.Message.Content)},
		FinishReason: inference.FinishStop,
		Usage: inference.Usage{
			InputTokens:  inference.IntPtr(decoded.PromptEvalCount),
			OutputTokens: inference.IntPtr(decoded.EvalCount),
		},
	}, nil
}

func (a *OllamaAdapter) InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error) {
	chatReq := a.buildRequest(req, cfg, true)
	rawReq, _ := json.Marshal(chatReq)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(cfg)+"/api/chat", bytes.NewReader(rawReq))
	if err != nil {
		return nil, string(rawReq), inference.Wrap(inference.ErrSerialization, err, "build ollama request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, string(rawReq), WrapTransportError(inference.ProviderOllama, err, string(rawReq))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, string(rawReq), ClassifyHTTPResponse(inference.ProviderOllama, resp, string(rawReq))
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		decoder := json.NewDecoder(resp.Body)
		for {
			var line ollamaChatResponse
			if err := decoder.Decode(&line); err != nil {
				return
			}
			if line.Message.Content != "" {
				out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{{Type: inference.ChunkText, Text: line.Message.Content}}}}
			}
			if line.Done {
				finish := inference.FinishStop
				usage := inference.Usage{
					InputTokens:  inference.IntPtr(line.PromptEvalCount),
					OutputTokens: inference.IntPtr(line.EvalCount),
				}
				out <- StreamEvent{Chunk: &inference.Chunk{Content: []inference.ContentBlockChunk{}, Usage: &usage, FinishReason: &finish}}
				return
			}
		}
	}()
	return out, string(rawReq), nil
}

func (a *OllamaAdapter) Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	payload := map[string]any{"model": cfg.ModelName, "prompt": req.Input}
	rawReq, _ := json.Marshal(payload)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(cfg)+"/api/embeddings", bytes.NewReader(rawReq))
	if err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "build ollama embed request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, WrapTransportError(inference.ProviderOllama, err, string(rawReq))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, ClassifyHTTPResponse(inference.ProviderOllama, resp, string(rawReq))
	}
	var decoded struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, inference.Wrap(inference.ErrSerialization, err, "decode ollama embed response")
	}
	return &inference.ModelInferenceResult{
		ApiType:      inference.ApiTypeEmbedding,
		ProviderType: inference.ProviderOllama,
		ProviderName: "ollama",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawReq),
		Embedding:    decoded.Embedding,
	}, nil
}
