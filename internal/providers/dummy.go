package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// Dummy model-name keys. A dummy ProviderConfig's ModelName selects a
// canned scenario; this is the hermetic backend the scenarios of spec §8
// are defined against. Grounded on original_source's dummy.rs, whose
// DummyProvider switches canned behavior on self.model_name.
const (
	DummyModelGood         = "good"
	DummyModelError        = "error"
	DummyModelBasicTest    = "basic_test"
	DummyModelWeatherTool  = "weather_tool"
	DummyModelBadTool      = "bad_tool"
	DummyModelJSONSuccess  = "json_success"
	DummyModelJSONFail     = "json_fail"

	// Usage-override model names, supplemented from original_source's
	// get_model_usage (beyond the literal S1–S8 scenarios, cheap to
	// support and exercises the Usage invariant more thoroughly).
	DummyModelInputTokensZero           = "input_tokens_zero"
	DummyModelOutputTokensZero          = "output_tokens_zero"
	DummyModelInputOutputTokensZero     = "input_tokens_output_tokens_zero"
	DummyModelInputFiveOutputSix        = "input_five_output_six"
)

// DummyInferResponseContent is S1's canned chat text.
const DummyInferResponseContent = "Megumin gleefully chanted her spell, unleashing a thunderous explosion that lit up the sky and left a massive crater in its wake."

// DummyToolResponseArguments is S2's canned tool-call arguments.
const DummyToolResponseArguments = `{"location":"Brooklyn","units":"celsius"}`

// DummyBadToolArguments is S3's canned malformed tool-call arguments.
const DummyBadToolArguments = `{"location": "Brooklyn", "units": }`

// DummyJSONSuccessContent is S4's canned JSON answer.
const DummyJSONSuccessContent = `{"answer":"Hello"}`

// DummyJSONFailContent is S5's canned non-JSON prose, returned for a
// JSON-typed function to exercise the parsed=null fallback.
const DummyJSONFailContent = "I'm not sure how to answer that in JSON, but I can tell you about Japan."

// DummyProvider is the deterministic test backend.
type DummyProvider struct{}

// NewDummyProvider constructs the hermetic dummy adapter.
func NewDummyProvider() *DummyProvider { return &DummyProvider{} }

func (p *DummyProvider) Name() string { return "dummy" }

func (p *DummyProvider) getUsage(modelName string, outputTokens int) inference.Usage {
	switch modelName {
	case DummyModelInputTokensZero:
		return inference.Usage{InputTokens: inference.IntPtr(0), OutputTokens: inference.IntPtr(outputTokens)}
	case DummyModelOutputTokensZero:
		return inference.Usage{InputTokens: inference.IntPtr(10), OutputTokens: inference.IntPtr(0)}
	case DummyModelInputOutputTokensZero:
		return inference.Usage{InputTokens: inference.IntPtr(0), OutputTokens: inference.IntPtr(0)}
	case DummyModelInputFiveOutputSix:
		return inference.Usage{InputTokens: inference.IntPtr(5), OutputTokens: inference.IntPtr(6)}
	default:
		return inference.Usage{InputTokens: inference.IntPtr(10), OutputTokens: inference.IntPtr(outputTokens)}
	}
}

func (p *DummyProvider) build(req *inference.ModelInferenceRequest, cfg inference.ProviderConfig) (*inference.ModelInferenceResult, error) {
	modelName := cfg.ModelName
	rawRequest, _ := json.Marshal(req)
	result := &inference.ModelInferenceResult{
		ID:           uuid.NewString(),
		ApiType:      inference.ApiTypeChat,
		ProviderType: inference.ProviderDummy,
		ProviderName: "dummy",
		ModelName:    modelName,
		RawRequest:   string(rawRequest),
	}

	if modelName == DummyModelError {
		status := 500
		return nil, &inference.Error{
			Kind:         inference.ErrInferenceServer,
			Message:      "dummy provider configured to fail",
			ProviderType: string(inference.ProviderDummy),
			Status:       &status,
			RawRequest:   string(rawRequest),
		}
	}

	wantsTool := len(req.Tools.Tools) > 0 && req.Tools.Choice.Mode != inference.ToolChoiceNone

	switch {
	case modelName == DummyModelWeatherTool || (wantsTool && modelName != DummyModelBadTool && req.OutputSchema == nil):
		name := "get_temperature"
		if req.Tools.Choice.Mode == inference.ToolChoiceSpecific && req.Tools.Choice.Name != "" {
			name = req.Tools.Choice.Name
		} else if len(req.Tools.Tools) > 0 {
			name = req.Tools.Tools[0].Name
		}
		result.Content = []inference.ContentBlock{
			inference.ToolCallBlock(uuid.NewString(), name, name, json.RawMessage(DummyToolResponseArguments), DummyToolResponseArguments),
		}
		result.FinishReason = inference.FinishToolCall
		result.RawResponse = DummyToolResponseArguments

	case modelName == DummyModelBadTool:
		name := "get_temperature"
		if len(req.Tools.Tools) > 0 {
			name = req.Tools.Tools[0].Name
		}
		result.Content = []inference.ContentBlock{
			inference.ToolCallBlock(uuid.NewString(), name, name, nil, DummyBadToolArguments),
		}
		result.FinishReason = inference.FinishToolCall
		result.RawResponse = DummyBadToolArguments

	case modelName == DummyModelJSONFail || (req.OutputSchema != nil && modelName == DummyModelJSONFail):
		result.Content = []inference.ContentBlock{inference.TextBlock(DummyJSONFailContent)}
		result.FinishReason = inference.FinishStop
		result.RawResponse = DummyJSONFailContent

	case modelName == DummyModelJSONSuccess || req.OutputSchema != nil:
		payload := DummyJSONSuccessContent
		if req.JSONMode == inference.JSONModeTool {
			result.Content = []inference.ContentBlock{
				inference.ToolCallBlock(uuid.NewString(), inference.RespondToolName, inference.RespondToolName, json.RawMessage(payload), payload),
			}
			result.FinishReason = inference.FinishToolCall
		} else {
			result.Content = []inference.ContentBlock{inference.TextBlock(payload)}
			result.FinishReason = inference.FinishStop
		}
		result.RawResponse = payload

	case modelName == DummyModelGood:
		result.Content = []inference.ContentBlock{inference.TextBlock("This is a good, reliable response.")}
		result.FinishReason = inference.FinishStop
		result.RawResponse = "This is a good, reliable response."

	default:
		result.Content = []inference.ContentBlock{inference.TextBlock(DummyInferResponseContent)}
		result.FinishReason = inference.FinishStop
		result.RawResponse = DummyInferResponseContent
	}

	outputTokens := 10
	if len(result.Content) > 0 && result.Content[0].Type == inference.ContentText {
		outputTokens = len(result.Content[0].Text) / 10
		if outputTokens == 0 {
			outputTokens = 1
		}
	}
	result.Usage = p.getUsage(modelName, outputTokens)
	return result, nil
}

func (p *DummyProvider) Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	start := time.Now()
	result, err := p.build(req, cfg)
	if err != nil {
		return nil, err
	}
	result.Latency = time.Since(start)
	return result, nil
}

// InferStream splits the non-streaming result's content into a fixed
// number of delta chunks (16 for text, matching S6), preserving a stable
// content-block id across all deltas of a single tool call, then emits a
// terminal chunk carrying usage and finish reason.
func (p *DummyProvider) InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error) {
	rawRequest, _ := json.Marshal(req)
	result, err := p.build(req, cfg)
	if err != nil {
		return nil, string(rawRequest), err
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for _, block := range result.Content {
			switch block.Type {
			case inference.ContentText:
				const numChunks = 16
				fragments := splitIntoChunks(block.Text, numChunks)
				for _, frag := range fragments {
					select {
					case <-ctx.Done():
						out <- StreamEvent{Err: ctx.Err()}
						return
					case out <- StreamEvent{Chunk: &inference.Chunk{
						Content: []inference.ContentBlockChunk{{Type: inference.ChunkText, Text: frag}},
					}}:
					}
				}
			case inference.ContentToolCall:
				namePart, argsPart := block.RawName, block.RawArguments
				select {
				case <-ctx.Done():
					out <- StreamEvent{Err: ctx.Err()}
					return
				case out <- StreamEvent{Chunk: &inference.Chunk{
					Content: []inference.ContentBlockChunk{{
						Type:              inference.ChunkToolCall,
						ID:                block.ID,
						RawNameDelta:      namePart,
						RawArgumentsDelta: argsPart,
					}},
				}}:
				}
			}
		}
		finish := result.FinishReason
		usage := result.Usage
		out <- StreamEvent{Chunk: &inference.Chunk{
			Content:      []inference.ContentBlockChunk{},
			Usage:        &usage,
			FinishReason: &finish,
		}}
	}()
	return out, string(rawRequest), nil
}

func (p *DummyProvider) Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error) {
	vec := make([]float32, 8)
	for i := range vec {
		vec[i] = float32(i+1) / 8.0
	}
	rawRequest, _ := json.Marshal(req)
	return &inference.ModelInferenceResult{
		ID:           uuid.NewString(),
		ApiType:      inference.ApiTypeEmbedding,
		ProviderType: inference.ProviderDummy,
		ProviderName: "dummy",
		ModelName:    cfg.ModelName,
		RawRequest:   string(rawRequest),
		RawResponse:  fmt.Sprintf("%v", vec),
		Embedding:    vec,
		Usage:        p.getUsage(cfg.ModelName, 1),
	}, nil
}

// splitIntoChunks divides s into at most n roughly-equal non-empty
// fragments, in order, such that concatenation reproduces s exactly.
func splitIntoChunks(s string, n int) []string {
	if n <= 0 || len(s) == 0 {
		return nil
	}
	runes := []rune(s)
	if len(runes) < n {
		n = len(runes)
	}
	base := len(runes) / n
	rem := len(runes) % n
	fragments := make([]string, 0, n)
	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		fragments = append(fragments, string(runes[idx:idx+size]))
		idx += size
	}
	return fragments
}
