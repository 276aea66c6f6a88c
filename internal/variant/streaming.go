package variant

import (
	"context"
	"time"

	"github.com/haasonsaas/gateway/internal/providers"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// StreamOutcome carries the record-keeping state a streamed inference
// leaves behind once its terminal chunk has been produced: the accumulated
// usage/finish reason and the model-call rows to persist, mirroring what
// Result carries for a non-streaming Execute.
type StreamOutcome struct {
	Usage        inference.Usage
	FinishReason inference.FinishReason
	ModelCalls   []inference.ModelInferenceResult
}

// StreamChunk is one item off a variant's streaming channel. Outcome is
// set only on the final item (after which the channel is closed); Err is
// set on a fatal failure (also final, with no Outcome).
type StreamChunk struct {
	Chunk   *inference.Chunk
	Outcome *StreamOutcome
	Err     error
}

// Streamer is implemented by variant executors that can drive true
// token-level streaming, i.e. every leaf chat-completion-shaped variant
// (ChatCompletion, ChainOfThought, DICL). Composed variants (BestOfN,
// MixtureOfN) do not implement this: per spec.md §4.8 their children
// always run non-streaming, and the orchestrator synthesizes a
// single-chunk stream from their Execute result instead.
type Streamer interface {
	ExecuteStream(ctx context.Context, cfg InferenceConfig, deps Deps) (<-chan StreamChunk, error)
}

func (c *ChatCompletion) ExecuteStream(ctx context.Context, cfg InferenceConfig, deps Deps) (<-chan StreamChunk, error) {
	v, ok := cfg.Function.Variants[cfg.VariantName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", cfg.VariantName)
	}
	streamCfg := cfg
	streamCfg.Stream = true
	req, err := buildRequest(v, streamCfg, deps, cfg.ExtraCacheKey)
	if err != nil {
		return nil, err
	}
	table, err := deps.Models.Get(v.Model)
	if err != nil {
		return nil, err
	}
	providerEvents, rawReq, pc, err := table.InferStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return adaptProviderStream(cfg, pc, rawReq, providerEvents), nil
}

// adaptProviderStream relays a provider adapter's raw StreamEvent channel
// into the variant-level StreamChunk channel, stamping inference/episode/
// variant identity onto each chunk and accumulating the final
// ModelInferenceResult (usage, finish reason, raw response) for record
// emission once the terminal chunk arrives.
func adaptProviderStream(cfg InferenceConfig, pc inference.ProviderConfig, rawReq string, in <-chan providers.StreamEvent) <-chan StreamChunk {
	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		start := time.Now()
		var rawResponse string
		var usage inference.Usage
		var finish inference.FinishReason
		var firstTokenAt *time.Duration

		for ev := range in {
			if ev.Err != nil {
				out <- StreamChunk{Err: ev.Err}
				return
			}
			chunk := ev.Chunk
			chunk.InferenceID = cfg.InferenceID
			chunk.EpisodeID = cfg.EpisodeID
			chunk.VariantName = cfg.VariantName
			// RawResponse is cumulative per spec.md §4.8's Chunk contract,
			// so the latest chunk's value is the full accumulated payload.
			rawResponse = chunk.RawResponse

			if firstTokenAt == nil && len(chunk.Content) > 0 {
				d := time.Since(start)
				firstTokenAt = &d
			}

			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if chunk.FinishReason != nil {
				finish = *chunk.FinishReason
			}

			out <- StreamChunk{Chunk: chunk}
			if chunk.Fatal != nil {
				return
			}
		}

		out <- StreamChunk{Outcome: &StreamOutcome{
			Usage:        usage,
			FinishReason: finish,
			ModelCalls: []inference.ModelInferenceResult{{
				ApiType:          inference.ApiTypeChat,
				ProviderType:     pc.Type,
				ModelName:        pc.ModelName,
				RawRequest:       rawReq,
				RawResponse:      rawResponse,
				Usage:            usage,
				FinishReason:     finish,
				Latency:          time.Since(start),
				TimeToFirstToken: firstTokenAt,
			}},
		}}
	}()
	return out
}

func (d *DICL) ExecuteStream(ctx context.Context, cfg InferenceConfig, deps Deps) (<-chan StreamChunk, error) {
	v, ok := cfg.Function.Variants[cfg.VariantName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", cfg.VariantName)
	}
	if deps.Exemplars == nil {
		return nil, inference.New(inference.ErrInternal, "dicl variant %q: no exemplar store configured", cfg.VariantName)
	}

	augmentedCfg, embedResult, err := d.augmentWithExemplars(ctx, cfg, deps, v)
	if err != nil {
		return nil, err
	}

	chunks, err := NewChatCompletion().ExecuteStream(ctx, augmentedCfg, deps)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		for sc := range chunks {
			if sc.Outcome != nil {
				sc.Outcome.ModelCalls = append([]inference.ModelInferenceResult{*embedResult}, sc.Outcome.ModelCalls...)
			}
			out <- sc
		}
	}()
	return out, nil
}

// SynthesizeSingleChunk implements spec.md §4.8's composed-variant
// streaming rule: run a composed variant (BestOfN, MixtureOfN) to
// completion non-streaming, then replay its result as a single content
// chunk followed immediately by the terminal usage/finish chunk. The
// orchestrator calls this for any streaming request whose selected
// variant does not implement Streamer.
func SynthesizeSingleChunk(cfg InferenceConfig, result *Result) <-chan StreamChunk {
	out := make(chan StreamChunk, 2)
	content := make([]inference.ContentBlockChunk, 0, len(result.Content))
	for _, block := range result.Content {
		switch block.Type {
		case inference.ContentText:
			content = append(content, inference.ContentBlockChunk{Type: inference.ChunkText, Text: block.Text})
		case inference.ContentToolCall:
			content = append(content, inference.ContentBlockChunk{
				Type:              inference.ChunkToolCall,
				ID:                block.ID,
				RawNameDelta:      block.RawName,
				RawArgumentsDelta: block.RawArguments,
			})
		case inference.ContentUnknown:
			if block.Thought != "" {
				content = append(content, inference.ContentBlockChunk{Type: inference.ChunkThought, ThoughtDelta: block.Thought})
			}
		}
	}
	usage := result.Usage
	finish := result.FinishReason
	out <- StreamChunk{Chunk: &inference.Chunk{
		InferenceID: cfg.InferenceID,
		EpisodeID:   cfg.EpisodeID,
		VariantName: cfg.VariantName,
		Content:     content,
		Usage:       &usage,
		FinishReason: &finish,
	}}
	out <- StreamChunk{Outcome: &StreamOutcome{Usage: usage, FinishReason: finish, ModelCalls: result.ModelCalls}}
	close(out)
	return out
}

func (c *ChainOfThought) ExecuteStream(ctx context.Context, cfg InferenceConfig, deps Deps) (<-chan StreamChunk, error) {
	// A chain-of-thought variant streams like any chat-completion variant:
	// the provider streams raw deltas of the {thinking, response} JSON
	// envelope. Splitting thinking from response incrementally isn't
	// meaningful mid-stream, so callers needing the final split use
	// Execute; ExecuteStream exists so a CoT variant can still participate
	// in a streaming inference without being forced into the composed-
	// variant synthesize-a-single-chunk path.
	return NewChatCompletion().ExecuteStream(ctx, cfg, deps)
}
