// Package orchestrator implements the top-level infer() entry point of
// spec.md §4.1: resolve a function, validate its input, assign identity,
// select and run a variant (with fallback across variants on provider-side
// failure), and emit durable records for a successful, non-dryrun call.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/gateway/internal/cache"
	"github.com/haasonsaas/gateway/internal/observability"
	"github.com/haasonsaas/gateway/internal/records"
	"github.com/haasonsaas/gateway/internal/selection"
	"github.com/haasonsaas/gateway/internal/toolcfg"
	"github.com/haasonsaas/gateway/internal/variant"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// Request is the uniform call shape of spec.md §4.1's infer() signature.
type Request struct {
	FunctionName string
	EpisodeID    string
	Input        inference.Input
	Stream       bool
	Dryrun       bool
	Tags         map[string]string
	VariantPin   string

	ToolParams    toolcfg.Params
	ExtraBody     map[string]any
	ExtraHeaders  map[string]string
	ExtraCacheKey string
	CacheMode     cache.Mode
}

// Response is the result of a non-streaming call: exactly one of Chat or
// JSON is set, matching the function's Type.
type Response struct {
	Chat *inference.ChatResponse
	JSON *inference.JsonResponse
}

// Orchestrator ties together function configuration, variant selection,
// and the variant executors into the gateway's single inference path.
type Orchestrator struct {
	Functions map[string]*inference.FunctionConfig
	Selector  *selection.Selector
	Deps      variant.Deps

	// Records receives a durable row pair for every successful, non-dryrun
	// call. Nil disables emission entirely.
	Records records.Emitter

	// Limiter, if set, is consulted once per variant attempt before
	// dispatch, scoped by function name, per spec.md §9's rate-limit
	// tracker.
	Limiter inference.RateLimiter

	// Metrics and Tracer are optional observability seams; nil disables
	// recording entirely.
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Logger reports record-emission failures, which otherwise have no
	// observer since Records is fire-and-forget from the caller's view.
	Logger *observability.Logger
}

// New returns a ready-to-use Orchestrator; Records and Limiter are left
// nil (disabled) and can be set directly, since both are optional seams.
func New(functions map[string]*inference.FunctionConfig, deps variant.Deps) *Orchestrator {
	return &Orchestrator{
		Functions: functions,
		Selector:  selection.New(),
		Deps:      deps,
		Logger:    observability.NewLogger(observability.LogConfig{}),
	}
}

// recordModelCalls reports per-model-call metrics for every model call an
// executor made during one variant attempt, successful or not.
func (o *Orchestrator) recordModelCalls(calls []inference.ModelInferenceResult, status string) {
	if o.Metrics == nil {
		return
	}
	for _, c := range calls {
		prompt, completion := 0, 0
		if c.Usage.InputTokens != nil {
			prompt = *c.Usage.InputTokens
		}
		if c.Usage.OutputTokens != nil {
			completion = *c.Usage.OutputTokens
		}
		o.Metrics.RecordModelCall(string(c.ProviderType), c.ModelName, status, c.Latency.Seconds(), prompt, completion)
	}
}

func (o *Orchestrator) resolveFunction(name string) (*inference.FunctionConfig, error) {
	fn, ok := o.Functions[name]
	if !ok {
		return nil, inference.New(inference.ErrUnknownFunction, "function %q is not configured", name)
	}
	return fn, nil
}

// validateInput implements spec.md §4.1 step 2: input.system against the
// system schema, and each message's structured content blocks against the
// role schema for their message's role. Tool calls, tool results, files and
// plain text pass through unvalidated regardless of role.
func (o *Orchestrator) validateInput(fn *inference.FunctionConfig, input inference.Input) error {
	if sysSchema, ok := fn.Schemas["system"]; ok && len(sysSchema) > 0 {
		if verr := o.Deps.Validator.Validate("system", sysSchema, input.System); verr != nil {
			return verr
		}
	}
	for i, msg := range input.Messages {
		roleSchema := fn.Schemas[string(msg.Role)]
		if len(roleSchema) == 0 {
			continue
		}
		for j, block := range msg.Content {
			if block.Type != inference.ContentStructured {
				continue
			}
			if verr := o.Deps.Validator.Validate(string(msg.Role), roleSchema, block.Value); verr != nil {
				return inference.Wrap(inference.ErrSchemaValidation, verr, "message %d block %d", i, j)
			}
		}
	}
	return nil
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (o *Orchestrator) buildConfig(inferenceID, episodeID string, fn *inference.FunctionConfig, variantName string, req Request) variant.InferenceConfig {
	return variant.InferenceConfig{
		InferenceID:   inferenceID,
		EpisodeID:     episodeID,
		Function:      fn,
		VariantName:   variantName,
		Input:         req.Input,
		Stream:        req.Stream,
		ToolParams:    req.ToolParams,
		ExtraBody:     req.ExtraBody,
		ExtraHeaders:  req.ExtraHeaders,
		ExtraCacheKey: req.ExtraCacheKey,
		CacheMode:     req.CacheMode,
	}
}

// Infer runs steps 1-7 of spec.md §4.1 for a non-streaming call.
func (o *Orchestrator) Infer(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	fn, err := o.resolveFunction(req.FunctionName)
	if err != nil {
		return nil, err
	}
	if err := o.validateInput(fn, req.Input); err != nil {
		return nil, err
	}

	inferenceID := newID()
	episodeID := req.EpisodeID
	if episodeID == "" {
		episodeID = newID()
	}

	if o.Tracer != nil {
		var span trace.Span
		ctx, span = o.Tracer.TraceInference(ctx, fn.Name, req.VariantPin, episodeID)
		defer span.End()
	}

	excluded := map[string]bool{}
	pin := req.VariantPin
	var fallbackAttempts []records.FallbackAttempt

	for {
		variantName, serr := o.Selector.Select(fn, episodeID, pin, excluded)
		if serr != nil {
			o.recordInferenceOutcome(fn.Name, variantName, "error", start)
			return nil, o.wrapFallbackFailure(serr, fallbackAttempts)
		}

		if o.Limiter != nil {
			if lerr := o.Limiter.Acquire(ctx, fn.Name, 1); lerr != nil {
				if o.Metrics != nil {
					o.Metrics.RecordRateLimitRejection(fn.Name)
				}
				o.recordInferenceOutcome(fn.Name, variantName, "error", start)
				return nil, lerr
			}
		}

		v, ok := fn.Variants[variantName]
		if !ok {
			return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", variantName)
		}

		cfg := o.buildConfig(inferenceID, episodeID, fn, variantName, req)
		executor := variant.Resolve(v)

		attemptCtx := ctx
		var attemptSpan trace.Span
		if o.Tracer != nil {
			attemptCtx, attemptSpan = o.Tracer.TraceVariantExecution(ctx, string(v.Type), variantName)
		}
		result, verr := executor.Execute(attemptCtx, cfg, o.Deps)
		if attemptSpan != nil {
			if verr != nil {
				o.Tracer.RecordError(attemptSpan, verr)
			}
			attemptSpan.End()
		}

		if verr == nil {
			o.recordModelCalls(result.ModelCalls, "success")
			o.recordInferenceOutcome(fn.Name, variantName, "success", start)
			resp := o.buildResponse(fn, inferenceID, episodeID, variantName, result)
			if !req.Dryrun {
				o.emitSuccess(ctx, inferenceID, episodeID, fn.Name, variantName, req, result, fallbackAttempts, start)
			}
			return resp, nil
		}

		fallbackAttempts = append(fallbackAttempts, records.FallbackAttempt{VariantName: variantName, Error: verr.Error()})

		infErr, classified := inference.AsError(verr)
		if !classified || !infErr.ShouldFailover() {
			o.recordInferenceOutcome(fn.Name, variantName, "error", start)
			return nil, o.wrapFallbackFailure(verr, fallbackAttempts)
		}

		if o.Metrics != nil {
			o.Metrics.RecordFallback(fn.Name, variantName)
		}
		excluded[variantName] = true
		pin = "" // a pinned variant only gets the first attempt; fallback draws normally
	}
}

// recordInferenceOutcome reports the top-level inference counter/histogram
// once per call, regardless of how many variants were attempted.
func (o *Orchestrator) recordInferenceOutcome(functionName, variantName, status string, start time.Time) {
	if o.Metrics == nil {
		return
	}
	o.Metrics.RecordInference(functionName, variantName, status, time.Since(start).Seconds())
}

// wrapFallbackFailure surfaces the final error unchanged when no fallback
// was attempted, and otherwise notes how many variants were tried.
func (o *Orchestrator) wrapFallbackFailure(final error, attempts []records.FallbackAttempt) error {
	if len(attempts) == 0 {
		return final
	}
	tried := make([]string, len(attempts))
	for i, a := range attempts {
		tried[i] = a.VariantName
	}
	if infErr, ok := inference.AsError(final); ok {
		return inference.Wrap(infErr.Kind, final, "exhausted fallback across variants [%s]", strings.Join(tried, ", "))
	}
	return fmt.Errorf("exhausted fallback across variants [%s]: %w", strings.Join(tried, ", "), final)
}

func (o *Orchestrator) buildResponse(fn *inference.FunctionConfig, inferenceID, episodeID, variantName string, result *variant.Result) *Response {
	calls := append([]inference.ModelInferenceResult(nil), result.ModelCalls...)
	if fn.Type == inference.FunctionJSON {
		output := inference.JSONOutput{}
		if result.JSONOutput != nil {
			output = *result.JSONOutput
		}
		return &Response{JSON: &inference.JsonResponse{
			InferenceID:           inferenceID,
			EpisodeID:             episodeID,
			VariantName:           variantName,
			Output:                output,
			Usage:                 result.Usage,
			FinishReason:          result.FinishReason,
			ModelInferenceResults: calls,
		}}
	}
	return &Response{Chat: &inference.ChatResponse{
		InferenceID:           inferenceID,
		EpisodeID:             episodeID,
		VariantName:           variantName,
		Content:               result.Content,
		Usage:                 result.Usage,
		FinishReason:          result.FinishReason,
		ModelInferenceResults: calls,
	}}
}

func (o *Orchestrator) emitSuccess(ctx context.Context, inferenceID, episodeID, functionName, variantName string, req Request, result *variant.Result, fallbackAttempts []records.FallbackAttempt, start time.Time) {
	if o.Records == nil {
		return
	}
	output, err := json.Marshal(responseOutput(result))
	if err != nil {
		output = nil
	}
	rec := records.InferenceRecord{
		ID:               inferenceID,
		EpisodeID:        episodeID,
		FunctionName:     functionName,
		VariantName:      variantName,
		Input:            req.Input,
		Output:           output,
		Tags:             req.Tags,
		Dryrun:           false,
		FallbackAttempts: fallbackAttempts,
		Usage:            result.Usage,
		FinishReason:     result.FinishReason,
		Timestamp:        start,
		Duration:         time.Since(start),
	}
	if err := records.Emit(ctx, o.Records, rec, result.ModelCalls); err != nil && o.Logger != nil {
		o.Logger.Error(ctx, "emit inference record failed", "inference_id", inferenceID, "error", err)
	}
}

func responseOutput(result *variant.Result) any {
	if result.JSONOutput != nil {
		return result.JSONOutput
	}
	return result.Content
}

// InferStream runs a streaming call. Per spec.md §4.1's failure semantics,
// there is no cross-variant fallback once streaming has begun: a provider
// error on the first token surfaces as a failed call (no chunks were yet
// delivered), and a mid-stream error becomes a fatal chunk on the channel
// the caller already holds.
func (o *Orchestrator) InferStream(ctx context.Context, req Request) (<-chan variant.StreamChunk, error) {
	start := time.Now()

	fn, err := o.resolveFunction(req.FunctionName)
	if err != nil {
		return nil, err
	}
	if err := o.validateInput(fn, req.Input); err != nil {
		return nil, err
	}

	inferenceID := newID()
	episodeID := req.EpisodeID
	if episodeID == "" {
		episodeID = newID()
	}

	variantName, err := o.Selector.Select(fn, episodeID, req.VariantPin, nil)
	if err != nil {
		return nil, err
	}
	if o.Limiter != nil {
		if lerr := o.Limiter.Acquire(ctx, fn.Name, 1); lerr != nil {
			return nil, lerr
		}
	}
	v, ok := fn.Variants[variantName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", variantName)
	}

	req.Stream = true
	cfg := o.buildConfig(inferenceID, episodeID, fn, variantName, req)
	executor := variant.Resolve(v)

	var inferenceSpan trace.Span
	if o.Tracer != nil {
		ctx, inferenceSpan = o.Tracer.TraceInference(ctx, fn.Name, variantName, episodeID)
	}

	var chunks <-chan variant.StreamChunk
	if streamer, ok := executor.(variant.Streamer); ok {
		chunks, err = streamer.ExecuteStream(ctx, cfg, o.Deps)
		if err != nil {
			o.recordInferenceOutcome(fn.Name, variantName, "error", start)
			return nil, err
		}
	} else {
		result, err := executor.Execute(ctx, cfg, o.Deps)
		if err != nil {
			o.recordInferenceOutcome(fn.Name, variantName, "error", start)
			return nil, err
		}
		chunks = variant.SynthesizeSingleChunk(cfg, result)
	}

	out := make(chan variant.StreamChunk)
	go o.relayStream(ctx, chunks, out, inferenceID, episodeID, fn.Name, variantName, req, start, inferenceSpan)
	return out, nil
}

// relayStream passes each chunk through unchanged, accumulating a rough
// text projection of the streamed content for the eventual inference
// record (the durable record format is defined over a finished response,
// not a chunk sequence, so streaming records trade block-level fidelity
// for a simple text accumulation).
func (o *Orchestrator) relayStream(ctx context.Context, in <-chan variant.StreamChunk, out chan<- variant.StreamChunk, inferenceID, episodeID, functionName, variantName string, req Request, start time.Time, span trace.Span) {
	defer close(out)
	if span != nil {
		defer span.End()
	}
	var text strings.Builder
	status := "success"
	for sc := range in {
		if sc.Chunk != nil {
			for _, part := range sc.Chunk.Content {
				switch part.Type {
				case inference.ChunkText:
					text.WriteString(part.Text)
				case inference.ChunkToolCall:
					text.WriteString(part.RawArgumentsDelta)
				}
			}
		}
		out <- sc
		if sc.Err != nil {
			status = "error"
			if span != nil {
				o.Tracer.RecordError(span, sc.Err)
			}
		}
		if sc.Outcome == nil {
			continue
		}
		o.recordModelCalls(sc.Outcome.ModelCalls, status)
		o.recordInferenceOutcome(functionName, variantName, status, start)
		if !req.Dryrun && o.Records != nil {
			output, merr := json.Marshal(text.String())
			if merr != nil {
				output = nil
			}
			rec := records.InferenceRecord{
				ID:           inferenceID,
				EpisodeID:    episodeID,
				FunctionName: functionName,
				VariantName:  variantName,
				Input:        req.Input,
				Output:       output,
				Tags:         req.Tags,
				Usage:        sc.Outcome.Usage,
				FinishReason: sc.Outcome.FinishReason,
				Timestamp:    start,
				Duration:     time.Since(start),
			}
			if err := records.Emit(ctx, o.Records, rec, sc.Outcome.ModelCalls); err != nil && o.Logger != nil {
				o.Logger.Error(ctx, "emit streamed inference record failed", "inference_id", inferenceID, "error", err)
			}
		}
	}
}
