// Package providers implements the provider adapter trait: a uniform
// infer/infer_stream/embed contract that each backend (OpenAI, Anthropic,
// Azure, Gemini, Bedrock, Ollama, OpenRouter, and the hermetic dummy
// backend) implements by translating to and from its own wire format.
package providers

import (
	"context"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// Credentials resolves a named credential (e.g. a dynamic API key passed
// per-request) to its secret value. The gateway core never stores
// credentials itself; it only threads this lookup through to adapters.
type Credentials map[string]string

// Adapter is the provider adapter trait of spec §4.9. Every backend
// implements translation in both directions and never retries; retry and
// failover are the model table's responsibility.
type Adapter interface {
	// Infer performs one non-streaming chat/JSON call.
	Infer(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error)

	// InferStream performs one streaming call, returning a channel of
	// chunks and the literal wire request body sent (for record-keeping).
	InferStream(ctx context.Context, req *inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (<-chan StreamEvent, string, error)

	// Embed performs one embedding call, used by the DICL variant.
	Embed(ctx context.Context, req *inference.EmbeddingRequest, cfg inference.ProviderConfig, creds Credentials) (*inference.ModelInferenceResult, error)

	// Name identifies the adapter for logging/metrics.
	Name() string
}

// BatchAdapter is implemented by adapters that support asynchronous batch
// inference. Unsupported by default: the orchestrator never requires it.
type BatchAdapter interface {
	StartBatch(ctx context.Context, reqs []*inference.ModelInferenceRequest, cfg inference.ProviderConfig, creds Credentials) (string, error)
	PollBatch(ctx context.Context, batchID string, cfg inference.ProviderConfig, creds Credentials) (BatchStatus, []*inference.ModelInferenceResult, error)
}

// BatchStatus is the coarse state of an in-flight batch job.
type BatchStatus string

const (
	BatchPending   BatchStatus = "pending"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// StreamEvent is one item off an adapter's streaming channel: either a
// chunk, or a terminal error. The channel is always closed by the
// producer after the terminal chunk or error.
type StreamEvent struct {
	Chunk *inference.Chunk
	Err   error
}

// Registry maps a ProviderType to its Adapter implementation.
type Registry struct {
	adapters map[inference.ProviderType]Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by their
// declared ProviderType via the typeOf callback (adapters don't know their
// own ProviderType constant, since that lives in pkg/inference).
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[inference.ProviderType]Adapter)}
}

// Register adds an adapter under the given provider type, replacing any
// previous registration.
func (r *Registry) Register(t inference.ProviderType, a Adapter) {
	r.adapters[t] = a
}

// Get returns the adapter for a provider type, or ErrUnknownModel if none
// is registered.
func (r *Registry) Get(t inference.ProviderType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, inference.New(inference.ErrUnknownModel, "no adapter registered for provider type %q", t)
	}
	return a, nil
}
