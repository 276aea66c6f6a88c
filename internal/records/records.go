// Package records assembles the two durable row shapes the orchestrator
// emits at the end of every non-dryrun inference — one InferenceRecord and
// one ModelInferenceRecord per underlying provider call — and defines the
// Emitter seam a caller wires to whatever observability store it runs.
// Building the store itself (durable persistence, querying, retention) is
// out of scope; this package only shapes and hands off the rows, grounded
// on the teacher's own row/store split in internal/observability/events.go.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// InferenceRecord is the top-level row for one orchestrator call: one per
// ChatResponse/JsonResponse (or completed stream), regardless of how many
// underlying provider calls it took.
type InferenceRecord struct {
	ID           string
	EpisodeID    string
	FunctionName string
	VariantName  string

	Input        inference.Input
	Output       json.RawMessage // ChatResponse.Content or JsonResponse.Output, serialized
	Tags         map[string]string
	Dryrun       bool

	FallbackAttempts []FallbackAttempt

	Usage        inference.Usage
	FinishReason inference.FinishReason

	Timestamp time.Time
	Duration  time.Duration

	Error string // set iff the inference ultimately failed
}

// FallbackAttempt records one variant that was tried and abandoned before
// the orchestrator's step 6 fallback succeeded (or exhausted), per
// spec.md §4.1's "tag each failure in the emitted error record".
type FallbackAttempt struct {
	VariantName string
	Error       string
}

// ModelInferenceRecord is one row per underlying provider call (chat or
// embedding), linked back to its parent InferenceRecord.
type ModelInferenceRecord struct {
	ID          string
	InferenceID string

	ApiType      inference.ApiType
	ProviderType inference.ProviderType
	ProviderName string
	ModelName    string

	RawRequest  string
	RawResponse string

	Usage        inference.Usage
	FinishReason inference.FinishReason

	Latency          time.Duration
	TimeToFirstToken *time.Duration

	Timestamp time.Time
}

// FromModelCall projects a provider-call result (as returned by a variant
// executor's Result.ModelCalls) into a durable row.
func FromModelCall(inferenceID string, r inference.ModelInferenceResult, ts time.Time) ModelInferenceRecord {
	return ModelInferenceRecord{
		ID:               r.ID,
		InferenceID:      inferenceID,
		ApiType:          r.ApiType,
		ProviderType:     r.ProviderType,
		ProviderName:     r.ProviderName,
		ModelName:        r.ModelName,
		RawRequest:       r.RawRequest,
		RawResponse:      r.RawResponse,
		Usage:            r.Usage,
		FinishReason:     r.FinishReason,
		Latency:          r.Latency,
		TimeToFirstToken: r.TimeToFirstToken,
		Timestamp:        ts,
	}
}

// Emitter is the seam between the orchestrator and whatever observability
// store a deployment runs; the gateway core never depends on a concrete
// database.
type Emitter interface {
	EmitInference(ctx context.Context, rec InferenceRecord) error
	EmitModelCall(ctx context.Context, rec ModelInferenceRecord) error
}

// Emit writes one InferenceRecord and its model-call rows, stopping (but
// not erroring the caller's inference) at the first emission failure. The
// orchestrator calls this after a successful or failed inference, skipped
// entirely when dryrun=true.
func Emit(ctx context.Context, emitter Emitter, inf InferenceRecord, calls []inference.ModelInferenceResult) error {
	if emitter == nil {
		return nil
	}
	if err := emitter.EmitInference(ctx, inf); err != nil {
		return fmt.Errorf("emit inference record %s: %w", inf.ID, err)
	}
	for _, c := range calls {
		row := FromModelCall(inf.ID, c, inf.Timestamp)
		if err := emitter.EmitModelCall(ctx, row); err != nil {
			return fmt.Errorf("emit model-call record for inference %s: %w", inf.ID, err)
		}
	}
	return nil
}

// MemoryEmitter is an in-process Emitter, useful for tests and for
// deployments that only need the records to be queryable in-process
// rather than durably persisted — mirroring the teacher's
// observability.MemoryEventStore.
type MemoryEmitter struct {
	mu        sync.RWMutex
	inferences map[string]InferenceRecord
	modelCalls map[string][]ModelInferenceRecord // keyed by InferenceID
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{
		inferences: make(map[string]InferenceRecord),
		modelCalls: make(map[string][]ModelInferenceRecord),
	}
}

func (m *MemoryEmitter) EmitInference(ctx context.Context, rec InferenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inferences[rec.ID] = rec
	return nil
}

func (m *MemoryEmitter) EmitModelCall(ctx context.Context, rec ModelInferenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelCalls[rec.InferenceID] = append(m.modelCalls[rec.InferenceID], rec)
	return nil
}

// Get returns one inference record and its model-call rows, sorted by
// timestamp, for inspection in tests or a debug endpoint.
func (m *MemoryEmitter) Get(inferenceID string) (InferenceRecord, []ModelInferenceRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inf, ok := m.inferences[inferenceID]
	if !ok {
		return InferenceRecord{}, nil, false
	}
	calls := append([]ModelInferenceRecord(nil), m.modelCalls[inferenceID]...)
	sort.Slice(calls, func(i, j int) bool { return calls[i].Timestamp.Before(calls[j].Timestamp) })
	return inf, calls, true
}
