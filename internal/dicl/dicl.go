// Package dicl implements dynamic in-context learning: embedding a new
// query, finding its K nearest stored exemplars, and rendering them into
// the variant's template variables so the model sees a handful of similar
// past (input, output) pairs before answering.
package dicl

import (
	"context"
	"math"
	"sort"

	"github.com/haasonsaas/gateway/internal/embeddings"
)

// Exemplar is one stored (input, output) pair available for retrieval,
// scoped per spec §4.8 either to the whole function or to one variant.
type Exemplar struct {
	Input     string
	Output    string
	Embedding []float32
}

// Store looks up exemplars for nearest-neighbor search. A real deployment
// backs this with a vector database; the orchestrator only depends on this
// interface, matching the Searcher-interface seam the teacher's RAG
// injector used to keep context assembly decoupled from its index backend.
type Store interface {
	List(ctx context.Context, functionName, variantName string) ([]Exemplar, error)
}

// NeighborScope selects whether Store.List is scoped to the function as a
// whole or to the specific variant requesting exemplars.
type NeighborScope string

const (
	ScopeFunction NeighborScope = "function"
	ScopeVariant  NeighborScope = "variant"
)

// Injector retrieves and ranks the K nearest exemplars for one DICL call.
type Injector struct {
	store    Store
	embedder embeddings.Provider
}

func NewInjector(store Store, embedder embeddings.Provider) *Injector {
	return &Injector{store: store, embedder: embedder}
}

// Neighbors embeds query, fetches the candidate exemplar pool scoped per
// scope, and returns the k closest by cosine similarity, nearest first.
func (inj *Injector) Neighbors(ctx context.Context, functionName, variantName string, scope NeighborScope, query string, k int) ([]Exemplar, error) {
	if inj.embedder == nil {
		return nil, nil
	}
	queryVec, err := inj.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return inj.NeighborsFromVector(ctx, functionName, variantName, scope, queryVec, k)
}

// NeighborsFromVector ranks the scoped exemplar pool against a
// caller-supplied query embedding, skipping the embedder entirely. Callers
// that must record their own embedding model-call (e.g. to attribute usage
// and latency) embed the query themselves and call this directly.
func (inj *Injector) NeighborsFromVector(ctx context.Context, functionName, variantName string, scope NeighborScope, queryVec []float32, k int) ([]Exemplar, error) {
	scopeVariant := variantName
	if scope == ScopeFunction {
		scopeVariant = ""
	}
	candidates, err := inj.store.List(ctx, functionName, scopeVariant)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 || k <= 0 {
		return nil, nil
	}

	type scored struct {
		exemplar Exemplar
		score    float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{exemplar: c, score: cosineSimilarity(queryVec, c.Embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]Exemplar, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].exemplar
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
