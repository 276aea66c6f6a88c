// Package embeddings adapts the gateway's model table to the embedding
// provider contract DICL's nearest-neighbor index needs: embed one string,
// or a batch of them, against a configured embedding model.
package embeddings

import (
	"context"

	"github.com/haasonsaas/gateway/internal/modeltable"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// Provider embeds text against a single configured model.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// modelTableProvider implements Provider by dispatching through a
// modeltable.Table, reusing the provider adapters' Embed method instead of
// a bespoke per-backend embedding client.
type modelTableProvider struct {
	table *modeltable.Table
	name  string
}

func NewProvider(name string, table *modeltable.Table) Provider {
	return &modelTableProvider{table: table, name: name}
}

func (p *modelTableProvider) Name() string { return p.name }

func (p *modelTableProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.table.Embed(ctx, &inference.EmbeddingRequest{Input: text})
	if err != nil {
		return nil, err
	}
	return result.Embedding, nil
}

func (p *modelTableProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
