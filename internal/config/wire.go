package config

import (
	"context"
	"fmt"

	"github.com/haasonsaas/gateway/internal/cache"
	"github.com/haasonsaas/gateway/internal/dicl"
	"github.com/haasonsaas/gateway/internal/embeddings"
	"github.com/haasonsaas/gateway/internal/modeltable"
	"github.com/haasonsaas/gateway/internal/providers"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// BuildProviderRegistry registers every adapter this build knows about.
// Every adapter but Bedrock is stateless and safe to register
// unconditionally; Bedrock needs a region and an AWS SDK client, so it is
// only constructed when a configured model actually names it.
func (c *Config) BuildProviderRegistry(ctx context.Context) (*providers.Registry, error) {
	registry := providers.NewRegistry()
	registry.Register(inference.ProviderOpenAI, providers.NewOpenAIAdapter())
	registry.Register(inference.ProviderAnthropic, providers.NewAnthropicAdapter())
	registry.Register(inference.ProviderAzure, providers.NewAzureAdapter())
	registry.Register(inference.ProviderGemini, providers.NewGeminiAdapter())
	registry.Register(inference.ProviderOllama, providers.NewOllamaAdapter())
	registry.Register(inference.ProviderOpenRouter, providers.NewOpenRouterAdapter())
	registry.Register(inference.ProviderDummy, providers.NewDummyProvider())

	if region, ok := c.firstBedrockRegion(); ok {
		adapter, err := providers.NewBedrockAdapter(ctx, region)
		if err != nil {
			return nil, fmt.Errorf("build bedrock adapter: %w", err)
		}
		registry.Register(inference.ProviderBedrock, adapter)
	}
	return registry, nil
}

func (c *Config) firstBedrockRegion() (string, bool) {
	for _, model := range c.Models {
		for _, p := range model.Providers {
			if inference.ProviderType(p.Type) == inference.ProviderBedrock {
				return p.Region, true
			}
		}
	}
	return "", false
}

// BuildModelRegistry converts every configured model into a modeltable.Table
// and wires the shared response cache into each.
func (c *Config) BuildModelRegistry(adapters *providers.Registry, responseCache *cache.ResponseCache) *modeltable.Registry {
	registry := modeltable.NewRegistry()
	registry.SetCache(responseCache)
	for name, model := range c.ToDomain() {
		registry.Add(model, adapters, c.Gateway.Breaker)
	}
	return registry
}

// BuildCache constructs the process-local response cache from
// gateway.cache, independent of any one call's cache_options mode.
func (c *Config) BuildCache() *cache.ResponseCache {
	return cache.New(cache.Options{TTL: c.Gateway.Cache.TTL, MaxSize: c.Gateway.Cache.MaxSize})
}

// BuildDICLStore embeds every statically-configured exemplar up front and
// returns a ready-to-query dicl.Store. A function with no exemplars
// configured simply gets no entries, and its DICL variants (if any) will
// retrieve zero neighbors rather than error.
func (c *Config) BuildDICLStore(ctx context.Context, models *modeltable.Registry) (*dicl.MemoryStore, error) {
	store := dicl.NewMemoryStore()
	for fnName, scopes := range c.exemplars() {
		for scopeKey, group := range scopes {
			if group.EmbeddingModel == "" {
				return nil, fmt.Errorf("function %q: exemplars configured without an embedding_model", fnName)
			}
			table, err := models.Get(group.EmbeddingModel)
			if err != nil {
				return nil, fmt.Errorf("function %q: %w", fnName, err)
			}
			embedder := embeddings.NewProvider(group.EmbeddingModel, table)
			for _, ex := range group.Entries {
				vec, err := embedder.Embed(ctx, ex.Input)
				if err != nil {
					return nil, fmt.Errorf("function %q: embed exemplar: %w", fnName, err)
				}
				store.Add(fnName, scopeKey, dicl.Exemplar{Input: ex.Input, Output: ex.Output, Embedding: vec})
			}
		}
	}
	return store, nil
}
