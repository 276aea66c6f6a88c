package config

import (
	"testing"
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

func TestModelConfigToDomainConvertsProviderChain(t *testing.T) {
	cfg := &Config{
		Models: map[string]ModelConfig{
			"gpt": {
				Providers: []ProviderConfig{
					{
						Type:       "openai",
						ModelName:  "gpt-4o",
						Credential: CredentialConfig{Env: "OPENAI_API_KEY"},
						Timeout:    5 * time.Second,
						Region:     "",
					},
					{
						Type:       "bedrock",
						ModelName:  "anthropic.claude",
						Credential: CredentialConfig{None: true},
						Region:     "us-east-1",
					},
				},
			},
		},
	}

	domain := cfg.ToDomain()
	model, ok := domain["gpt"]
	if !ok {
		t.Fatalf("expected model %q in domain map", "gpt")
	}
	if model.Name != "gpt" {
		t.Fatalf("expected ModelConfig.Name to be set to the map key, got %q", model.Name)
	}
	if len(model.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(model.Providers))
	}

	first := model.Providers[0]
	if first.Type != inference.ProviderOpenAI {
		t.Fatalf("expected first provider type openai, got %q", first.Type)
	}
	if first.Credential.Env != "OPENAI_API_KEY" {
		t.Fatalf("expected credential env to carry through, got %+v", first.Credential)
	}

	second := model.Providers[1]
	if second.Type != inference.ProviderBedrock || second.Credential.None != true {
		t.Fatalf("expected second provider to be bedrock with no credential, got %+v", second)
	}
}
