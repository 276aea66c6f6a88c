package config

import (
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// ModelConfig is the YAML shape of one logical model: a name to fail over
// across an ordered chain of ProviderConfig entries.
type ModelConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one entry in a model's provider chain.
type ProviderConfig struct {
	Type       string            `yaml:"type"`
	ModelName  string            `yaml:"model_name"`
	Endpoint   string            `yaml:"endpoint"`
	Credential CredentialConfig  `yaml:"credentials"`
	Timeout    time.Duration     `yaml:"timeout"`

	// Region is only meaningful for the bedrock provider type, naming the
	// AWS region its client is constructed against.
	Region string `yaml:"region"`

	// DiscardUnknownChunks tells the adapter to drop any streamed event it
	// can't classify rather than erroring the whole stream.
	DiscardUnknownChunks bool `yaml:"discard_unknown_chunks"`

	ExtraBody    map[string]any    `yaml:"extra_body"`
	ExtraHeaders map[string]string `yaml:"extra_headers"`
}

// CredentialConfig names where a provider's API key lives. Exactly one of
// Env, Dynamic or None should be set; Env wins if more than one is given.
type CredentialConfig struct {
	Env     string `yaml:"env"`
	Dynamic string `yaml:"dynamic"`
	None    bool   `yaml:"none"`
}

func (c CredentialConfig) toDomain() inference.CredentialLocation {
	return inference.CredentialLocation{Env: c.Env, Dynamic: c.Dynamic, None: c.None}
}

// ToDomain converts every configured model into the pkg/inference shape
// the model table registry consumes, keyed by its map name.
func (c *Config) ToDomain() map[string]inference.ModelConfig {
	out := make(map[string]inference.ModelConfig, len(c.Models))
	for name, m := range c.Models {
		providers := make([]inference.ProviderConfig, len(m.Providers))
		for i, p := range m.Providers {
			providers[i] = inference.ProviderConfig{
				Type:                 inference.ProviderType(p.Type),
				ModelName:            p.ModelName,
				Endpoint:             p.Endpoint,
				Credential:           p.Credential.toDomain(),
				Timeout:              p.Timeout,
				DiscardUnknownChunks: p.DiscardUnknownChunks,
				ExtraBody:            p.ExtraBody,
				ExtraHeaders:         p.ExtraHeaders,
			}
		}
		out[name] = inference.ModelConfig{Name: name, Providers: providers}
	}
	return out
}
