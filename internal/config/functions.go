package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// FunctionConfig is the YAML shape of one function: its type, its schemas,
// and the variants an experiment policy chooses between.
type FunctionConfig struct {
	Type         string                    `yaml:"type"`
	Description  string                    `yaml:"description"`
	Variants     map[string]VariantConfig  `yaml:"variants"`
	Schemas      map[string]yaml.Node      `yaml:"schemas"`
	OutputSchema yaml.Node                 `yaml:"output_schema"`
	Tools        ToolConfig                `yaml:"tools"`
}

// VariantConfig is a tagged union over the five variant kinds (spec.md
// §4.2–4.6); only the fields relevant to Type need be set in YAML.
type VariantConfig struct {
	Type    string  `yaml:"type"`
	Weight  float64 `yaml:"weight"`
	Timeout time.Duration `yaml:"timeout"`

	Model             string           `yaml:"model"`
	SystemTemplate    string           `yaml:"system_template"`
	UserTemplate      string           `yaml:"user_template"`
	AssistantTemplate string           `yaml:"assistant_template"`
	JSONMode          string           `yaml:"json_mode"`
	Params            InferenceParams  `yaml:"params"`

	Candidates []string        `yaml:"candidates"`
	Evaluator  *VariantConfig  `yaml:"evaluator"`
	Fuser      *VariantConfig  `yaml:"fuser"`

	EmbeddingModel string `yaml:"embedding_model"`
	K              int    `yaml:"k"`
	NeighborScope  string `yaml:"neighbor_scope"`

	// Exemplars seeds internal/dicl's in-memory Store for this variant
	// (or the whole function, if NeighborScope is "function") with static
	// (input, output) pairs; a real deployment would back DICL with a
	// vector database instead, which is out of scope here.
	Exemplars []ExemplarConfig `yaml:"exemplars"`
}

// ExemplarConfig is one statically-configured DICL exemplar.
type ExemplarConfig struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// InferenceParams mirrors pkg/inference.InferenceParams for YAML decoding;
// every field is a pointer so "unset" and "zero" are distinguishable.
type InferenceParams struct {
	Temperature          *float64 `yaml:"temperature"`
	TopP                  *float64 `yaml:"top_p"`
	MaxTokens             *int     `yaml:"max_tokens"`
	Seed                  *int     `yaml:"seed"`
	PresencePenalty       *float64 `yaml:"presence_penalty"`
	FrequencyPenalty      *float64 `yaml:"frequency_penalty"`
	StopSequences         []string `yaml:"stop_sequences"`
	ReasoningEffort       *string  `yaml:"reasoning_effort"`
	ServiceTier           *string  `yaml:"service_tier"`
	Verbosity             *string  `yaml:"verbosity"`
	ThinkingBudgetTokens  *int     `yaml:"thinking_budget_tokens"`
}

func (p InferenceParams) toDomain() inference.InferenceParams {
	return inference.InferenceParams{
		Temperature:          p.Temperature,
		TopP:                 p.TopP,
		MaxTokens:            p.MaxTokens,
		Seed:                 p.Seed,
		PresencePenalty:      p.PresencePenalty,
		FrequencyPenalty:     p.FrequencyPenalty,
		StopSequences:        p.StopSequences,
		ReasoningEffort:      p.ReasoningEffort,
		ServiceTier:          p.ServiceTier,
		Verbosity:            p.Verbosity,
		ThinkingBudgetTokens: p.ThinkingBudgetTokens,
	}
}

// ToolConfig is the function-level default tool bundle, overridable
// per-call via spec.md §4.1's params.
type ToolConfig struct {
	Tools         []ToolDef `yaml:"tools"`
	Choice        string    `yaml:"choice"`
	ChoiceName    string    `yaml:"choice_name"`
	ParallelCalls bool      `yaml:"parallel_tool_calls"`
}

type ToolDef struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Parameters  yaml.Node `yaml:"parameters"`
	Strict      bool     `yaml:"strict"`
}

func nodeToJSON(node yaml.Node) (json.RawMessage, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode yaml node: %w", err)
	}
	return json.Marshal(v)
}

func (t ToolDef) toDomain() (inference.Tool, error) {
	params, err := nodeToJSON(t.Parameters)
	if err != nil {
		return inference.Tool{}, fmt.Errorf("tool %q: %w", t.Name, err)
	}
	return inference.Tool{Name: t.Name, Description: t.Description, Parameters: params, Strict: t.Strict}, nil
}

func (tc ToolConfig) toDomain() (inference.ToolConfig, error) {
	tools := make([]inference.Tool, len(tc.Tools))
	for i, t := range tc.Tools {
		converted, err := t.toDomain()
		if err != nil {
			return inference.ToolConfig{}, err
		}
		tools[i] = converted
	}
	mode := inference.ToolChoiceAuto
	if tc.Choice != "" {
		mode = inference.ToolChoiceMode(tc.Choice)
	}
	return inference.ToolConfig{
		Tools:         tools,
		Choice:        inference.ToolChoice{Mode: mode, Name: tc.ChoiceName},
		ParallelCalls: tc.ParallelCalls,
	}, nil
}

func (v VariantConfig) toDomain(name string) (*inference.VariantConfig, error) {
	out := &inference.VariantConfig{
		Name:              name,
		Type:              inference.VariantType(v.Type),
		Weight:            v.Weight,
		Timeout:           v.Timeout,
		Model:             v.Model,
		SystemTemplate:    v.SystemTemplate,
		UserTemplate:      v.UserTemplate,
		AssistantTemplate: v.AssistantTemplate,
		JSONMode:          inference.JSONMode(v.JSONMode),
		Params:            v.Params.toDomain(),
		Candidates:        v.Candidates,
		EmbeddingModel:    v.EmbeddingModel,
		K:                 v.K,
		NeighborScope:     v.NeighborScope,
	}

	evaluatorOrFuser := v.Evaluator
	if evaluatorOrFuser == nil {
		evaluatorOrFuser = v.Fuser
	}
	if evaluatorOrFuser != nil {
		nested, err := evaluatorOrFuser.toDomain(name + ":judge")
		if err != nil {
			return nil, err
		}
		out.EvaluatorOrFuser = nested
	}
	return out, nil
}

func (fc FunctionConfig) toDomain(name string) (*inference.FunctionConfig, error) {
	schemas := make(map[string]json.RawMessage, len(fc.Schemas))
	for role, node := range fc.Schemas {
		raw, err := nodeToJSON(node)
		if err != nil {
			return nil, fmt.Errorf("function %q schema %q: %w", name, role, err)
		}
		schemas[role] = raw
	}
	outputSchema, err := nodeToJSON(fc.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("function %q output_schema: %w", name, err)
	}

	variants := make(map[string]*inference.VariantConfig, len(fc.Variants))
	for vName, v := range fc.Variants {
		converted, err := v.toDomain(vName)
		if err != nil {
			return nil, fmt.Errorf("function %q variant %q: %w", name, vName, err)
		}
		variants[vName] = converted
	}

	tools, err := fc.Tools.toDomain()
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", name, err)
	}

	fnType := inference.FunctionChat
	if fc.Type == "json" {
		fnType = inference.FunctionJSON
	}

	return &inference.FunctionConfig{
		Name:         name,
		Type:         fnType,
		Description:  fc.Description,
		Variants:     variants,
		Schemas:      schemas,
		OutputSchema: outputSchema,
		Experiment:   inference.ExperimentPolicy{Name: "normalized-weight"},
		Tools:        tools,
	}, nil
}

// ToFunctions converts every configured function into the pkg/inference
// shape the orchestrator consumes, keyed by its map name.
func (c *Config) ToFunctions() (map[string]*inference.FunctionConfig, error) {
	out := make(map[string]*inference.FunctionConfig, len(c.Functions))
	for name, fn := range c.Functions {
		converted, err := fn.toDomain(name)
		if err != nil {
			return nil, err
		}
		out[name] = converted
	}
	return out, nil
}

// exemplarGroup is every statically-configured exemplar sharing one
// (function, scope) key, along with the embedding model to embed them
// with (the first variant in the group to declare one).
type exemplarGroup struct {
	EmbeddingModel string
	Entries        []ExemplarConfig
}

func (c *Config) exemplars() map[string]map[string]*exemplarGroup {
	out := make(map[string]map[string]*exemplarGroup)
	for fnName, fn := range c.Functions {
		for vName, v := range fn.Variants {
			if len(v.Exemplars) == 0 {
				continue
			}
			scopeKey := vName
			if v.NeighborScope == "function" {
				scopeKey = ""
			}
			if out[fnName] == nil {
				out[fnName] = make(map[string]*exemplarGroup)
			}
			group := out[fnName][scopeKey]
			if group == nil {
				group = &exemplarGroup{EmbeddingModel: v.EmbeddingModel}
				out[fnName][scopeKey] = group
			}
			group.Entries = append(group.Entries, v.Exemplars...)
		}
	}
	return out
}
