package inference

import (
	"encoding/json"
	"time"
)

// ReservedFunctionPrefix namespaces built-in function identifiers (e.g. the
// best-of-N evaluator's internal templates) away from user-defined ones.
const ReservedFunctionPrefix = "t0:"

// FunctionType discriminates the two FunctionConfig variants.
type FunctionType string

const (
	FunctionChat FunctionType = "chat"
	FunctionJSON FunctionType = "json"
)

// FunctionConfig is the sum type Chat|Json of spec §3. Variants map variant
// name to VariantConfig; Schemas maps a message role ("system", "user",
// "assistant") to the JSON Schema its structured content must validate
// against. OutputSchema is mandatory for FunctionJSON and unused otherwise.
type FunctionConfig struct {
	Name         string
	Type         FunctionType
	Description  string
	Variants     map[string]*VariantConfig
	Schemas      map[string]json.RawMessage
	OutputSchema json.RawMessage
	Experiment   ExperimentPolicy
	Tools        ToolConfig
}

// ExperimentPolicy names the weighted-sampling policy a function uses for
// variant selection. Currently only one policy exists (normalized-weight
// sampling, see internal/selection); the field exists so a function config
// can be extended with alternate policies without changing its shape.
type ExperimentPolicy struct {
	Name string
}

// VariantType discriminates the sum type ChatCompletion|BestOfN|MixtureOfN|
// ChainOfThought|DICL.
type VariantType string

const (
	VariantChatCompletion VariantType = "chat_completion"
	VariantBestOfN        VariantType = "best_of_n_sampling"
	VariantMixtureOfN     VariantType = "mixture_of_n"
	VariantChainOfThought VariantType = "chain_of_thought"
	VariantDICL           VariantType = "dicl"
)

// VariantConfig is a tagged union over the five variant kinds. Only the
// fields relevant to Type are populated; the weight and timeout are common
// to every kind.
type VariantConfig struct {
	Name    string
	Type    VariantType
	Weight  float64 // absent (nil-equivalent: <0) = never draw-eligible, pin-only
	Timeout time.Duration

	// ChatCompletion / shared by composed variants' leaf calls.
	Model          string
	SystemTemplate string
	UserTemplate   string
	AssistantTemplate string
	JSONMode       JSONMode
	Params         InferenceParams

	// BestOfN / MixtureOfN
	Candidates     []string
	EvaluatorOrFuser *VariantConfig

	// DICL
	EmbeddingModel string
	K              int
	NeighborScope  string
}

// Pinnable reports whether this variant may be selected via variant_pin
// even though it has zero weight.
func (v *VariantConfig) Pinnable() bool { return true }

// DrawEligible reports whether the weighted sampler may select this
// variant spontaneously (weight 0 variants are pin-only).
func (v *VariantConfig) DrawEligible() bool { return v.Weight > 0 }

// JSONMode controls whether/how a provider is constrained to emit valid
// JSON.
type JSONMode string

const (
	JSONModeOff    JSONMode = "off"
	JSONModeOn     JSONMode = "on"
	JSONModeStrict JSONMode = "strict"
	JSONModeTool   JSONMode = "tool"
)

// InferenceParams are the inference-param sliders of spec §4.3, all
// optional; nil means "let the provider default apply".
type InferenceParams struct {
	Temperature         *float64
	TopP                *float64
	MaxTokens           *int
	Seed                *int
	PresencePenalty     *float64
	FrequencyPenalty    *float64
	StopSequences       []string
	ReasoningEffort     *string
	ServiceTier         *string
	Verbosity           *string
	ThinkingBudgetTokens *int
}

// ProviderType discriminates which adapter handles a ProviderConfig.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderAzure      ProviderType = "azure"
	ProviderGemini     ProviderType = "gemini"
	ProviderBedrock    ProviderType = "bedrock"
	ProviderOllama     ProviderType = "ollama"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderDummy      ProviderType = "dummy"
)

// CredentialLocation names where to find a provider's API key: an
// environment variable, a dynamic (per-request) credential name, or none.
type CredentialLocation struct {
	Env     string
	Dynamic string
	None    bool
}

// ProviderConfig is one entry in a ModelConfig's provider chain.
type ProviderConfig struct {
	Type                ProviderType
	ModelName            string
	Endpoint             string
	Credential           CredentialLocation
	Timeout              time.Duration
	DiscardUnknownChunks bool
	ExtraBody            map[string]any
	ExtraHeaders         map[string]string
}

// ModelConfig maps a logical model name to an ordered provider chain that
// the model table fails over across.
type ModelConfig struct {
	Name      string
	Providers []ProviderConfig
}

// ToolChoiceMode is the sum type None|Auto|Required|Specific(name).
type ToolChoiceMode string

const (
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceSpecific ToolChoiceMode = "specific"
)

// Tool is (name, description, JSON-schema parameters, strict-flag).
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Strict      bool
}

// ToolChoice bundles the choice mode with the specific tool name when
// Mode == ToolChoiceSpecific.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// ToolConfig is the per-invocation bundle of available tools, the caller's
// choice policy, and whether parallel tool calls are allowed.
type ToolConfig struct {
	Tools         []Tool
	Choice        ToolChoice
	ParallelCalls bool
}

// RespondToolName is the synthetic tool JSON-mode=Tool coercion
// synthesizes when a provider lacks native structured output (spec §9).
const RespondToolName = "respond"

// WithSyntheticRespondTool returns a ToolConfig containing only the
// synthetic "respond" tool, forced via ToolChoiceSpecific, whose parameter
// schema is the function's (or forced) output schema.
func WithSyntheticRespondTool(outputSchema json.RawMessage) ToolConfig {
	return ToolConfig{
		Tools: []Tool{{
			Name:        RespondToolName,
			Description: "Respond with a JSON object matching the required schema.",
			Parameters:  outputSchema,
			Strict:      true,
		}},
		Choice: ToolChoice{Mode: ToolChoiceSpecific, Name: RespondToolName},
	}
}
