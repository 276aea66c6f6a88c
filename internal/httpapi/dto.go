package httpapi

import (
	"encoding/json"
	"strings"

	"github.com/haasonsaas/gateway/internal/cache"
	"github.com/haasonsaas/gateway/internal/orchestrator"
	"github.com/haasonsaas/gateway/internal/toolcfg"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// inferenceRequest is the wire shape of spec.md §6.1's POST /inference body.
type inferenceRequest struct {
	FunctionName string          `json:"function_name"`
	Input        inputDTO        `json:"input"`
	EpisodeID    string          `json:"episode_id,omitempty"`
	VariantName  string          `json:"variant_name,omitempty"`
	Stream       bool            `json:"stream,omitempty"`
	Dryrun       bool            `json:"dryrun,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Params       *paramsDTO      `json:"params,omitempty"`
	ExtraBody    map[string]any  `json:"extra_body,omitempty"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
	CacheOptions *cacheOptionsDTO `json:"cache_options,omitempty"`

	// Credentials maps a provider name (as configured in the model table)
	// to a caller-supplied API key, per spec.md §4.1's credentials
	// parameter. The dispatch engine itself never resolves or stores
	// these; a caller-supplied credential is an HTTP-layer concern that
	// sits above the provider adapters, so it is accepted here and left
	// for the adapter-construction wiring (not yet built) to consume.
	Credentials map[string]string `json:"credentials,omitempty"`
}

type inputDTO struct {
	System   json.RawMessage `json:"system,omitempty"`
	Messages []messageDTO    `json:"messages"`
}

type messageDTO struct {
	Role    inference.Role     `json:"role"`
	Content []contentBlockDTO `json:"content"`
}

// UnmarshalJSON accepts content as either a bare string (shorthand for a
// single text part, per spec.md §6.1) or the ordered list of tagged parts.
func (m *messageDTO) UnmarshalJSON(data []byte) error {
	var shape struct {
		Role    inference.Role  `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	m.Role = shape.Role

	var asString string
	if err := json.Unmarshal(shape.Content, &asString); err == nil {
		m.Content = []contentBlockDTO{{Type: inference.ContentText, Text: asString}}
		return nil
	}
	var parts []contentBlockDTO
	if err := json.Unmarshal(shape.Content, &parts); err != nil {
		return err
	}
	m.Content = parts
	return nil
}

// contentBlockDTO mirrors pkg/inference.ContentBlock's tagged-sum shape for
// the wire: a caller posts a plain JSON object with a "type" discriminator,
// matching the exact shape the non-streaming response serializes back.
type contentBlockDTO struct {
	Type inference.ContentBlockType `json:"type"`

	Text string `json:"text,omitempty"`

	Value json.RawMessage `json:"value,omitempty"`

	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	RawName      string          `json:"raw_name,omitempty"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	RawArguments string          `json:"raw_arguments,omitempty"`

	ToolCallID string          `json:"tool_call_id,omitempty"`
	ResultName string          `json:"result_name,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

func (b contentBlockDTO) toBlock() inference.ContentBlock {
	return inference.ContentBlock{
		Type:         b.Type,
		Text:         b.Text,
		Value:        b.Value,
		ID:           b.ID,
		Name:         b.Name,
		RawName:      b.RawName,
		Arguments:    b.Arguments,
		RawArguments: b.RawArguments,
		ToolCallID:   b.ToolCallID,
		ResultName:   b.ResultName,
		Result:       b.Result,
		MimeType:     b.MimeType,
		Data:         b.Data,
		URL:          b.URL,
	}
}

func (in inputDTO) toInput() inference.Input {
	messages := make([]inference.Message, len(in.Messages))
	for i, m := range in.Messages {
		content := make([]inference.ContentBlock, len(m.Content))
		for j, b := range m.Content {
			content[j] = b.toBlock()
		}
		messages[i] = inference.Message{Role: m.Role, Content: content}
	}
	return inference.Input{System: in.System, Messages: messages}
}

// toolDTO mirrors pkg/inference.Tool for the wire.
type toolDTO struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict,omitempty"`
}

type toolChoiceDTO struct {
	Mode inference.ToolChoiceMode `json:"mode"`
	Name string                   `json:"name,omitempty"`
}

// paramsDTO is spec.md §4.1's params: additional tools and tool-choice
// overrides layered onto the selected variant's configured tools.
type paramsDTO struct {
	AdditionalTools []toolDTO      `json:"additional_tools,omitempty"`
	ToolChoice      *toolChoiceDTO `json:"tool_choice,omitempty"`
	ParallelCalls   *bool          `json:"parallel_tool_calls,omitempty"`
}

func (p *paramsDTO) toParams() toolcfg.Params {
	if p == nil {
		return toolcfg.Params{}
	}
	tools := make([]inference.Tool, len(p.AdditionalTools))
	for i, t := range p.AdditionalTools {
		tools[i] = inference.Tool{Name: t.Name, Description: t.Description, Parameters: t.Parameters, Strict: t.Strict}
	}
	var choice *inference.ToolChoice
	if p.ToolChoice != nil {
		choice = &inference.ToolChoice{Mode: p.ToolChoice.Mode, Name: p.ToolChoice.Name}
	}
	return toolcfg.Params{AdditionalTools: tools, ToolChoice: choice, ParallelCalls: p.ParallelCalls}
}

// cacheOptionsDTO is spec.md §6.1's per-call cache_options: enabled is one
// of On|WriteOnly|ReadOnly|Off (case-insensitive), mapped onto cache.Mode.
type cacheOptionsDTO struct {
	Enabled       string `json:"enabled,omitempty"`
	MaxAgeS       *int   `json:"max_age_s,omitempty"`
	ExtraCacheKey string `json:"extra_cache_key,omitempty"`
}

func (c *cacheOptionsDTO) toMode() cache.Mode {
	if c == nil {
		return cache.ModeOff
	}
	switch strings.ToLower(c.Enabled) {
	case "on":
		return cache.ModeOn
	case "writeonly", "write_only":
		return cache.ModeWriteOnly
	case "readonly", "read_only":
		return cache.ModeReadOnly
	default:
		return cache.ModeOff
	}
}

func (r *inferenceRequest) toOrchestratorRequest() orchestrator.Request {
	req := orchestrator.Request{
		FunctionName: r.FunctionName,
		EpisodeID:    r.EpisodeID,
		Input:        r.Input.toInput(),
		Stream:       r.Stream,
		Dryrun:       r.Dryrun,
		Tags:         r.Tags,
		VariantPin:   r.VariantName,
		ToolParams:   r.Params.toParams(),
		ExtraBody:    r.ExtraBody,
		ExtraHeaders: r.ExtraHeaders,
	}
	req.CacheMode = r.CacheOptions.toMode()
	if r.CacheOptions != nil {
		req.ExtraCacheKey = r.CacheOptions.ExtraCacheKey
	}
	return req
}

// errorResponse is the uniform error body for every non-2xx response, per
// spec.md §6.4.
type errorResponse struct {
	Error string `json:"error"`
}
