package inference

import "encoding/json"

// ChatResponse is the uniform response for a Chat-typed function.
type ChatResponse struct {
	InferenceID string `json:"inference_id"`
	EpisodeID   string `json:"episode_id"`
	VariantName string `json:"variant_name"`

	Content      []ContentBlock `json:"content"`
	Usage        Usage          `json:"usage"`
	FinishReason FinishReason   `json:"finish_reason"`

	OriginalResponse *string `json:"original_response,omitempty"`

	ModelInferenceResults []ModelInferenceResult `json:"-"`
}

// JSONOutput is a JsonResponse's payload: the raw provider text and, iff it
// validated against the function's output schema, the parsed projection.
type JSONOutput struct {
	Raw    string          `json:"raw"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
}

// JsonResponse is the uniform response for a Json-typed function.
type JsonResponse struct {
	InferenceID string `json:"inference_id"`
	EpisodeID   string `json:"episode_id"`
	VariantName string `json:"variant_name"`

	Output       JSONOutput   `json:"output"`
	Usage        Usage        `json:"usage"`
	FinishReason FinishReason `json:"finish_reason"`

	OriginalResponse *string `json:"original_response,omitempty"`

	ModelInferenceResults []ModelInferenceResult `json:"-"`
}

// ContentChunkType discriminates a streamed content delta.
type ContentChunkType string

const (
	ChunkText     ContentChunkType = "text"
	ChunkToolCall ContentChunkType = "tool_call"
	ChunkThought  ContentChunkType = "thought"
)

// ContentBlockChunk is one streamed delta item within a Chunk.
type ContentBlockChunk struct {
	Type ContentChunkType `json:"type"`
	ID   string           `json:"id,omitempty"`

	Text string `json:"text,omitempty"`

	RawNameDelta      string `json:"raw_name,omitempty"`
	RawArgumentsDelta string `json:"raw_arguments,omitempty"`

	ThoughtDelta string `json:"thought,omitempty"`
}

// Chunk is one event of a streaming inference. Usage and FinishReason are
// only populated on the terminal chunk. RawResponse accumulates
// monotonically (each chunk's raw wire payload is appended, not replaced).
type Chunk struct {
	InferenceID string              `json:"inference_id"`
	EpisodeID   string              `json:"episode_id"`
	VariantName string              `json:"variant_name"`
	Content     []ContentBlockChunk `json:"content"`

	Usage        *Usage        `json:"usage,omitempty"`
	FinishReason *FinishReason `json:"finish_reason,omitempty"`

	RawResponse string `json:"-"`

	// Err, when non-nil, is a recoverable per-chunk delivery failure
	// (ErrInStream): the stream continues with the next chunk. Fatal is
	// set instead when the stream must terminate without a usage chunk
	// (FatalStreamError), per the open question in spec §9.
	Err   error `json:"-"`
	Fatal error `json:"-"`
}
