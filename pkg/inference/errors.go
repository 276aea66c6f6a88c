package inference

import "fmt"

// ErrorKind is the tagged sum of error kinds the gateway surfaces, per the
// error handling design: validation/config errors are fatal BadRequest-style,
// provider errors carry enough context to log and to map to an HTTP status.
type ErrorKind string

const (
	ErrBadRequest       ErrorKind = "bad_request"
	ErrUnknownFunction   ErrorKind = "unknown_function"
	ErrUnknownVariant    ErrorKind = "unknown_variant"
	ErrUnknownModel      ErrorKind = "unknown_model"
	ErrUnknownTool       ErrorKind = "unknown_tool"
	ErrSchemaValidation  ErrorKind = "schema_validation"
	ErrTemplateRender    ErrorKind = "template_render"
	ErrInferenceClient   ErrorKind = "inference_client"
	ErrInferenceServer   ErrorKind = "inference_server"
	ErrInferenceTimeout  ErrorKind = "inference_timeout"
	ErrRateLimit         ErrorKind = "rate_limit"
	ErrAPIKeyMissing     ErrorKind = "api_key_missing"
	ErrCache             ErrorKind = "cache"
	ErrSerialization     ErrorKind = "serialization"
	ErrObjectStore       ErrorKind = "object_store"
	ErrFatalStream       ErrorKind = "fatal_stream_error"
	ErrInternal          ErrorKind = "internal_error"
)

// Error is the single error type every gateway package returns. Providers,
// the model table, variants, and the orchestrator all wrap failures in this
// type so that HTTP status mapping and retry classification stay in one
// place instead of being re-derived from ad hoc string matching at each
// layer.
type Error struct {
	Kind ErrorKind

	Message string

	// Provider-call context, populated for ErrInferenceClient/Server.
	ProviderType string
	Status       *int
	RawRequest   string
	RawResponse  string

	// ErrInferenceTimeout
	Variant string

	// ErrRateLimit
	Resource string

	// ErrAPIKeyMissing
	Provider string

	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a basic Error of the given kind.
func New(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AsError unwraps err into a *Error if possible.
func AsError(err error) (*Error, bool) {
	var e *Error
	if err == nil {
		return nil, false
	}
	if ie, ok := err.(*Error); ok {
		return ie, true
	}
	if u, ok := err.(interface{ Unwrap() error }); ok {
		return AsError(u.Unwrap())
	}
	_ = e
	return nil, false
}

// HTTPStatus maps an ErrorKind onto the exit codes of the external
// interface: 400 for request/validation errors, 401 for missing
// credentials, 429 for rate limiting, 5xx for provider failures after
// fallback is exhausted.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case ErrBadRequest, ErrUnknownFunction, ErrUnknownVariant, ErrUnknownModel, ErrUnknownTool, ErrSchemaValidation, ErrTemplateRender, ErrSerialization:
		return 400
	case ErrAPIKeyMissing:
		return 401
	case ErrRateLimit:
		return 429
	case ErrInferenceClient:
		if e.Status != nil && *e.Status >= 400 && *e.Status < 500 {
			return *e.Status
		}
		return 502
	case ErrInferenceServer, ErrInferenceTimeout, ErrFatalStream, ErrCache, ErrObjectStore, ErrInternal:
		return 502
	default:
		return 500
	}
}

// Retryable reports whether the model table should retry the same provider
// before advancing the provider chain. Grounded on the teacher's
// FailoverReason.IsRetryable classification, generalized from bot-failover
// reasons to the gateway's ErrorKind taxonomy.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrInferenceServer, ErrRateLimit, ErrInferenceTimeout:
		return true
	case ErrInferenceClient:
		// 429 arrives classified as ErrRateLimit already; a 4xx client
		// error here is a genuine request problem and won't succeed on
		// retry.
		return false
	default:
		return false
	}
}

// ShouldFailover reports whether the model table should advance to the next
// provider in the chain after retries on the current provider are
// exhausted.
func (e *Error) ShouldFailover() bool {
	switch e.Kind {
	case ErrInferenceServer, ErrInferenceClient, ErrInferenceTimeout, ErrRateLimit, ErrAPIKeyMissing:
		return true
	default:
		return false
	}
}

// ClassifyStatusCode maps an HTTP status code from a provider response to
// an ErrorKind, per the provider adapter contract (4xx client, 5xx server,
// 429 rate-limit, 401 auth).
func ClassifyStatusCode(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return ErrAPIKeyMissing
	case status == 429:
		return ErrRateLimit
	case status >= 500:
		return ErrInferenceServer
	case status >= 400:
		return ErrInferenceClient
	default:
		return ErrInternal
	}
}
