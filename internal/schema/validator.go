// Package schema compiles and validates JSON Schemas for function inputs
// and outputs, caching compiled schemas so that repeated inferences
// against the same function don't recompile on every request.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// Validator compiles and caches JSON Schemas keyed by their literal text.
type Validator struct {
	cache sync.Map
}

// New returns a ready-to-use Validator.
func New() *Validator {
	return &Validator{}
}

// Compile compiles rawSchema, returning the cached compilation if this
// exact schema text has been seen before.
func (v *Validator) Compile(name string, rawSchema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(rawSchema)
	if cached, ok := v.cache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	v.cache.Store(key, compiled)
	return compiled, nil
}

// Validate compiles rawSchema (if not already cached) and validates payload
// against it, returning an *inference.Error of kind ErrSchemaValidation on
// violation.
func (v *Validator) Validate(name string, rawSchema json.RawMessage, payload json.RawMessage) *inference.Error {
	if len(rawSchema) == 0 {
		return nil
	}
	compiled, err := v.Compile(name, rawSchema)
	if err != nil {
		return inference.Wrap(inference.ErrSchemaValidation, err, "compile schema %q", name)
	}
	var decoded any
	if len(payload) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(payload, &decoded); err != nil {
		return inference.Wrap(inference.ErrSchemaValidation, err, "decode payload for schema %q", name)
	}
	if err := compiled.Validate(decoded); err != nil {
		return inference.Wrap(inference.ErrSchemaValidation, err, "payload does not match schema %q", name)
	}
	return nil
}

// ValidJSON reports whether payload both parses as JSON and validates
// against rawSchema, without returning an error — used by JSON-mode
// coercion, which must downgrade to parsed=null rather than fail the
// request on validation failure.
func (v *Validator) ValidJSON(name string, rawSchema json.RawMessage, payload string) bool {
	if len(rawSchema) == 0 {
		return json.Valid([]byte(payload))
	}
	compiled, err := v.Compile(name, rawSchema)
	if err != nil {
		return false
	}
	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return false
	}
	return compiled.Validate(decoded) == nil
}
