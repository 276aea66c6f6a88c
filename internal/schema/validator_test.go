package schema

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/gateway/pkg/inference"
)

const personSchema = `{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`

func TestValidateAcceptsMatchingPayload(t *testing.T) {
	v := New()
	if err := v.Validate("person", json.RawMessage(personSchema), json.RawMessage(`{"name":"Ada"}`)); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingRequiredField(t *testing.T) {
	v := New()
	err := v.Validate("person", json.RawMessage(personSchema), json.RawMessage(`{}`))
	if err == nil || err.Kind != inference.ErrSchemaValidation {
		t.Fatalf("err = %v, want ErrSchemaValidation", err)
	}
}

func TestValidateRejectsMalformedJSON(t *testing.T) {
	v := New()
	err := v.Validate("person", json.RawMessage(personSchema), json.RawMessage(`{not json`))
	if err == nil || err.Kind != inference.ErrSchemaValidation {
		t.Fatalf("err = %v, want ErrSchemaValidation", err)
	}
}

func TestValidateWithEmptySchemaIsNoop(t *testing.T) {
	v := New()
	if err := v.Validate("person", nil, json.RawMessage(`{"anything":true}`)); err != nil {
		t.Fatalf("expected no validation when the schema is empty, got %v", err)
	}
}

func TestValidateTreatsEmptyPayloadAsEmptyObject(t *testing.T) {
	v := New()
	err := v.Validate("empty-ok", json.RawMessage(`{"type":"object"}`), nil)
	if err != nil {
		t.Fatalf("expected an empty payload to validate against a bare object schema, got %v", err)
	}
}

func TestCompileCachesBySchemaText(t *testing.T) {
	v := New()
	first, err := v.Compile("person", json.RawMessage(personSchema))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	second, err := v.Compile("person-again", json.RawMessage(personSchema))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if first != second {
		t.Fatal("expected identical schema text to return the cached compilation regardless of name")
	}
}

func TestCompileInvalidSchemaErrors(t *testing.T) {
	v := New()
	if _, err := v.Compile("bad", json.RawMessage(`{"type": "not-a-real-type"`)); err == nil {
		t.Fatal("expected an error compiling malformed schema JSON")
	}
}

func TestValidJSONTrueForValidPayload(t *testing.T) {
	v := New()
	if !v.ValidJSON("person", json.RawMessage(personSchema), `{"name":"Ada"}`) {
		t.Fatal("expected ValidJSON to accept a matching payload")
	}
}

func TestValidJSONFalseForNonJSON(t *testing.T) {
	v := New()
	if v.ValidJSON("person", json.RawMessage(personSchema), "not json at all") {
		t.Fatal("expected ValidJSON to reject non-JSON text")
	}
}

func TestValidJSONFalseForSchemaViolation(t *testing.T) {
	v := New()
	if v.ValidJSON("person", json.RawMessage(personSchema), `{}`) {
		t.Fatal("expected ValidJSON to reject a payload missing the required field")
	}
}

func TestValidJSONWithEmptySchemaChecksJSONValidityOnly(t *testing.T) {
	v := New()
	if !v.ValidJSON("anything", nil, `{"x":1}`) {
		t.Fatal("expected a bare JSON check to pass when no schema is configured")
	}
	if v.ValidJSON("anything", nil, "not json") {
		t.Fatal("expected a bare JSON check to fail on non-JSON text")
	}
}
