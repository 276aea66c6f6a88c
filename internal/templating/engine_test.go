package templating

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRenderWithEmptyTemplateIsNoop(t *testing.T) {
	e := New()
	out, err := e.Render("", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "" {
		t.Fatalf("out = %q, want empty", out)
	}
}

func TestRenderSubstitutesVars(t *testing.T) {
	e := New()
	out, err := e.Render("Hello, {{.name}}!", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Hello, Ada!" {
		t.Fatalf("out = %q, want %q", out, "Hello, Ada!")
	}
}

func TestRenderParseErrorOnMalformedTemplate(t *testing.T) {
	e := New()
	if _, err := e.Render("{{.name", map[string]any{}); err == nil {
		t.Fatal("expected a parse error for an unterminated action")
	}
}

func TestRenderExecuteErrorOnMissingFunction(t *testing.T) {
	e := New()
	if _, err := e.Render("{{notAFunc .name}}", map[string]any{"name": "Ada"}); err == nil {
		t.Fatal("expected an execute error for an undefined function")
	}
}

func TestRenderFuncMapHelpers(t *testing.T) {
	e := New()
	cases := map[string]string{
		`{{upper .s}}`:              "HELLO",
		`{{lower .s}}`:              "hello",
		`{{trim .s}}`:               "hello",
		`{{default "fallback" .s}}`: "hello",
	}
	for tmpl, want := range cases {
		out, err := e.Render(tmpl, map[string]any{"s": "hello"})
		if err != nil {
			t.Fatalf("Render(%q): %v", tmpl, err)
		}
		if !strings.Contains(out, want) {
			t.Fatalf("Render(%q) = %q, want to contain %q", tmpl, out, want)
		}
	}
}

func TestRenderDefaultFuncUsesFallbackOnEmptyString(t *testing.T) {
	e := New()
	out, err := e.Render(`{{default "fallback" .s}}`, map[string]any{"s": ""})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "fallback" {
		t.Fatalf("out = %q, want fallback", out)
	}
}

func TestRenderJSONWithObjectPayload(t *testing.T) {
	e := New()
	out, err := e.RenderJSON("Hello, {{.name}}!", json.RawMessage(`{"name":"Ada"}`))
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	if out != "Hello, Ada!" {
		t.Fatalf("out = %q, want %q", out, "Hello, Ada!")
	}
}

func TestRenderJSONWithEmptyPayload(t *testing.T) {
	e := New()
	out, err := e.RenderJSON("static text", nil)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	if out != "static text" {
		t.Fatalf("out = %q, want %q", out, "static text")
	}
}

func TestRenderJSONWithNonObjectPayloadExposedAsValue(t *testing.T) {
	e := New()
	out, err := e.RenderJSON("{{.value}}", json.RawMessage(`"a raw string"`))
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	if out != "a raw string" {
		t.Fatalf("out = %q, want %q", out, "a raw string")
	}
}

func TestRenderJSONWithMalformedPayloadErrors(t *testing.T) {
	e := New()
	if _, err := e.RenderJSON("{{.value}}", json.RawMessage(`{not json`)); err == nil {
		t.Fatal("expected an error decoding malformed JSON input")
	}
}

func TestChainOfThoughtSchemaEmbedsOutputSchema(t *testing.T) {
	wrapped := ChainOfThoughtSchema(`{"type":"string"}`)
	var decoded map[string]any
	if err := json.Unmarshal([]byte(wrapped), &decoded); err != nil {
		t.Fatalf("ChainOfThoughtSchema did not produce valid JSON: %v", err)
	}
	props, _ := decoded["properties"].(map[string]any)
	if props == nil || props["response"] == nil {
		t.Fatalf("expected a 'response' property wrapping the output schema, got %+v", decoded)
	}
	if props["thinking"] == nil {
		t.Fatal("expected a 'thinking' property in the envelope")
	}
}

func TestBestOfNJudgeSchemaIsValidJSON(t *testing.T) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(BestOfNJudgeSchema), &decoded); err != nil {
		t.Fatalf("BestOfNJudgeSchema is not valid JSON: %v", err)
	}
}
