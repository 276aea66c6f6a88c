// Package templating renders per-variant message/system templates against
// JSON-schema-validated input, using a text/template engine in the style of
// the rest of this codebase's template tooling.
package templating

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Engine renders named templates against a variable map.
type Engine struct {
	FuncMap template.FuncMap

	LeftDelim  string
	RightDelim string
}

// New returns an Engine with the gateway's default FuncMap.
func New() *Engine {
	return &Engine{
		FuncMap:    defaultFuncMap(),
		LeftDelim:  "{{",
		RightDelim: "}}",
	}
}

// Render applies the template string tmplStr to vars. An empty tmplStr
// renders to "" with no error — callers treat this as "no template
// configured" and fall back to rendering the input verbatim.
func (e *Engine) Render(tmplStr string, vars map[string]any) (string, error) {
	if tmplStr == "" {
		return "", nil
	}
	t := template.New("variant-template").Funcs(e.FuncMap)
	if e.LeftDelim != "" && e.RightDelim != "" {
		t = t.Delims(e.LeftDelim, e.RightDelim)
	}
	parsed, err := t.Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// RenderJSON unmarshals raw into a generic map/value and renders tmplStr
// against it. If raw does not decode to an object, it is exposed to the
// template under the key "value".
func (e *Engine) RenderJSON(tmplStr string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return e.Render(tmplStr, map[string]any{})
	}
	var asMap map[string]any
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return e.Render(tmplStr, asMap)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("decode template input: %w", err)
	}
	return e.Render(tmplStr, map[string]any{"value": generic})
}

func defaultFuncMap() template.FuncMap {
	titleCase := cases.Title(language.Und)
	return template.FuncMap{
		"upper":      strings.ToUpper,
		"lower":      strings.ToLower,
		"title":      titleCase.String,
		"trim":       strings.TrimSpace,
		"trimPrefix": strings.TrimPrefix,
		"trimSuffix": strings.TrimSuffix,
		"replace":    strings.ReplaceAll,
		"contains":   strings.Contains,
		"hasPrefix":  strings.HasPrefix,
		"hasSuffix":  strings.HasSuffix,
		"split":      strings.Split,
		"join":       strings.Join,
		"default": func(def, value any) any {
			if value == nil {
				return def
			}
			if str, ok := value.(string); ok && str == "" {
				return def
			}
			return value
		},
		"toString": func(v any) string {
			if v == nil {
				return ""
			}
			return fmt.Sprintf("%v", v)
		},
		"indent": func(spaces int, s string) string {
			pad := strings.Repeat(" ", spaces)
			lines := strings.Split(s, "\n")
			for i, l := range lines {
				lines[i] = pad + l
			}
			return strings.Join(lines, "\n")
		},
	}
}
