package variant

import (
	"testing"

	"github.com/haasonsaas/gateway/internal/dicl"
	"github.com/haasonsaas/gateway/internal/modeltable"
	"github.com/haasonsaas/gateway/internal/providers"
	"github.com/haasonsaas/gateway/internal/schema"
	"github.com/haasonsaas/gateway/internal/templating"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// testDeps builds a Deps wired against the hermetic dummy provider, with
// one model per dummy scenario this package's tests exercise: a good model,
// an always-failing model, a json-success model, and an embedding model for
// DICL. Grounded on orchestrator_test.go's newTestOrchestrator helper.
func testDeps(t *testing.T) Deps {
	t.Helper()

	adapters := providers.NewRegistry()
	adapters.Register(inference.ProviderDummy, providers.NewDummyProvider())

	models := modeltable.NewRegistry()
	add := func(name, dummyModel string) {
		models.Add(inference.ModelConfig{
			Name:      name,
			Providers: []inference.ProviderConfig{{Type: inference.ProviderDummy, ModelName: dummyModel}},
		}, adapters, modeltable.DefaultBreakerConfig())
	}
	add("dummy-model", inference.DummyModelGood)
	add("error-model", inference.DummyModelError)
	add("json-model", inference.DummyModelJSONSuccess)
	add("json-fail-model", inference.DummyModelJSONFail)
	add("embed-model", inference.DummyModelGood)

	return Deps{
		Models:    models,
		Templates: templating.New(),
		Validator: schema.New(),
		Exemplars: dicl.NewMemoryStore(),
	}
}

func userInput(text string) inference.Input {
	return inference.Input{
		Messages: []inference.Message{
			{Role: inference.RoleUser, Content: []inference.ContentBlock{inference.TextBlock(text)}},
		},
	}
}

func chatFunctionConfig(variants map[string]*inference.VariantConfig) *inference.FunctionConfig {
	return &inference.FunctionConfig{
		Name:     "greet",
		Type:     inference.FunctionChat,
		Variants: variants,
	}
}

const simpleOutputSchema = `{"type":"object","properties":{"answer":{"type":"string"}},"required":["answer"]}`

func jsonFunctionConfig(variants map[string]*inference.VariantConfig) *inference.FunctionConfig {
	return &inference.FunctionConfig{
		Name:         "answer",
		Type:         inference.FunctionJSON,
		OutputSchema: []byte(simpleOutputSchema),
		Variants:     variants,
	}
}
