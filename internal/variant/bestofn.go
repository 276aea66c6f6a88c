package variant

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/haasonsaas/gateway/internal/templating"
	"github.com/haasonsaas/gateway/pkg/inference"
)

// BestOfN implements spec.md §4.4: fan out every candidate variant in
// parallel, then have an evaluator variant judge the survivors and pick a
// winner.
type BestOfN struct{}

func NewBestOfN() *BestOfN { return &BestOfN{} }

type candidateOutcome struct {
	index  int
	result *Result
	err    error
}

func (b *BestOfN) Execute(ctx context.Context, cfg InferenceConfig, deps Deps) (*Result, error) {
	v, ok := cfg.Function.Variants[cfg.VariantName]
	if !ok {
		return nil, inference.New(inference.ErrUnknownVariant, "variant %q not found", cfg.VariantName)
	}
	timeout := v.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	outcomes := runCandidates(ctx, cfg, deps, v.Candidates, timeout)

	var survivors []candidateOutcome
	for _, o := range outcomes {
		if o.err == nil {
			survivors = append(survivors, o)
		}
	}
	if len(survivors) == 0 {
		return nil, inference.New(inference.ErrInferenceServer, "best-of-n variant %q: all candidates failed", cfg.VariantName)
	}
	if len(survivors) == 1 {
		return survivors[0].result, nil
	}

	evaluator := v.EvaluatorOrFuser
	if evaluator == nil {
		return survivors[0].result, nil
	}

	chosen, judgeCall, err := judgeSurvivors(ctx, cfg, deps, evaluator, survivors)
	if err != nil {
		// Fall back to uniform-random selection, still surfacing the
		// failed judge attempt via the episode-seeded hash so the choice
		// stays deterministic under retry.
		chosen = survivors[hashUint32(cfg.EpisodeID+":judge-fallback")%uint32(len(survivors))]
	}

	final := *chosen.result
	allUsage := []inference.Usage{chosen.result.Usage}
	for _, o := range survivors {
		if o.index == chosen.index {
			continue
		}
		final.ModelCalls = append(final.ModelCalls, o.result.ModelCalls...)
		allUsage = append(allUsage, o.result.Usage)
	}
	if judgeCall != nil {
		final.ModelCalls = append(final.ModelCalls, *judgeCall)
		allUsage = append(allUsage, judgeCall.Usage)
	}
	final.Usage = inference.SumUsage(allUsage...)
	return &final, nil
}

// runCandidates fans out each candidate variant name in parallel, each
// wrapped in its own timeout and carrying a distinct extra_cache_key so
// duplicate candidate names still produce independent realizations.
func runCandidates(ctx context.Context, cfg InferenceConfig, deps Deps, candidates []string, timeout time.Duration) []candidateOutcome {
	outcomes := make([]candidateOutcome, len(candidates))
	var wg sync.WaitGroup
	for i, name := range candidates {
		wg.Add(1)
		go func(idx int, variantName string) {
			defer wg.Done()
			childCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			childCfg := cfg
			childCfg.VariantName = variantName
			childCfg.ExtraCacheKey = fmt.Sprintf("candidate_%d", idx)
			childCfg.Stream = false

			executor, ok := resolveLeafExecutor(cfg.Function, variantName)
			if !ok {
				outcomes[idx] = candidateOutcome{index: idx, err: inference.New(inference.ErrUnknownVariant, "candidate variant %q not found", variantName)}
				return
			}
			result, err := executor.Execute(childCtx, childCfg, deps)
			outcomes[idx] = candidateOutcome{index: idx, result: result, err: err}
		}(i, name)
	}
	wg.Wait()
	return outcomes
}

// resolveLeafExecutor looks up the named variant and returns the executor
// appropriate to its kind; best-of-N/mixture-of-N candidates are always
// ChatCompletion-shaped per spec.md §4.4, but this also allows a candidate
// to itself be a chain-of-thought variant.
func resolveLeafExecutor(fn *inference.FunctionConfig, variantName string) (Executor, bool) {
	v, ok := fn.Variants[variantName]
	if !ok {
		return nil, false
	}
	switch v.Type {
	case inference.VariantChainOfThought:
		return NewChainOfThought(), true
	case inference.VariantDICL:
		return NewDICL(), true
	default:
		return NewChatCompletion(), true
	}
}

// judgeSurvivors builds and runs the best-of-n evaluator judge call,
// returning the chosen candidate and the judge's own model-call record.
func judgeSurvivors(ctx context.Context, cfg InferenceConfig, deps Deps, evaluator *inference.VariantConfig, survivors []candidateOutcome) (candidateOutcome, *inference.ModelInferenceResult, error) {
	innerSystem, err := renderSystem(evaluator.SystemTemplate, cfg.Input.System, deps.Templates)
	if err != nil {
		return candidateOutcome{}, nil, err
	}

	system, err := deps.Templates.Render(templating.BestOfNEvaluatorSystemTemplate, map[string]any{
		"inner_system": innerSystem,
		"max_index":    len(survivors) - 1,
	})
	if err != nil {
		return candidateOutcome{}, nil, inference.Wrap(inference.ErrTemplateRender, err, "render best-of-n evaluator system")
	}

	candidateTexts := make([]map[string]any, 0, len(survivors))
	for _, s := range survivors {
		text := candidateOutputText(s.result)
		if text == "" {
			continue
		}
		candidateTexts = append(candidateTexts, map[string]any{"index": s.index, "text": text})
	}
	candidatesMsg, err := deps.Templates.Render(templating.BestOfNEvaluatorCandidatesTemplate, map[string]any{"candidates": candidateTexts})
	if err != nil {
		return candidateOutcome{}, nil, inference.Wrap(inference.ErrTemplateRender, err, "render best-of-n evaluator candidates")
	}

	messages := []inference.Message{{Role: inference.RoleUser, Content: []inference.ContentBlock{inference.TextBlock(candidatesMsg)}}}

	judgeSchema := json.RawMessage(templating.BestOfNJudgeSchema)
	jsonMode := evaluator.JSONMode
	if jsonMode == "" {
		jsonMode = inference.JSONModeOn
	}
	tools := inference.ToolConfig{Choice: inference.ToolChoice{Mode: inference.ToolChoiceNone}}
	if jsonMode == inference.JSONModeTool {
		tools = inference.WithSyntheticRespondTool(judgeSchema)
	}

	req := &inference.ModelInferenceRequest{
		System:       system,
		Messages:     messages,
		Tools:        tools,
		OutputSchema: judgeSchema,
		JSONMode:     jsonMode,
		Params:       evaluator.Params,
	}

	table, err := deps.Models.Get(evaluator.Model)
	if err != nil {
		return candidateOutcome{}, nil, err
	}
	judgeResult, err := table.Infer(ctx, req, cfg.CacheMode)
	if err != nil {
		return candidateOutcome{}, nil, err
	}

	output := resolveOutputParsing(judgeResult.Content, judgeSchema, deps.Validator)
	if output.Parsed == nil {
		return candidateOutcome{}, judgeResult, inference.New(inference.ErrSchemaValidation, "best-of-n judge returned invalid json")
	}
	var decision struct {
		AnswerChoice int `json:"answer_choice"`
	}
	if err := json.Unmarshal(output.Parsed, &decision); err != nil {
		return candidateOutcome{}, judgeResult, inference.Wrap(inference.ErrSchemaValidation, err, "decode judge answer_choice")
	}
	for _, s := range survivors {
		if s.index == decision.AnswerChoice {
			return s, judgeResult, nil
		}
	}
	return candidateOutcome{}, judgeResult, inference.New(inference.ErrSchemaValidation, "judge answer_choice %d out of range", decision.AnswerChoice)
}

func candidateOutputText(r *Result) string {
	if r.JSONOutput != nil {
		return string(r.JSONOutput.Raw)
	}
	for _, block := range r.Content {
		if block.Type == inference.ContentText {
			return block.Text
		}
	}
	return ""
}

func hashUint32(value string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return h.Sum32()
}
