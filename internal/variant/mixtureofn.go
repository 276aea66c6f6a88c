package variant

import (
	"context"
	"time"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// MixtureOfN implements spec.md §4.5: fan out candidates like best-of-N,
// but the second stage is a fuser that synthesizes a fresh response from
// all candidates rather than a judge that picks a winner.
type MixtureOfN struct{}

func NewMixtureOfN() *MixtureOfN { return &MixtureOfN{} }

func (m *MixtureOfN) Execute(ctx context.Context, cfg InferenceConfig, deps Deps) (*Result, error) {
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
		return nil, inference.New(inference.ErrInferenceServer, "mixture-of-n variant %q: all candidates failed", cfg.VariantName)
	}
	if len(survivors) == 1 {
		return survivors[0].result, nil
	}

	fuser := v.EvaluatorOrFuser
	if fuser == nil {
		return survivors[0].result, nil
	}

	fused, fuserCall, err := fuseCandidates(ctx, cfg, deps, fuser, survivors)
	if err != nil {
		return nil, err
	}

	final := *fused
	allUsage := []inference.Usage{fused.Usage}
	for _, o := range survivors {
		final.ModelCalls = append(final.ModelCalls, o.result.ModelCalls...)
		allUsage = append(allUsage, o.result.Usage)
	}
	final.ModelCalls = append(final.ModelCalls, *fuserCall)
	final.Usage = inference.SumUsage(allUsage...)
	return &final, nil
}

// fuseCandidates builds a chat-completion request for the fuser: the
// function's own rendered prompt, plus each candidate's output appended as
// context, asking the fuser to synthesize a fresh answer honoring the
// parent function's JSON-mode requirement.
func fuseCandidates(ctx context.Context, cfg InferenceConfig, deps Deps, fuser *inference.VariantConfig, survivors []candidateOutcome) (*Result, *inference.ModelInferenceResult, error) {
	fuserCfg := cfg
	fuserCfg.Stream = false

	req, err := buildRequest(fuser, fuserCfg, deps, "fuser")
	if err != nil {
		return nil, nil, err
	}

	fuseIntro := "Here are candidate responses produced by other models. Synthesize the best possible final answer from them.\n\n"
	for _, s := range survivors {
		if text := candidateOutputText(s.result); text != "" {
			fuseIntro += text + "\n---\n"
		}
	}
	req.Messages = append(req.Messages, inference.Message{
		Role:    inference.RoleUser,
		Content: []inference.ContentBlock{inference.TextBlock(fuseIntro)},
	})

	table, err := deps.Models.Get(fuser.Model)
	if err != nil {
		return nil, nil, err
	}
	result, err := table.Infer(ctx, req, cfg.CacheMode)
	if err != nil {
		return nil, nil, err
	}

	out := &Result{
		Content:      result.Content,
		Usage:        result.Usage,
		FinishReason: result.FinishReason,
	}
	if cfg.Function.Type == inference.FunctionJSON {
		out.JSONOutput = resolveOutputParsing(result.Content, cfg.Function.OutputSchema, deps.Validator)
	}
	return out, result, nil
}
