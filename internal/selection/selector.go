// Package selection picks the variant a given inference call runs,
// deterministically bucketing on episode_id so that every call within one
// episode draws the same variant, and falling back through the function's
// variant list in weight order when a draw is ineligible or excluded.
package selection

import (
	"hash/fnv"
	"sort"

	"github.com/haasonsaas/gateway/pkg/inference"
)

// Selector draws a variant name for a function call.
type Selector struct{}

func New() *Selector { return &Selector{} }

// Select returns the variant name to run for episodeID against fn, honoring
// a pinned variant name if one was supplied by the caller. excluded lists
// variant names to skip (already tried and failed this call).
func (s *Selector) Select(fn *inference.FunctionConfig, episodeID string, pinned string, excluded map[string]bool) (string, error) {
	if pinned != "" {
		if v, ok := fn.Variants[pinned]; ok && v.Pinnable() {
			return pinned, nil
		}
		return "", inference.New(inference.ErrUnknownVariant, "variant %q is not configured for function %q", pinned, fn.Name)
	}

	eligible := drawEligibleVariants(fn, excluded)
	if len(eligible) == 0 {
		return "", inference.New(inference.ErrUnknownVariant, "function %q has no draw-eligible variants remaining", fn.Name)
	}

	var total uint32
	for _, name := range eligible {
		total += weightOf(fn.Variants[name])
	}
	if total == 0 {
		return eligible[0], nil
	}

	bucket := hashUint32(episodeID+":"+fn.Name) % total
	var cursor uint32
	for _, name := range eligible {
		w := weightOf(fn.Variants[name])
		if bucket < cursor+w {
			return name, nil
		}
		cursor += w
	}
	// Unreachable when total is correctly accumulated above, but fall back
	// to the last eligible variant defensively rather than panicking.
	return eligible[len(eligible)-1], nil
}

// drawEligibleVariants returns the function's variant names that carry
// positive weight and are not excluded, sorted for a stable bucket order.
func drawEligibleVariants(fn *inference.FunctionConfig, excluded map[string]bool) []string {
	names := make([]string, 0, len(fn.Variants))
	for name, v := range fn.Variants {
		if excluded[name] {
			continue
		}
		if !v.DrawEligible() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func weightOf(v *inference.VariantConfig) uint32 {
	if v.Weight <= 0 {
		return 0
	}
	return uint32(v.Weight * 1000)
}

func hashUint32(value string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return h.Sum32()
}
