package providers

// MergeExtraBody deep-merges extra request-body fields in ascending
// precedence order: inference-level, then variant-level, then
// provider-level — later maps win on key conflict, matching spec §9's
// "(inference-level extras, variant-level extras, provider-level extras)"
// precedence order. Every adapter calls this exactly once, after building
// its own translated wire-format body, and before marshaling.
func MergeExtraBody(layers ...map[string]any) map[string]any {
	merged := map[string]any{}
	for _, layer := range layers {
		deepMergeInto(merged, layer)
	}
	return merged
}

func deepMergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMergeInto(dstMap, srcMap)
				continue
			}
			cloned := map[string]any{}
			deepMergeInto(cloned, srcMap)
			dst[k] = cloned
			continue
		}
		dst[k] = v
	}
}

// MergeExtraHeaders merges header maps in ascending precedence order; a
// later map's key always wins.
func MergeExtraHeaders(layers ...map[string]string) map[string]string {
	merged := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
