package executor

import (
	"github.com/supernovae-st/nika-sub001/pkg/tplengine"
)

// resolveDeep walks v (a string, map[string]any, []any, or any other JSON
// leaf), resolving `{{use.*}}` templates in every string it finds via
// resolver, and collects every substitution made along the way so the
// caller can emit one TemplateResolved event per resolution (spec §4.6
// step 2). Non-string, non-container values pass through unchanged.
func resolveDeep(v any, resolver tplengine.Resolver) (any, []tplengine.Resolution, error) {
	switch val := v.(type) {
	case string:
		out, resolutions, err := tplengine.Resolve(val, resolver)
		if err != nil {
			return nil, nil, err
		}
		return out, resolutions, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		var all []tplengine.Resolution
		for k, item := range val {
			resolved, resolutions, err := resolveDeep(item, resolver)
			if err != nil {
				return nil, nil, err
			}
			out[k] = resolved
			all = append(all, resolutions...)
		}
		return out, all, nil
	case []any:
		out := make([]any, len(val))
		var all []tplengine.Resolution
		for i, item := range val {
			resolved, resolutions, err := resolveDeep(item, resolver)
			if err != nil {
				return nil, nil, err
			}
			out[i] = resolved
			all = append(all, resolutions...)
		}
		return out, all, nil
	default:
		return v, nil, nil
	}
}

// resolveStringMap applies resolveDeep to every value of a map[string]string
// (used for FetchParams.Headers), rendering the result back as strings.
func resolveStringMap(m map[string]string, resolver tplengine.Resolver) (map[string]string, []tplengine.Resolution, error) {
	if m == nil {
		return nil, nil, nil
	}
	out := make(map[string]string, len(m))
	var all []tplengine.Resolution
	for k, v := range m {
		resolved, s, err := tplengine.Resolve(v, resolver)
		if err != nil {
			return nil, nil, err
		}
		out[k] = resolved
		all = append(all, s...)
	}
	return out, all, nil
}
