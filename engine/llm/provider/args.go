package provider

import "encoding/json"

// argsToJSON renders tool-call arguments the way every langchaingo backend
// expects FunctionCall.Arguments: a JSON object string.
func argsToJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// argsFromJSON parses a model-returned FunctionCall.Arguments string back
// into a map. A malformed payload yields an empty map rather than an error —
// the caller (agent loop) surfaces the malformed call to the model on its
// next turn instead of aborting the run.
func argsFromJSON(raw string) map[string]any {
	out := make(map[string]any)
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
