package provider

import (
	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is used for models tiktoken-go doesn't recognize by name
// (every non-OpenAI backend); it is close enough for the engine's own
// purposes — pre-call budget checks and post-call usage estimates, never
// the provider's own billed count.
const defaultEncoding = "cl100k_base"

// CountTokens estimates how many tokens text costs under model's encoding,
// falling back to cl100k_base when model isn't a recognized OpenAI model
// name (spec §4.5: token_budget enforcement and extended-thinking token
// accounting both need an estimate before or independent of a provider's
// own usage report).
func CountTokens(model, text string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return estimateByLength(text)
		}
	}
	return len(enc.Encode(text, nil, nil))
}

// estimateByLength is the last-resort fallback if tiktoken-go's own
// built-in encodings can't be loaded at all.
func estimateByLength(text string) int {
	const approxCharsPerToken = 4
	return (len(text) + approxCharsPerToken - 1) / approxCharsPerToken
}
