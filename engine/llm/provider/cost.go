package provider

import "github.com/shopspring/decimal"

// pricePerMillion is a (prompt, completion) USD rate per million tokens.
// Rates are illustrative placeholders, not live vendor pricing; callers
// needing accurate accounting should override via WithPricing.
type pricePerMillion struct {
	prompt     decimal.Decimal
	completion decimal.Decimal
}

var defaultPricing = map[string]pricePerMillion{
	"gpt-4o":           {decimal.NewFromFloat(2.50), decimal.NewFromFloat(10.00)},
	"gpt-4o-mini":      {decimal.NewFromFloat(0.15), decimal.NewFromFloat(0.60)},
	"claude-3-5-sonnet": {decimal.NewFromFloat(3.00), decimal.NewFromFloat(15.00)},
	"claude-3-5-haiku":  {decimal.NewFromFloat(0.80), decimal.NewFromFloat(4.00)},
}

// EstimateCost returns the USD cost of usage against model's pricing entry,
// or zero when the model has no known entry (spec §4.8 cost rollup treats
// an unknown model as zero-cost rather than failing the run).
func EstimateCost(model string, usage Usage) decimal.Decimal {
	price, ok := defaultPricing[model]
	if !ok {
		return decimal.Zero
	}
	million := decimal.NewFromInt(1_000_000)
	promptCost := decimal.NewFromInt(int64(usage.PromptTokens)).Mul(price.prompt).Div(million)
	completionCost := decimal.NewFromInt(int64(usage.CompletionTokens)).Mul(price.completion).Div(million)
	return promptCost.Add(completionCost)
}
