package llm

// PriceTable holds per-million-token USD rates for one model. Grounded
// on the teacher's internal/pricing/pricing.go cost table shape.
type PriceTable struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// modelPrices covers the alias-expanded model ids this system actually
// dispatches to (internal/config.ModelAliases); unknown ids fall back to
// the haiku-tier rate in Cost.
var modelPrices = map[string]PriceTable{
	"claude-haiku-4-5-20251001":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-opus-4-6":            {InputPerMillion: 15.00, OutputPerMillion: 75.00},
}

var defaultPrice = modelPrices["claude-haiku-4-5-20251001"]

// Cost returns the USD cost of a completion call given its model id and
// reported input/output token counts.
func Cost(model string, inputTokens, outputTokens int64) float64 {
	price, ok := modelPrices[model]
	if !ok {
		price = defaultPrice
	}
	return float64(inputTokens)/1_000_000*price.InputPerMillion +
		float64(outputTokens)/1_000_000*price.OutputPerMillion
}
