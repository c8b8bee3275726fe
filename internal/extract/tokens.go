package extract

// maxInputTokens is a static table of model context budgets used to derive
// the extraction token budget (§4.J "token budget derived from model's max
// input tokens × 0.8"). No tokenizer library appears anywhere in the pack,
// so token counts are approximated with the common chars/4 heuristic rather
// than a model-specific BPE tokenizer.
var maxInputTokens = map[string]int{
	"claude-sonnet-4-20250514": 200000,
	"claude-opus-4-20250514":   200000,
	"gemini-3-flash":           1000000,
	"gemini-3-pro":             2000000,
}

const defaultMaxInputTokens = 128000

// budgetFor returns 80% of model's max input token window (§4.J), falling
// back to defaultMaxInputTokens for an unrecognized model string.
func budgetFor(model string) int {
	max, ok := maxInputTokens[model]
	if !ok {
		max = defaultMaxInputTokens
	}
	return int(float64(max) * 0.8)
}

// estimateTokens approximates a token count from character length. This is
// the documented stdlib fallback for this one calculation: the pack carries
// no tokenizer library (tiktoken-style or otherwise), and the budget check
// only needs to be directionally correct, not exact.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// trimToBudget iteratively shortens markdown to fit within budget tokens,
// removing at most 20% of the remaining length per step (§4.J step 1:
// "never removing more than 20% per step"). Returns the trimmed text and
// whether any trimming occurred.
func trimToBudget(markdown string, budget int) (string, bool) {
	trimmed := false
	for estimateTokens(markdown) > budget && len(markdown) > 0 {
		trimmed = true
		cut := len(markdown) / 5 // 20%
		if cut == 0 {
			cut = 1
		}
		keep := len(markdown) - cut
		if keep <= 0 {
			break
		}
		markdown = markdown[:keep]
	}
	return markdown, trimmed
}
