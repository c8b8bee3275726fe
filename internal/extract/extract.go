// Package extract implements the JSON Extractor (spec §4.J): token
// budgeting, JSON-schema normalization, and the LLM call that turns scraped
// markdown into structured data. Built on the teacher's
// internal/services/llm Provider abstraction (Claude via anthropic-sdk-go,
// Gemini via google.golang.org/genai) left otherwise untouched.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
	"github.com/wayfarer-labs/scrapeforge/internal/interfaces"
	"github.com/wayfarer-labs/scrapeforge/internal/models"
	"github.com/wayfarer-labs/scrapeforge/internal/services/llm"
	"github.com/wayfarer-labs/scrapeforge/internal/transform"
)

// Extractor implements transform.Extractor over an llm.Provider.
type Extractor struct {
	provider llm.Provider
	model    string
	logger   arbor.ILogger
}

var _ transform.Extractor = (*Extractor)(nil)

// NewExtractor builds an Extractor. model selects both the completion model
// and (via the static maxInputTokens table) the token budget.
func NewExtractor(provider llm.Provider, model string, logger arbor.ILogger) *Extractor {
	return &Extractor{provider: provider, model: model, logger: logger}
}

// Extract runs §4.J's 5-step process over markdown and returns the
// extracted fields. If the caller's schema was array-shaped, the unwrapped
// array is returned under the conventional "result" key so the map-shaped
// return type required by models.Document.Extract can still carry it.
func (e *Extractor) Extract(ctx context.Context, markdown string, spec models.ExtractSpec, tracker *models.CostTracker) (map[string]interface{}, error) {
	budget := budgetFor(e.model)
	trimmedMarkdown, trimmed := trimToBudget(markdown, budget)
	if trimmed {
		e.logger.Warn().Int("budget_tokens", budget).Msg("extract: markdown trimmed to fit token budget")
	}

	normalizedSchema, wasArray := normalizeSchema(spec.Schema)

	temperature := float32(0)
	systemPrompt := spec.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = "Extract structured data from the provided page content. Respond only with JSON matching the supplied schema."
	}
	prompt := spec.Prompt
	if prompt == "" {
		prompt = "Extract the requested fields from this content:\n\n" + trimmedMarkdown
	} else {
		prompt = prompt + "\n\nContent:\n" + trimmedMarkdown
	}

	req := &llm.ContentRequest{
		Messages:          []interfaces.Message{{Role: "user", Content: prompt}},
		Model:             e.model,
		Temperature:       temperature,
		SystemInstruction: systemPrompt,
		OutputSchema:      normalizedSchema,
	}

	resp, err := e.provider.GenerateContent(ctx, req)
	if err != nil {
		if isRefusal(err) {
			return nil, apperr.Wrap(apperr.KindLLMRefusal, "model refused to extract", err)
		}
		if isCostLimit(err) {
			return nil, apperr.Wrap(apperr.KindCostLimitExceeded, "extraction cost limit exceeded", err)
		}
		return nil, apperr.Wrap(apperr.KindEngineError, "extraction call failed", err)
	}

	tracker.TokensUsed += estimateTokens(prompt) + estimateTokens(resp.Text)

	parsed, err := parseJSONObject(resp.Text)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidSchema, "model did not return valid JSON", err)
	}

	if wasArray {
		return map[string]interface{}{"result": unwrapItems(parsed)}, nil
	}
	return parsed, nil
}

func isRefusal(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "refus") || strings.Contains(msg, "safety") || strings.Contains(msg, "blocked") || strings.Contains(msg, "cannot assist")
}

func isCostLimit(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cost limit") || strings.Contains(msg, "budget exceeded") || strings.Contains(msg, "quota exceeded")
}

// parseJSONObject parses the model's response text as a JSON object,
// stripping a ```json fenced code block if the model wrapped its answer in
// one despite the structured-output request.
func parseJSONObject(text string) (map[string]interface{}, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("unmarshal extraction response: %w", err)
	}
	return out, nil
}
