// Package ai drives the bill summarization pipeline: document retrieval and
// text extraction, provider-agnostic structured AI calls, tag validation,
// and transactional commit of the results.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jharding/legistrack/internal/config"
)

// Tag is one (category, value) pair returned by a provider.
type Tag struct {
	Category string `json:"category"`
	Value    string `json:"value"`
}

// Result is a provider response that passed schema validation.
type Result struct {
	Summary string `json:"summary"`
	Tags    []Tag  `json:"tags"`
}

// Processor is the provider abstraction. Implementations must constrain the
// model through their native structured-output mechanism so responses conform
// to the {summary, tags} schema; ValidateResponse is the single gate deciding
// conformance, never silent coercion.
type Processor interface {
	GenerateSummary(ctx context.Context, billText string) (json.RawMessage, error)
	ExtractTags(ctx context.Context, billText string, allowedCategories []string) (json.RawMessage, error)
	ValidateResponse(raw json.RawMessage) (*Result, error)
}

// NewProcessor is the factory keyed on the configured provider name.
func NewProcessor(cfg config.AIConfig) (Processor, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but no API key configured")
		}
		return newAnthropicProcessor(cfg), nil
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai provider selected but no API key configured")
		}
		return newOpenAIProcessor(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// validateResponse enforces the response schema shared by every provider:
// a non-empty summary string and a tags array whose entries carry both a
// category and a value. Missing fields fail outright.
func validateResponse(raw json.RawMessage) (*Result, error) {
	var wire struct {
		Summary *string `json:"summary"`
		Tags    *[]Tag  `json:"tags"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	if wire.Summary == nil {
		return nil, fmt.Errorf("response missing required field %q", "summary")
	}
	if strings.TrimSpace(*wire.Summary) == "" {
		return nil, fmt.Errorf("response field %q is empty", "summary")
	}
	if wire.Tags == nil {
		return nil, fmt.Errorf("response missing required field %q", "tags")
	}

	result := &Result{Summary: *wire.Summary}
	for i, tag := range *wire.Tags {
		if tag.Category == "" || tag.Value == "" {
			return nil, fmt.Errorf("tag %d missing category or value", i)
		}
		result.Tags = append(result.Tags, tag)
	}
	return result, nil
}

// responseSchema is the JSON Schema every provider call is constrained to.
func responseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "Concise summary of the bill's key points and objectives",
			},
			"tags": map[string]any{
				"type":        "array",
				"description": "Classification tags for the bill",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"category": map[string]any{
							"type":        "string",
							"description": "Tag category, e.g. policy_areas",
						},
						"value": map[string]any{
							"type":        "string",
							"description": "Tag value within the category",
						},
					},
					"required": []string{"category", "value"},
				},
			},
		},
		"required": []string{"summary", "tags"},
	}
}

func summaryPrompt(billText string) string {
	return "Generate a comprehensive summary of this legislative bill. " +
		"Return the summary together with classification tags.\n\nBill text:\n" + billText
}

func tagPrompt(billText string, allowedCategories []string) string {
	return fmt.Sprintf("Extract classification tags from this legislative bill. "+
		"Only use these categories: %s. "+
		"Return the tags together with a one-paragraph summary.\n\nBill text:\n%s",
		strings.Join(allowedCategories, ", "), billText)
}
