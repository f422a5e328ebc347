package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jharding/legistrack/internal/config"
)

const (
	openaiEndpoint = "https://api.openai.com/v1/chat/completions"
	openaiModel    = "gpt-4o"
)

// openaiProcessor enforces structured output through the chat completions
// response_format with a strict JSON schema.
type openaiProcessor struct {
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func newOpenAIProcessor(cfg config.AIConfig) *openaiProcessor {
	model := cfg.Model
	if model == "" {
		model = openaiModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	return &openaiProcessor{
		apiKey:     cfg.OpenAIKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *openaiProcessor) GenerateSummary(ctx context.Context, billText string) (json.RawMessage, error) {
	return p.call(ctx, summaryPrompt(billText))
}

func (p *openaiProcessor) ExtractTags(ctx context.Context, billText string, allowedCategories []string) (json.RawMessage, error) {
	return p.call(ctx, tagPrompt(billText, allowedCategories))
}

func (p *openaiProcessor) ValidateResponse(raw json.RawMessage) (*Result, error) {
	return validateResponse(raw)
}

type openaiRequest struct {
	Model          string          `json:"model"`
	MaxTokens      int             `json:"max_completion_tokens"`
	Messages       []openaiMessage `json:"messages"`
	ResponseFormat map[string]any  `json:"response_format"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *openaiProcessor) call(ctx context.Context, prompt string) (json.RawMessage, error) {
	reqBody := openaiRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages: []openaiMessage{
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "bill_analysis",
				"strict": true,
				"schema": responseSchema(),
			},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("openai API error %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("openai API returned %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response contains no choices")
	}

	return json.RawMessage(parsed.Choices[0].Message.Content), nil
}
