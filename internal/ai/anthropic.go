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
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"
	anthropicModel    = "claude-sonnet-4-20250514"
	anthropicToolName = "record_bill_analysis"
)

// anthropicProcessor enforces structured output through Anthropic's tool
// calling: the call names a single tool whose input schema is the response
// schema, and tool_choice forces the model to use it.
type anthropicProcessor struct {
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

func newAnthropicProcessor(cfg config.AIConfig) *anthropicProcessor {
	model := cfg.Model
	if model == "" {
		model = anthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	return &anthropicProcessor{
		apiKey:     cfg.AnthropicKey,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *anthropicProcessor) GenerateSummary(ctx context.Context, billText string) (json.RawMessage, error) {
	return p.call(ctx, summaryPrompt(billText))
}

func (p *anthropicProcessor) ExtractTags(ctx context.Context, billText string, allowedCategories []string) (json.RawMessage, error) {
	return p.call(ctx, tagPrompt(billText, allowedCategories))
}

func (p *anthropicProcessor) ValidateResponse(raw json.RawMessage) (*Result, error) {
	return validateResponse(raw)
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Tools     []anthropicTool    `json:"tools"`
	Choice    map[string]string  `json:"tool_choice"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type  string          `json:"type"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// call performs one messages-API request and returns the tool input payload.
func (p *anthropicProcessor) call(ctx context.Context, prompt string) (json.RawMessage, error) {
	reqBody := anthropicRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Tools: []anthropicTool{{
			Name:        anthropicToolName,
			Description: "Record the structured analysis of a legislative bill",
			InputSchema: responseSchema(),
		}},
		Choice: map[string]string{"type": "tool", "name": anthropicToolName},
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read anthropic response: %w", err)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("anthropic API returned %d", resp.StatusCode)
	}

	for _, block := range parsed.Content {
		if block.Type == "tool_use" && block.Name == anthropicToolName {
			return block.Input, nil
		}
	}
	return nil, fmt.Errorf("anthropic response contains no tool_use block")
}
