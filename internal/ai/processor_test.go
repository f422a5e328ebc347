package ai

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jharding/legistrack/internal/config"
)

func TestValidateResponse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{
			name: "valid",
			raw:  `{"summary": "A bill.", "tags": [{"category": "Policy Area", "value": "Health"}]}`,
		},
		{
			name: "valid with empty tags",
			raw:  `{"summary": "A bill.", "tags": []}`,
		},
		{
			name:    "missing tags",
			raw:     `{"summary": "A bill."}`,
			wantErr: `missing required field "tags"`,
		},
		{
			name:    "missing summary",
			raw:     `{"tags": []}`,
			wantErr: `missing required field "summary"`,
		},
		{
			name:    "blank summary",
			raw:     `{"summary": "   ", "tags": []}`,
			wantErr: "is empty",
		},
		{
			name:    "tag missing value",
			raw:     `{"summary": "A bill.", "tags": [{"category": "Policy Area"}]}`,
			wantErr: "missing category or value",
		},
		{
			name:    "not an object",
			raw:     `"just a string"`,
			wantErr: "not a JSON object",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := validateResponse(json.RawMessage(tc.raw))
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, result.Summary)
		})
	}
}

func TestNewProcessorSelectsProvider(t *testing.T) {
	p, err := NewProcessor(config.AIConfig{Provider: "anthropic", AnthropicKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &anthropicProcessor{}, p)

	p, err = NewProcessor(config.AIConfig{Provider: "openai", OpenAIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &openaiProcessor{}, p)
}

func TestNewProcessorRequiresKey(t *testing.T) {
	_, err := NewProcessor(config.AIConfig{Provider: "anthropic"})
	assert.Error(t, err)
}

func TestNewProcessorRejectsUnknownProvider(t *testing.T) {
	_, err := NewProcessor(config.AIConfig{Provider: "mystery"})
	assert.Error(t, err)
}
