package ai

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testVocabulary() map[string]map[string]int {
	return map[string]map[string]int{
		"Policy Area": {
			"health":                             1,
			"armed_forces_and_national_security": 2,
		},
		"Subject": {
			"veterans": 10,
		},
	}
}

func TestTagValidatorMatchesNormalizedValues(t *testing.T) {
	v := NewTagValidator(testVocabulary(), discardLogger())

	ids, unknown := v.Validate([]Tag{
		{Category: "Policy Area", Value: "Health"},
		{Category: "Policy Area", Value: "Armed Forces and National Security"},
		{Category: "Subject", Value: "Veterans"},
	})

	assert.ElementsMatch(t, []int{1, 2, 10}, ids)
	assert.Empty(t, unknown)
}

func TestTagValidatorReportsUnknown(t *testing.T) {
	v := NewTagValidator(testVocabulary(), discardLogger())

	ids, unknown := v.Validate([]Tag{
		{Category: "Policy Area", Value: "Health"},
		{Category: "Policy Area", Value: "Space Lasers"},
		{Category: "Mood", Value: "Optimistic"},
	})

	assert.Equal(t, []int{1}, ids)
	require.Len(t, unknown, 2)
	assert.Equal(t, "space_lasers", unknown[0].Normalized)
	assert.Equal(t, "Mood", unknown[1].Category)
}

func TestTagValidatorDeduplicates(t *testing.T) {
	v := NewTagValidator(testVocabulary(), discardLogger())

	ids, unknown := v.Validate([]Tag{
		{Category: "Policy Area", Value: "Health"},
		{Category: "Policy Area", Value: "health"},
	})

	assert.Equal(t, []int{1}, ids)
	assert.Empty(t, unknown)
}
