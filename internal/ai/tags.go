package ai

import (
	"log/slog"

	"github.com/jharding/legistrack/internal/model"
)

// TagValidator checks provider tags against the known vocabulary. The
// vocabulary maps type name to normalized tag name to tag id, as loaded by
// the tag store.
type TagValidator struct {
	vocabulary map[string]map[string]int
	logger     *slog.Logger
}

func NewTagValidator(vocabulary map[string]map[string]int, logger *slog.Logger) *TagValidator {
	return &TagValidator{vocabulary: vocabulary, logger: logger}
}

// UnknownTag is a provider tag that did not match the vocabulary, with the
// normalized value preserved for review queueing.
type UnknownTag struct {
	Category   string
	Value      string
	Normalized string
}

// Validate normalizes each tag and resolves it against the vocabulary.
// Matched tags come back as stored tag ids; everything else is reported as
// unknown for the caller's policy to handle.
func (v *TagValidator) Validate(tags []Tag) (tagIDs []int, unknown []UnknownTag) {
	seen := make(map[int]bool)
	for _, tag := range tags {
		normalized := model.NormalizeTagName(tag.Value)
		byName, ok := v.vocabulary[tag.Category]
		if !ok {
			v.logger.Warn("tag category not in vocabulary",
				"category", tag.Category, "value", tag.Value)
			unknown = append(unknown, UnknownTag{Category: tag.Category, Value: tag.Value, Normalized: normalized})
			continue
		}
		id, ok := byName[normalized]
		if !ok {
			v.logger.Warn("tag value not in vocabulary",
				"category", tag.Category, "value", tag.Value, "normalized", normalized)
			unknown = append(unknown, UnknownTag{Category: tag.Category, Value: tag.Value, Normalized: normalized})
			continue
		}
		if !seen[id] {
			seen[id] = true
			tagIDs = append(tagIDs, id)
		}
	}
	return tagIDs, unknown
}

// Categories returns the vocabulary's type names, for constraining the
// provider prompt.
func (v *TagValidator) Categories() []string {
	names := make([]string, 0, len(v.vocabulary))
	for name := range v.vocabulary {
		names = append(names, name)
	}
	return names
}
