package service

import (
	"sort"
	"strings"

	"github.com/jharding/legistrack/internal/model"
)

// typeImportance ranks text version types for same-date ordering. Lower is
// more authoritative.
var typeImportance = map[string]int{
	"Public Law":                1,
	"Enrolled Bill":             2,
	"Engrossed in Senate":       3,
	"Engrossed in House":        3,
	"Placed on Calendar Senate": 4,
	"Placed on Calendar House":  4,
}

const defaultImportance = 999

func importanceOf(versionType string) int {
	if rank, ok := typeImportance[versionType]; ok {
		return rank
	}
	return defaultImportance
}

// ProcessTextVersions prepares upstream text versions for storage and
// display. A null date is backfilled with the bill's introduced date and the
// version flagged as the initial one. Display order is by date ascending;
// same-date ties break on type importance.
func ProcessTextVersions(versions []model.TextVersion, introducedDate string) []model.TextVersion {
	if len(versions) == 0 {
		return nil
	}

	out := make([]model.TextVersion, len(versions))
	copy(out, versions)

	for i := range out {
		if out[i].Date == "" && introducedDate != "" {
			out[i].Date = introducedDate
			out[i].IsInitialVersion = true
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return importanceOf(out[i].Type) < importanceOf(out[j].Type)
	})

	return out
}

// SelectTextLinks picks the link for summarization plus, when the bill was
// enacted, the link to the enacted-law text. The most recent version wins,
// with same-date ties broken by type importance. XML renditions are preferred
// since the extraction stage parses XML.
func SelectTextLinks(versions []model.TextVersion) (textLink, lawLink string) {
	ranked := make([]model.TextVersion, len(versions))
	copy(ranked, versions)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Date != ranked[j].Date {
			return ranked[i].Date > ranked[j].Date
		}
		return importanceOf(ranked[i].Type) < importanceOf(ranked[j].Type)
	})

	for _, v := range ranked {
		url := formatURL(v, "Formatted XML")
		if url == "" {
			url = formatURL(v, "")
		}
		if url == "" {
			continue
		}
		if textLink == "" {
			textLink = url
		}
		if lawLink == "" && strings.EqualFold(v.Type, "Public Law") {
			lawLink = url
		}
	}
	return textLink, lawLink
}

// formatURL returns the URL of the named format, or any format when name is
// empty.
func formatURL(v model.TextVersion, name string) string {
	for _, f := range v.Formats {
		if name == "" || f.Type == name {
			return f.URL
		}
	}
	return ""
}
