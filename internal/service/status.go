package service

import "strings"

// Normalized status values. The mapping from free-text action descriptions is
// lossy by design; every input lands on exactly one of these.
const (
	StatusIntroduced           = "Introduced"
	StatusInCommittee          = "In Committee"
	StatusPassedChamber        = "Passed Chamber"
	StatusResolvingDifferences = "Resolving Differences"
	StatusToPresident          = "To President"
	StatusBecameLaw            = "Became Law"
	StatusFailed               = "Failed"
	StatusOther                = "Other"
)

// NormalizeStatus maps the latest-action free text onto the closed status
// enumeration. Rules are ordered from most to least conclusive so the first
// match wins deterministically.
func NormalizeStatus(actionText string) string {
	if strings.TrimSpace(actionText) == "" {
		return StatusOther
	}
	text := strings.ToLower(actionText)

	contains := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(text, t) {
				return true
			}
		}
		return false
	}

	switch {
	case contains("became public law", "became law", "signed by president", "approved by president", "enacted"):
		return StatusBecameLaw
	case contains("failed of passage", "failed to pass", "rejected", "vetoed", "motion to table agreed to", "failed"):
		return StatusFailed
	case contains("presented to president", "presented to the president", "received by the president"):
		return StatusToPresident
	case contains("conference report", "conference committee", "resolving differences", "agreed to senate amendment", "agreed to house amendment"):
		return StatusResolvingDifferences
	case contains("passed", "agreed to in house", "agreed to in senate", "motion to reconsider laid on the table agreed to"):
		return StatusPassedChamber
	case contains("reported", "ordered to be reported", "placed on", "referred to", "committee", "held at the desk"):
		return StatusInCommittee
	case contains("introduced", "introduction"):
		return StatusIntroduced
	default:
		return StatusOther
	}
}
