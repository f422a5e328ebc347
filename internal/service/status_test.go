package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name   string
		action string
		want   string
	}{
		{"became public law", "Became Public Law No: 117-108.", StatusBecameLaw},
		{"became law short form", "Became law", StatusBecameLaw},
		{"signed by president", "Signed by President.", StatusBecameLaw},
		{"passed house", "Passed/agreed to in House: On motion to suspend the rules and pass the bill Agreed to by voice vote.", StatusPassedChamber},
		{"passed senate", "Passed Senate without amendment by Unanimous Consent.", StatusPassedChamber},
		{"presented to president", "Presented to President.", StatusToPresident},
		{"conference report", "Conference report H. Rept. 117-405 filed.", StatusResolvingDifferences},
		{"referred to committee", "Referred to the Committee on Energy and Commerce.", StatusInCommittee},
		{"reported", "Reported by the Committee on Armed Services. H. Rept. 117-397.", StatusInCommittee},
		{"placed on calendar", "Placed on Senate Legislative Calendar under General Orders. Calendar No. 123.", StatusInCommittee},
		{"introduced", "Introduced in House", StatusIntroduced},
		{"failed passage", "Failed of passage in Senate by Yea-Nay Vote. 45 - 55.", StatusFailed},
		{"vetoed", "Vetoed by President.", StatusFailed},
		{"unknown text", "Star Print ordered on the bill.", StatusOther},
		{"empty", "", StatusOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeStatus(tt.action))
		})
	}
}

func TestNormalizeStatusDeterministic(t *testing.T) {
	// The same text always maps to the same status.
	text := "Passed Senate with an amendment by Yea-Nay Vote."
	first := NormalizeStatus(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, NormalizeStatus(text))
	}
}
