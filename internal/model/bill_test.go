package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBillNumber(t *testing.T) {
	cases := []struct {
		in       string
		billType string
		number   string
	}{
		{"HR1234", "HR", "1234"},
		{"hr1234", "HR", "1234"},
		{"SJRES33", "SJRES", "33"},
		{" S5 ", "S", "5"},
	}
	for _, tc := range cases {
		billType, number, err := ParseBillNumber(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.billType, billType)
		assert.Equal(t, tc.number, number)
	}
}

func TestParseBillNumberRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "1234", "HR", "HR12X"} {
		_, _, err := ParseBillNumber(in)
		assert.Error(t, err, in)
	}
}

func TestNewBillKeyCanonicalizes(t *testing.T) {
	lower := NewBillKey(117, "hr", "123")
	upper := NewBillKey(117, "HR", "123")

	assert.Equal(t, upper, lower)
	assert.Equal(t, "HR123", lower.BillNumber())
}

func TestIsHistoricalCongress(t *testing.T) {
	assert.False(t, IsHistoricalCongress(5))
	assert.True(t, IsHistoricalCongress(6))
	assert.True(t, IsHistoricalCongress(42))
	assert.False(t, IsHistoricalCongress(43))
	assert.False(t, IsHistoricalCongress(117))
}
