package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitArgUnboundedWhenNonPositive(t *testing.T) {
	assert.Equal(t, sql.NullInt64{}, limitArg(0))
	assert.Equal(t, sql.NullInt64{}, limitArg(-5))
}

func TestLimitArgPassesPositiveValues(t *testing.T) {
	assert.Equal(t, sql.NullInt64{Int64: 1, Valid: true}, limitArg(1))
	assert.Equal(t, sql.NullInt64{Int64: 500, Valid: true}, limitArg(500))
}
