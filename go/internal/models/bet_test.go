package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBetType_SelectionCount(t *testing.T) {
	assert.Equal(t, 1, BetTypeSingle.SelectionCount())
	assert.Equal(t, 2, BetTypePlace.SelectionCount())
	assert.Equal(t, 2, BetTypeQuinella.SelectionCount())
	assert.Equal(t, 3, BetTypeTrifectaPlace.SelectionCount())
	assert.Equal(t, 3, BetTypeTrifecta.SelectionCount())
	assert.Equal(t, 0, BetType("exacta").SelectionCount())
}

func TestBetType_Ordered(t *testing.T) {
	assert.True(t, BetTypeQuinella.Ordered())
	assert.True(t, BetTypeTrifecta.Ordered())
	assert.False(t, BetTypeSingle.Ordered())
	assert.False(t, BetTypePlace.Ordered())
	assert.False(t, BetTypeTrifectaPlace.Ordered())
}

func TestBetType_Valid(t *testing.T) {
	for _, bt := range []BetType{BetTypeSingle, BetTypePlace, BetTypeQuinella, BetTypeTrifectaPlace, BetTypeTrifecta} {
		assert.True(t, bt.Valid(), string(bt))
	}
	assert.False(t, BetType("").Valid())
	assert.False(t, BetType("superfecta").Valid())
}
