package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func rankingOf(ids ...int) *RaceResult {
	result := &RaceResult{CycleID: 1}
	for i, id := range ids {
		result.Ranking = append(result.Ranking, RankedHorse{HorseID: id, Rank: i + 1})
	}
	return result
}

func TestRaceResult_RankOf(t *testing.T) {
	result := rankingOf(3, 1, 2)

	assert.Equal(t, 1, result.RankOf(3))
	assert.Equal(t, 2, result.RankOf(1))
	assert.Equal(t, 3, result.RankOf(2))
	assert.Equal(t, 0, result.RankOf(99), "unknown horse has no rank")
}

func TestRaceResult_Top(t *testing.T) {
	result := rankingOf(3, 1, 2)

	assert.Len(t, result.Top(2), 2)
	assert.Equal(t, 3, result.Top(1)[0].HorseID)
	assert.Len(t, result.Top(5), 3, "capped at field size")
	assert.Empty(t, result.Top(0))
}
