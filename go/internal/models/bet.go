package models

import (
	"time"

	"github.com/google/uuid"
)

// BetType defines the wager variant.
type BetType string

const (
	BetTypeSingle        BetType = "single"
	BetTypePlace         BetType = "place"
	BetTypeQuinella      BetType = "quinella"
	BetTypeTrifectaPlace BetType = "trifecta-place"
	BetTypeTrifecta      BetType = "trifecta"
)

// SelectionCount returns how many horses the bet type requires.
func (t BetType) SelectionCount() int {
	switch t {
	case BetTypeSingle:
		return 1
	case BetTypePlace, BetTypeQuinella:
		return 2
	case BetTypeTrifectaPlace, BetTypeTrifecta:
		return 3
	default:
		return 0
	}
}

// Ordered reports whether the order of the chosen horses matters for the
// win condition. The place type takes two horses but is a box: either horse
// finishing in the top two wins.
func (t BetType) Ordered() bool {
	return t == BetTypeQuinella || t == BetTypeTrifecta
}

// Valid reports whether t is a known bet type.
func (t BetType) Valid() bool {
	return t.SelectionCount() > 0
}

// BetStatus defines the lifecycle state of a bet.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusWon       BetStatus = "won"
	BetStatusLost      BetStatus = "lost"
	BetStatusCancelled BetStatus = "cancelled"
)

// Bet is one recorded wager. A bet belongs to exactly one cycle and is only
// mutable while that cycle is still in its betting phase.
type Bet struct {
	ID       uuid.UUID `json:"id"`
	UserID   string    `json:"user_id"`
	CycleID  int64     `json:"cycle_id"`
	Type     BetType   `json:"bet_type"`
	HorseIDs []int     `json:"horse_ids"`
	Amount   int64     `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
	Status   BetStatus `json:"status"`
	Payout   int64     `json:"payout,omitempty"`
}
