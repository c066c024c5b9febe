package table

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turfline/derby/go/internal/models"
	"github.com/turfline/derby/go/internal/race/events"
	"github.com/turfline/derby/go/internal/wallet"
)

// fixedRanking builds a deterministic four-horse race: horse 1 wins at odds
// 2.0, horse 2 places at 3.0, horse 3 shows at 4.0, horse 4 trails at 6.5.
func fixedRanking() ([]*models.Horse, *models.RaceResult, map[int]*models.Horse) {
	horses := []*models.Horse{
		{ID: 1, Name: "Thunderbolt", Odds: 2.0},
		{ID: 2, Name: "Silver Arrow", Odds: 3.0},
		{ID: 3, Name: "Midnight Run", Odds: 4.0},
		{ID: 4, Name: "Golden Gale", Odds: 6.5},
	}
	result := &models.RaceResult{CycleID: cycleStartMs}
	for i, h := range horses {
		result.Ranking = append(result.Ranking, models.RankedHorse{
			HorseID:    h.ID,
			Name:       h.Name,
			Odds:       h.Odds,
			Rank:       i + 1,
			FinishTime: 25.0 + float64(i),
		})
	}
	byID := make(map[int]*models.Horse)
	for _, h := range horses {
		byID[h.ID] = h
	}
	return horses, result, byID
}

func TestEvaluate(t *testing.T) {
	_, result, byID := fixedRanking()

	tests := []struct {
		name     string
		betType  models.BetType
		horseIDs []int
		wantWin  bool
		wantMult float64
	}{
		{"single on winner", models.BetTypeSingle, []int{1}, true, 2.0},
		{"single on runner-up", models.BetTypeSingle, []int{2}, false, 0},
		{"place with winner picked", models.BetTypePlace, []int{1, 4}, true, 2.0},
		{"place with runner-up picked", models.BetTypePlace, []int{4, 2}, true, 3.0},
		{"place pays first match when both hit", models.BetTypePlace, []int{2, 1}, true, 2.0},
		{"place both out of top two", models.BetTypePlace, []int{3, 4}, false, 0},
		{"quinella exact order", models.BetTypeQuinella, []int{1, 2}, true, (2.0 + 3.0) * quinellaFactor},
		{"quinella reversed loses", models.BetTypeQuinella, []int{2, 1}, false, 0},
		{"trifecta-place any order", models.BetTypeTrifectaPlace, []int{3, 1, 2}, true, (2.0 + 3.0 + 4.0) * trifectaPlaceFactor},
		{"trifecta-place one miss", models.BetTypeTrifectaPlace, []int{1, 2, 4}, false, 0},
		{"trifecta exact order", models.BetTypeTrifecta, []int{1, 2, 3}, true, 2.0 * 3.0 * 4.0 * trifectaFactor},
		{"trifecta scrambled loses", models.BetTypeTrifecta, []int{1, 3, 2}, false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bet := &models.Bet{Type: tc.betType, HorseIDs: tc.horseIDs}
			won, mult := evaluate(bet, result, byID)
			assert.Equal(t, tc.wantWin, won)
			assert.InDelta(t, tc.wantMult, mult, 1e-9)
		})
	}
}

// settlementTable wires a table whose race already finished with the fixed
// ranking, skipping the engine.
func settlementTable(t *testing.T, store wallet.Store) (*Table, *captureBroadcaster) {
	t.Helper()
	horses, result, _ := fixedRanking()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(cycleStartMs))
	bcast := &captureBroadcaster{}
	tbl := New(DefaultConfig(), clock, store, nil)
	tbl.AttachBroadcaster(bcast)
	tbl.cycleID = cycleStartMs
	tbl.horses = horses
	tbl.result = result
	return tbl, bcast
}

func addBet(tbl *Table, userID string, betType models.BetType, horseIDs []int, amount int64) *models.Bet {
	bet := &models.Bet{
		ID:       uuid.New(),
		UserID:   userID,
		CycleID:  tbl.cycleID,
		Type:     betType,
		HorseIDs: horseIDs,
		Amount:   amount,
		Status:   models.BetStatusPending,
	}
	tbl.bets[bet.ID] = bet
	tbl.betKeys[betKey(userID, betType, horseIDs)] = bet.ID
	return bet
}

func TestSettle_PaysWinnersAndMarksLosers(t *testing.T) {
	store := wallet.NewMemoryStore(0)
	tbl, bcast := settlementTable(t, store)

	winner := addBet(tbl, "alice", models.BetTypeSingle, []int{1}, 100)  // 100 × 2.0 = 200
	loser := addBet(tbl, "alice", models.BetTypeSingle, []int{4}, 100)   // lost
	combo := addBet(tbl, "bob", models.BetTypeQuinella, []int{1, 2}, 50) // floor(50 × 4.0) = 200

	require.NoError(t, tbl.settle(context.Background()))

	assert.Equal(t, models.BetStatusWon, winner.Status)
	assert.Equal(t, int64(200), winner.Payout)
	assert.Equal(t, models.BetStatusLost, loser.Status)
	assert.Equal(t, int64(0), loser.Payout)
	assert.Equal(t, models.BetStatusWon, combo.Status)
	assert.Equal(t, int64(200), combo.Payout)

	aliceBal, _ := store.Balance(context.Background(), "alice")
	assert.Equal(t, int64(200), aliceBal)

	// Each winning user gets one private winnings message.
	wins := bcast.ofType(events.TypeWinnings)
	require.Len(t, wins, 2)
	for _, w := range wins {
		payload := w.payload.(events.WinningsPayload)
		switch w.userID {
		case "alice":
			assert.Equal(t, int64(200), payload.TotalWinnings)
		case "bob":
			assert.Equal(t, int64(200), payload.TotalWinnings)
		default:
			t.Fatalf("unexpected winnings recipient %s", w.userID)
		}
	}
}

func TestSettle_PayoutFloorsFraction(t *testing.T) {
	store := wallet.NewMemoryStore(0)
	tbl, _ := settlementTable(t, store)

	// (2.0 + 3.0 + 4.0) × 0.6 = 5.4; 33 × 5.4 = 178.2 and fractions are
	// always floored, never rounded up.
	addBet(tbl, "carol", models.BetTypeTrifectaPlace, []int{1, 2, 3}, 33)

	require.NoError(t, tbl.settle(context.Background()))
	bal, _ := store.Balance(context.Background(), "carol")
	assert.Equal(t, int64(178), bal)
}

func TestSettle_IdempotentPerCycle(t *testing.T) {
	store := wallet.NewMemoryStore(0)
	tbl, _ := settlementTable(t, store)
	addBet(tbl, "alice", models.BetTypeSingle, []int{1}, 100)

	require.NoError(t, tbl.settle(context.Background()))
	require.NoError(t, tbl.settle(context.Background()))
	require.NoError(t, tbl.settle(context.Background()))

	bal, _ := store.Balance(context.Background(), "alice")
	assert.Equal(t, int64(200), bal, "repeated settlement must not double-pay")
}

// flakyWallet fails credits until unblocked.
type flakyWallet struct {
	*wallet.MemoryStore
	failing bool
}

func (w *flakyWallet) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if w.failing {
		return 0, fmt.Errorf("wallet backend unavailable")
	}
	return w.MemoryStore.Credit(ctx, userID, amount)
}

func TestSettle_RetryAfterCreditFailure(t *testing.T) {
	store := &flakyWallet{MemoryStore: wallet.NewMemoryStore(0), failing: true}
	tbl, _ := settlementTable(t, store)
	bet := addBet(tbl, "alice", models.BetTypeSingle, []int{1}, 100)

	// First run fails to pay; the bet must stay pending so a retry can
	// pick it up, and the cycle must not be marked settled.
	require.Error(t, tbl.settle(context.Background()))
	assert.Equal(t, models.BetStatusPending, bet.Status)
	assert.False(t, tbl.settled[tbl.cycleID])

	store.failing = false
	require.NoError(t, tbl.settle(context.Background()))
	assert.Equal(t, models.BetStatusWon, bet.Status)
	assert.True(t, tbl.settled[tbl.cycleID])

	bal, _ := store.Balance(context.Background(), "alice")
	assert.Equal(t, int64(200), bal)
}
