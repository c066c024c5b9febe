package table

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/models"
	"github.com/turfline/derby/go/internal/race/events"
)

// Payout multiplier factors for multi-horse bets. The combined odds are
// scaled down because hitting an exact order is already rewarded by the
// combination itself.
const (
	quinellaFactor      = 0.8
	trifectaPlaceFactor = 0.6
	trifectaFactor      = 0.3
)

// evaluate decides whether a bet won against the final ranking and, if so,
// its payout multiplier.
//
// The place type deliberately keeps the reference semantics: two horses are
// chosen and the bet wins when either finishes in the top two, paying the
// odds of the matching horse (first match in ranking order when both hit).
func evaluate(bet *models.Bet, result *models.RaceResult, horses map[int]*models.Horse) (bool, float64) {
	top := result.Top(3)
	oddsOf := func(id int) float64 { return horses[id].Odds }

	switch bet.Type {
	case models.BetTypeSingle:
		if result.RankOf(bet.HorseIDs[0]) == 1 {
			return true, oddsOf(bet.HorseIDs[0])
		}

	case models.BetTypePlace:
		for _, ranked := range result.Top(2) {
			for _, id := range bet.HorseIDs {
				if ranked.HorseID == id {
					return true, oddsOf(id)
				}
			}
		}

	case models.BetTypeQuinella:
		if len(top) >= 2 && top[0].HorseID == bet.HorseIDs[0] && top[1].HorseID == bet.HorseIDs[1] {
			return true, (oddsOf(bet.HorseIDs[0]) + oddsOf(bet.HorseIDs[1])) * quinellaFactor
		}

	case models.BetTypeTrifectaPlace:
		if len(top) >= 3 {
			podium := map[int]bool{top[0].HorseID: true, top[1].HorseID: true, top[2].HorseID: true}
			hits := 0
			sum := 0.0
			for _, id := range bet.HorseIDs {
				if podium[id] {
					hits++
					sum += oddsOf(id)
				}
			}
			if hits == 3 {
				return true, sum * trifectaPlaceFactor
			}
		}

	case models.BetTypeTrifecta:
		if len(top) >= 3 &&
			top[0].HorseID == bet.HorseIDs[0] &&
			top[1].HorseID == bet.HorseIDs[1] &&
			top[2].HorseID == bet.HorseIDs[2] {
			return true, oddsOf(bet.HorseIDs[0]) * oddsOf(bet.HorseIDs[1]) * oddsOf(bet.HorseIDs[2]) * trifectaFactor
		}
	}
	return false, 0
}

// Settle evaluates every pending bet of the finished cycle against the
// ranking and pays winners. Idempotent per cycle: a settled cycle is
// skipped outright, and within a partially failed run each bet flips out
// of pending as soon as it is resolved, so a retry never double-pays.
// Callers hold t.mu.
func (t *Table) settle(ctx context.Context) error {
	if t.result == nil {
		return fmt.Errorf("no race result for cycle %d", t.cycleID)
	}
	if t.settled[t.cycleID] {
		return nil
	}

	started := t.clock.Now()
	horsesByID := make(map[int]*models.Horse, len(t.horses))
	for _, h := range t.horses {
		horsesByID[h.ID] = h
	}

	type userWinnings struct {
		bets  []models.Bet
		total int64
		bal   int64
	}
	winnersByUser := make(map[string]*userWinnings)
	totalPaid := int64(0)
	winners := 0
	var firstErr error

	for _, bet := range t.bets {
		if bet.Status != models.BetStatusPending {
			continue
		}
		won, mult := evaluate(bet, t.result, horsesByID)
		if !won {
			bet.Status = models.BetStatusLost
			continue
		}

		payout := int64(math.Floor(float64(bet.Amount) * mult))
		newBalance, err := t.wallet.Credit(ctx, bet.UserID, payout)
		if err != nil {
			// Leave the bet pending; the scheduler retries settlement
			// on the next boundary and only this bet is re-evaluated.
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to credit payout: %w", err)
			}
			log.Error().Err(err).
				Str("bet_id", bet.ID.String()).
				Str("user_id", bet.UserID).
				Int64("payout", payout).
				Msg("payout credit failed, will retry")
			continue
		}

		bet.Status = models.BetStatusWon
		bet.Payout = payout
		winners++
		totalPaid += payout

		w := winnersByUser[bet.UserID]
		if w == nil {
			w = &userWinnings{}
			winnersByUser[bet.UserID] = w
		}
		w.bets = append(w.bets, *bet)
		w.total += payout
		w.bal = newBalance
	}

	for userID, w := range winnersByUser {
		t.sendToUser(userID, events.TypeWinnings, events.WinningsPayload{
			WinningBets:   w.bets,
			TotalWinnings: w.total,
			NewBalance:    w.bal,
		})
		t.balanceUpdate(userID, w.bal)
	}

	if firstErr != nil {
		return firstErr
	}

	t.settled[t.cycleID] = true
	t.metrics.SettlementRan(winners, totalPaid, t.clock.Now().Sub(started))
	log.Info().
		Int64("cycle_id", t.cycleID).
		Int("winners", winners).
		Int64("total_paid", totalPaid).
		Msg("cycle settled")
	return nil
}
