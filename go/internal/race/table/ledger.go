package table

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/models"
	"github.com/turfline/derby/go/internal/wallet"
)

// betKey canonicalizes a selection for the duplicate-bet guard. Unordered
// types compare as a set, ordered types as the exact sequence.
func betKey(userID string, betType models.BetType, horseIDs []int) string {
	ids := make([]int, len(horseIDs))
	copy(ids, horseIDs)
	if !betType.Ordered() {
		sort.Ints(ids)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return userID + "|" + string(betType) + "|" + strings.Join(parts, ",")
}

// validateSelection checks cardinality, distinctness and roster membership.
// Callers hold t.mu.
func (t *Table) validateSelection(betType models.BetType, horseIDs []int) error {
	if !betType.Valid() {
		return ErrUnknownBet
	}
	if len(horseIDs) != betType.SelectionCount() {
		return ErrBadSelection
	}
	seen := make(map[int]bool, len(horseIDs))
	for _, id := range horseIDs {
		if seen[id] {
			return ErrBadSelection
		}
		seen[id] = true
		found := false
		for _, h := range t.horses {
			if h.ID == id {
				found = true
				break
			}
		}
		if !found {
			return ErrUnknownHorse
		}
	}
	return nil
}

// PlaceBet validates and records a wager. The phase gate is checked against
// the clock at the moment of the call; a request that was in flight when
// the window closed is rejected, not queued. Validation happens before the
// wallet debit so a rejection never moves money, and the ledger entry is
// only appended once the debit succeeded.
func (t *Table) PlaceBet(ctx context.Context, userID string, betType models.BetType, horseIDs []int, amount int64) (*models.Bet, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.ensureCycle(now)

	if t.cfg.Cycle.PhaseAt(now) != models.PhaseBetting {
		t.metrics.BetRejected("wrong_phase")
		return nil, 0, ErrWrongPhase
	}
	if amount <= 0 {
		t.metrics.BetRejected("bad_amount")
		return nil, 0, ErrBadAmount
	}
	if err := t.validateSelection(betType, horseIDs); err != nil {
		t.metrics.BetRejected("bad_selection")
		return nil, 0, err
	}
	key := betKey(userID, betType, horseIDs)
	if _, dup := t.betKeys[key]; dup {
		t.metrics.BetRejected("duplicate")
		return nil, 0, ErrDuplicateBet
	}

	newBalance, err := t.wallet.Debit(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			t.metrics.BetRejected("insufficient_funds")
			return nil, newBalance, err
		}
		t.metrics.BetRejected("wallet_error")
		return nil, 0, fmt.Errorf("failed to debit wallet: %w", err)
	}

	bet := &models.Bet{
		ID:       uuid.New(),
		UserID:   userID,
		CycleID:  t.cycleID,
		Type:     betType,
		HorseIDs: append([]int(nil), horseIDs...),
		Amount:   amount,
		PlacedAt: now,
		Status:   models.BetStatusPending,
	}
	t.bets[bet.ID] = bet
	t.betKeys[key] = bet.ID
	t.metrics.BetPlaced(string(betType), amount)

	log.Info().
		Str("bet_id", bet.ID.String()).
		Str("user_id", userID).
		Str("bet_type", string(betType)).
		Ints("horse_ids", horseIDs).
		Int64("amount", amount).
		Int64("cycle_id", t.cycleID).
		Msg("bet placed")

	t.balanceUpdate(userID, newBalance)
	return bet, newBalance, nil
}

// CancelBet refunds and removes a pending bet. Only allowed while the
// betting window is still open; the authoritative check is the phase now,
// so a cancel racing the phase boundary loses.
func (t *Table) CancelBet(ctx context.Context, userID string, betID uuid.UUID) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.ensureCycle(now)

	if t.cfg.Cycle.PhaseAt(now) != models.PhaseBetting {
		return 0, ErrCancelClosed
	}
	bet, ok := t.bets[betID]
	if !ok {
		return 0, ErrBetNotFound
	}
	if bet.UserID != userID {
		return 0, ErrNotYourBet
	}

	newBalance, err := t.wallet.Credit(ctx, userID, bet.Amount)
	if err != nil {
		return 0, fmt.Errorf("failed to refund bet: %w", err)
	}

	bet.Status = models.BetStatusCancelled
	delete(t.bets, betID)
	delete(t.betKeys, betKey(bet.UserID, bet.Type, bet.HorseIDs))
	t.metrics.BetCancelled()

	log.Info().
		Str("bet_id", betID.String()).
		Str("user_id", userID).
		Int64("refund", bet.Amount).
		Msg("bet cancelled")

	t.balanceUpdate(userID, newBalance)
	return newBalance, nil
}

// PendingBets returns the user's pending bets this cycle (for UI resync).
func (t *Table) PendingBets(userID string) []models.Bet {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []models.Bet
	for _, b := range t.bets {
		if b.UserID == userID && b.Status == models.BetStatusPending {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out
}
