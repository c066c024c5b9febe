package wallet

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps balances in process memory. This is the reference
// behavior: balances reset when the process restarts. Unknown users are
// created lazily with the configured starting balance.
type MemoryStore struct {
	mu              sync.Mutex
	balances        map[string]int64
	startingBalance int64
}

// NewMemoryStore creates an in-memory wallet store.
func NewMemoryStore(startingBalance int64) *MemoryStore {
	return &MemoryStore{
		balances:        make(map[string]int64),
		startingBalance: startingBalance,
	}
}

func (s *MemoryStore) get(userID string) int64 {
	if bal, ok := s.balances[userID]; ok {
		return bal
	}
	s.balances[userID] = s.startingBalance
	return s.startingBalance
}

// Balance returns the user's balance, creating the wallet if needed.
func (s *MemoryStore) Balance(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(userID), nil
}

// Debit atomically withdraws amount; the check and the write happen under
// one lock so concurrent debits cannot overspend.
func (s *MemoryStore) Debit(_ context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.get(userID)
	if bal < amount {
		return bal, ErrInsufficientFunds
	}
	s.balances[userID] = bal - amount
	return bal - amount, nil
}

// Credit atomically deposits amount.
func (s *MemoryStore) Credit(_ context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.get(userID) + amount
	s.balances[userID] = bal
	return bal, nil
}
