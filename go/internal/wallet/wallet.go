package wallet

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds is returned by Debit when the balance cannot
	// cover the amount. No state changes in that case.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound is returned when the user has no wallet.
	ErrNotFound = errors.New("wallet not found")
)

// Store is the balance store the race table settles against. Debit and
// Credit must be atomic per user: concurrent debits against one balance
// serialize, so a user cannot overspend from two connections at once.
// All amounts are integer credits; both calls return the new balance.
type Store interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
}
