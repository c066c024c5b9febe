package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// PostgresStore backs wallets with Postgres. Debits and credits take a row
// lock on the wallet (SELECT ... FOR UPDATE) so concurrent operations on
// one user serialize, and every movement is appended to wallet_ledger.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL the store expects. Applied at startup and by the seed tool.
const Schema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id  TEXT PRIMARY KEY,
    balance  BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS wallet_ledger (
    id         UUID PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES wallets(user_id),
    operation  TEXT NOT NULL,
    amount     BIGINT NOT NULL,
    metadata   JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Balance returns the user's balance.
func (s *PostgresStore) Balance(ctx context.Context, userID string) (int64, error) {
	var bal int64
	err := s.db.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return bal, nil
}

// Debit withdraws amount under a row lock.
func (s *PostgresStore) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return s.apply(ctx, userID, "DEBIT", -amount)
}

// Credit deposits amount under a row lock.
func (s *PostgresStore) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return s.apply(ctx, userID, "CREDIT", amount)
}

func (s *PostgresStore) apply(ctx context.Context, userID, op string, delta int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin wallet tx: %w", err)
	}
	defer tx.Rollback()

	var bal int64
	err = tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = $1 FOR UPDATE`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock wallet row: %w", err)
	}

	next := bal + delta
	if next < 0 {
		return bal, ErrInsufficientFunds
	}

	if _, err := tx.ExecContext(ctx, `UPDATE wallets SET balance = $1 WHERE user_id = $2`, next, userID); err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	meta, _ := json.Marshal(map[string]any{"at": time.Now().UnixMilli()})
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_ledger (id, user_id, operation, amount, metadata) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), userID, op, delta, pqtype.NullRawMessage{RawMessage: meta, Valid: len(meta) > 0},
	); err != nil {
		return 0, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit wallet tx: %w", err)
	}
	return next, nil
}
