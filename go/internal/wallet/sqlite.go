package wallet

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore backs wallets with an embedded SQLite database, for
// single-node installs that want balances to survive a restart without
// running Postgres. SQLite serializes writers, which gives the atomic
// read-modify-write the table requires.
type SQLiteStore struct {
	db              *sql.DB
	startingBalance int64
}

// NewSQLiteStore opens (and bootstraps) a SQLite wallet database. Use
// ":memory:" for tests.
func NewSQLiteStore(path string, startingBalance int64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// A single connection keeps all transactions on one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT PRIMARY KEY,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
		);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create wallets table: %w", err)
	}
	return &SQLiteStore{db: db, startingBalance: startingBalance}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) ensure(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	var bal int64
	err := tx.QueryRowContext(ctx, `SELECT balance FROM wallets WHERE user_id = ?`, userID).Scan(&bal)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wallets (user_id, balance) VALUES (?, ?)`, userID, s.startingBalance); err != nil {
			return 0, fmt.Errorf("failed to create wallet: %w", err)
		}
		return s.startingBalance, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read wallet: %w", err)
	}
	return bal, nil
}

// Balance returns the user's balance, creating the wallet if needed.
func (s *SQLiteStore) Balance(ctx context.Context, userID string) (int64, error) {
	var out int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		bal, err := s.ensure(ctx, tx, userID)
		out = bal
		return err
	})
	return out, err
}

// Debit withdraws amount inside one transaction.
func (s *SQLiteStore) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	return s.apply(ctx, userID, -amount)
}

// Credit deposits amount inside one transaction.
func (s *SQLiteStore) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return s.apply(ctx, userID, amount)
}

func (s *SQLiteStore) apply(ctx context.Context, userID string, delta int64) (int64, error) {
	var out int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		bal, err := s.ensure(ctx, tx, userID)
		if err != nil {
			return err
		}
		next := bal + delta
		if next < 0 {
			out = bal
			return ErrInsufficientFunds
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE wallets SET balance = ? WHERE user_id = ?`, next, userID); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		out = next
		return nil
	})
	return out, err
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
