package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turfline/derby/go/internal/dbconfig"
	"github.com/turfline/derby/go/internal/wallet"
)

// Wallet mirrors the wallets.json entries.
type Wallet struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

func main() {
	file := flag.String("file", "go/internal/assets/wallets.json", "wallet seed file")
	flag.Parse()

	ctx := context.Background()

	// 1) Load wallets.json
	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var wallets []Wallet
	if err := json.Unmarshal(data, &wallets); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal wallets: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to DB
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Ensure schema
	if _, err := pool.Exec(ctx, wallet.Schema); err != nil {
		fmt.Fprintf(os.Stderr, "ensure schema: %v\n", err)
		os.Exit(1)
	}

	// 4) Seed wallets
	total, inserted, skipped, errs := len(wallets), 0, 0, 0
	for _, w := range wallets {
		tag, err := pool.Exec(ctx, `
            INSERT INTO wallets (user_id, balance)
            VALUES ($1, $2)
            ON CONFLICT (user_id) DO NOTHING
        `, w.UserID, w.Balance)
		if err != nil {
			fmt.Fprintf(os.Stderr, "insert wallet %s: %v\n", w.UserID, err)
			errs++
			continue
		}
		if tag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	fmt.Printf("wallets: total=%d inserted=%d skipped=%d errors=%d\n", total, inserted, skipped, errs)
}
