package main

import (
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/metrics"
	"github.com/turfline/derby/go/internal/race/gateway"
	"github.com/turfline/derby/go/internal/race/relay"
	"github.com/turfline/derby/go/internal/race/table"
	"github.com/turfline/derby/go/internal/wallet"
)

// Services holds every wired component of the race server.
type Services struct {
	Table    *table.Table
	Gateway  *gateway.ConnectionManager
	Handler  *gateway.WebSocketHandler
	Relay    *relay.Relay
	Database *sql.DB
}

func setupServices(config *Config) (*Services, error) {
	// Wiring chain: wallet store → race table → gateway → optional relay.
	store, database, err := setupWallet(config)
	if err != nil {
		return nil, err
	}

	var collector table.Metrics
	if config.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	raceTable := table.New(config.Table, clockwork.NewRealClock(), store, collector)

	router := gateway.NewRouter(raceTable)
	connManager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), router)
	handler := gateway.NewWebSocketHandler(connManager)

	services := &Services{
		Table:    raceTable,
		Gateway:  connManager,
		Handler:  handler,
		Database: database,
	}

	// The relay wraps the gateway so every broadcast is mirrored to NATS.
	var bcast table.Broadcaster = connManager
	if config.Relay.Enabled {
		r, err := relay.New(config.Relay.Config, connManager)
		if err != nil {
			return nil, fmt.Errorf("failed to set up race relay: %w", err)
		}
		services.Relay = r
		bcast = r
	}
	raceTable.AttachBroadcaster(bcast)

	return services, nil
}

func setupWallet(config *Config) (wallet.Store, *sql.DB, error) {
	switch config.Wallet.Backend {
	case "", "memory":
		log.Info().Int64("starting_balance", config.Wallet.StartingBalance).Msg("using in-memory wallet store")
		return wallet.NewMemoryStore(config.Wallet.StartingBalance), nil, nil
	case "sqlite":
		store, err := wallet.NewSQLiteStore(config.Wallet.SQLitePath, config.Wallet.StartingBalance)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite wallet store: %w", err)
		}
		log.Info().Str("path", config.Wallet.SQLitePath).Msg("using sqlite wallet store")
		return store, nil, nil
	case "postgres":
		database, err := setupDatabase()
		if err != nil {
			return nil, nil, err
		}
		return wallet.NewPostgresStore(database), database, nil
	default:
		return nil, nil, fmt.Errorf("unknown wallet backend %q", config.Wallet.Backend)
	}
}
