package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/turfline/derby/go/internal/metrics"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if getEnv("LOG_FORMAT", "console") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	services, err := setupServices(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broadcast fanout and the cycle scheduler run for the life of the
	// process; both stop on ctx cancellation.
	go services.Gateway.Start(ctx)
	go func() {
		if err := services.Table.Run(ctx); err != nil {
			log.Error().Err(err).Msg("race scheduler stopped")
		}
	}()

	var metricsServer *http.Server
	if config.Metrics.Enabled {
		metricsServer = metrics.StartServer(getEnv("METRICS_PORT", config.Metrics.Port), func(ctx context.Context) error {
			if services.Database != nil {
				return services.Database.PingContext(ctx)
			}
			return nil
		})
		metrics.RegisterConnectionsGauge(func() int {
			total, _ := services.Gateway.Stats()
			return total
		})
		log.Info().Str("port", config.Metrics.Port).Msg("metrics server started")
	}

	server := setupServer(services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("race server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Block until shutdown is requested.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
	if services.Relay != nil {
		services.Relay.Close()
	}
	if services.Database != nil {
		if err := services.Database.Close(); err != nil {
			log.Error().Err(err).Msg("database close failed")
		}
	}
	log.Info().Msg("shutdown complete")
}
