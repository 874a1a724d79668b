package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/sideline/go/internal/config"
	"github.com/mcdev12/sideline/go/internal/match"
	"github.com/mcdev12/sideline/go/internal/match/gateway"
	"github.com/mcdev12/sideline/go/internal/match/persistence"
	"github.com/mcdev12/sideline/go/internal/match/remote"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(getEnv("SIDELINE_CONFIG", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, closeKV, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open store")
	}
	defer closeKV()

	clock := clockwork.NewRealClock()
	repo := persistence.NewRepository(kv)
	saver := persistence.NewSaver(repo, clock, persistence.DefaultSaveDelay)
	app := match.NewApp(ctx, repo, saver, clock)

	matchID := resolveMatchID(ctx, cfg, repo)

	if cfg.NATS.URL != "" {
		store, err := remote.NewNATSStore(ctx, remote.NATSConfig{
			URL:           cfg.NATS.URL,
			Bucket:        cfg.NATS.Bucket,
			History:       remote.DefaultNATSConfig().History,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		})
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NATS.URL).Msg("failed to connect to NATS")
		}
		defer store.Close()

		uid := cfg.User.ID
		if uid == "" {
			if uid, err = repo.DeviceID(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to load device id")
			}
		}

		engine := remote.NewEngine(store,
			remote.Identity{UID: uid, Anonymous: cfg.User.Anonymous},
			app.ApplyRemote,
			remote.WithClock(clock),
			remote.WithConfig(remote.Config{
				MaxRetries:      cfg.Sync.MaxRetries,
				RetryDelay:      cfg.Sync.RetryDelay,
				UseTransactions: cfg.Sync.UseTransactions,
				PushDelay:       cfg.Sync.PushDelay,
			}),
		)
		app.SetEngine(engine)

		if err := app.Connect(ctx, matchID); err != nil {
			// Mutations keep working against the local copy.
			log.Error().Err(err).Str("match_id", matchID).Msg("sync unavailable")
		}
	} else {
		log.Info().Msg("NATS_URL not set, running local only")
	}

	log.Info().
		Str("match_id", matchID).
		Str("store", cfg.Store.Driver).
		Str("sync", app.SyncStatus().Describe()).
		Str("port", cfg.Gateway.Port).
		Msg("starting sideline")

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.MatchID = matchID
	gatewayConfig.Clock = clock
	gatewayService := gateway.NewService(gatewayConfig, app)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Gateway.Port),
		Handler:      gatewayService.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		if err := app.RunTicker(ctx, cfg.Sync.TickInterval); err != nil {
			log.Error().Err(err).Msg("match ticker failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gateway.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	app.Close(shutdownCtx)

	log.Info().Msg("sideline shutdown complete")
}

// openStore opens the configured snapshot store and returns its closer.
func openStore(ctx context.Context, cfg config.Config) (persistence.KV, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		kv, err := persistence.OpenPostgres(ctx, cfg.Database.DSN(), cfg.Store.MaxValueBytes)
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	default:
		kv, err := persistence.OpenSQLite(cfg.Store.Path, cfg.Store.MaxValueBytes)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := kv.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close sqlite store")
			}
		}, nil
	}
}

// resolveMatchID prefers the configured match and falls back to the one
// remembered from the last run.
func resolveMatchID(ctx context.Context, cfg config.Config, repo *persistence.Repository) string {
	if cfg.MatchID != "" {
		return cfg.MatchID
	}
	if stored := repo.LoadRemoteConfig(ctx); stored != nil {
		return stored.Game
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
