package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/corkline/corkboard/internal/client"
	"github.com/corkline/corkboard/internal/config"
	"github.com/corkline/corkboard/internal/engine"
	"github.com/corkline/corkboard/internal/persist"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	_ = godotenv.Load()
	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateEngine(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	api := client.New(cfg.Engine.APIBaseURL, cfg.Engine.APIToken, nil)

	eng := engine.New(api, store, engine.Options{
		Scope:    cfg.Engine.Scope,
		Debounce: cfg.Engine.Debounce,
		OnCooldown: func(msg string) {
			log.Warn().Str("reason", msg).Msg("server requested a write cooldown")
		},
	})
	if err := eng.Load(ctx); err != nil {
		return err
	}

	loop := engine.NewSyncLoop(eng, engine.SyncConfig{
		MinDelay:    cfg.Engine.SyncMinDelay,
		QuietPeriod: cfg.Engine.QuietPeriod,
	})

	log.Info().
		Str("api", cfg.Engine.APIBaseURL).
		Str("store", cfg.Engine.Store).
		Msg("corkboard engine running")

	loop.Run(ctx)

	// Flush any debounced write before exiting.
	if err := eng.Close(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (persist.BlobStore, error) {
	if cfg.Engine.Store == "redis" {
		return persist.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
	}
	return persist.NewFileStore(cfg.Engine.StateDir)
}

func setupLogging() {
	level := zerolog.InfoLevel
	if raw := os.Getenv("CORKBOARD_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("CORKBOARD_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
