package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/adapters"
	"github.com/SnProjects/snooze/internal/app"
	"github.com/SnProjects/snooze/internal/auth"
	"github.com/SnProjects/snooze/internal/config"
	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/store"
)

// gatewayStore is the full persistence surface the realtime gateway needs.
type gatewayStore interface {
	store.MembershipStore
	store.DocumentStore
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var st gatewayStore
	if cfg.Redis.Addr != "" {
		rs, err := store.NewRedis(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rs.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis connection established")
		st = rs
	} else {
		log.Warn().Msg("no redis configured, running on the in-memory store")
		st = store.NewMemory()
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	rooms := core.NewRegistry()
	sessions := app.NewSessionRegistry()
	presence := app.NewPresence(verifier, st, rooms, sessions)
	relay := app.NewRelay(rooms)
	board := app.NewWhiteboard(st, st, cfg.SweepInterval)

	go board.Run(ctx)

	voiceCtl := adapters.NewVoiceController(presence, relay, cfg)
	boardCtl := adapters.NewWhiteboardController(verifier, board, cfg)
	router := adapters.SetupRouter(cfg, rooms, voiceCtl, boardCtl)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("realtime gateway started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
