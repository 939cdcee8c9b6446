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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/musicroom/internal/adapters/broadcast"
	router "github.com/dkeye/musicroom/internal/adapters/http"
	wsignal "github.com/dkeye/musicroom/internal/adapters/signal"
	"github.com/dkeye/musicroom/internal/adapters/storage"
	"github.com/dkeye/musicroom/internal/app"
	"github.com/dkeye/musicroom/internal/config"
	"github.com/dkeye/musicroom/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Logger first so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	store, durable, err := storage.Open(ctx, storage.Options{
		Driver:     cfg.Storage.Driver,
		RedisURL:   cfg.Storage.RedisURL,
		SQLitePath: cfg.Storage.SQLitePath,
		RoomTTL:    cfg.Storage.RoomTTL,
		Required:   cfg.Storage.Required,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage required but unavailable")
	}
	defer store.Close()

	mode := app.ModeMemory
	if durable {
		mode = app.ModeDurable
	}

	hub := broadcast.NewHub(broadcast.SimplePolicy{})
	var gateway core.Gateway = hub
	if rs, ok := store.(*storage.Redis); ok {
		rg := broadcast.NewRedisGateway(rs.Client(), cfg.Broadcast.Channel, hub)
		if err := rg.Run(ctx); err != nil {
			log.Warn().Err(err).Msg("redis fan-out unavailable, broadcasting locally")
		} else {
			gateway = rg
		}
	}

	rooms := app.NewCoordinator(store, gateway, mode)
	ws := wsignal.NewSignalWSController(rooms, hub, gateway, wsignal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		SendBuffer:   cfg.Signal.SendBuffer,
		RateLimit:    cfg.Signal.RateLimit,
		RateInterval: cfg.Signal.RateInterval,
	})

	r := router.SetupRouter(ctx, cfg, rooms, gateway, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rooms.Run(gctx, cfg.Rooms.IdleTimeout, cfg.Rooms.JanitorPeriod)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("storage", string(mode)).Msg("MusicRoom server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Server exited gracefully")
}
