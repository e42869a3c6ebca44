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

	router "github.com/drossen/confer/internal/adapters/http"
	"github.com/drossen/confer/internal/app"
	"github.com/drossen/confer/internal/config"
	"github.com/drossen/confer/internal/core"
	"github.com/drossen/confer/internal/domain"
	"github.com/drossen/confer/internal/media/pion"
	"github.com/drossen/confer/internal/notify"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("CONFIG_ENV") == "dev" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	engine, err := pion.NewEngine(pion.Config{
		MinPort:     cfg.RtcMinPort,
		MaxPort:     cfg.RtcMaxPort,
		AnnouncedIP: cfg.AnnouncedIP,
		STUNServers: cfg.STUNServers,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media engine")
	}

	store := core.NewStore()
	notifier := notify.NewRouter()
	session := app.NewSession(store, engine, notifier, nil, cfg.EngineTimeout)

	r := router.SetupRouter(ctx, cfg, session, notifier)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Confer server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case <-engine.Done():
		log.Error().Err(domain.ErrEngineFatal).Msg("media engine died, shutting down")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	store.Close()
	engine.Close()
	log.Info().Msg("Server exited gracefully")
	os.Exit(exitCode)
}
