package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/access-broker/access-broker/internal/api/http"
	"github.com/access-broker/access-broker/internal/application/access"
	"github.com/access-broker/access-broker/internal/application/auth"
	"github.com/access-broker/access-broker/internal/application/event"
	"github.com/access-broker/access-broker/internal/config"
	"github.com/access-broker/access-broker/internal/domain/escrow"
	domainEvent "github.com/access-broker/access-broker/internal/domain/event"
	"github.com/access-broker/access-broker/internal/domain/party"
	"github.com/access-broker/access-broker/internal/domain/request"
	"github.com/access-broker/access-broker/internal/infrastructure/escrowhttp"
	"github.com/access-broker/access-broker/internal/infrastructure/memory"
	"github.com/access-broker/access-broker/internal/infrastructure/postgres"
	"github.com/access-broker/access-broker/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()

	// repositories
	var (
		requestRepo request.Repository
		eventRepo   domainEvent.Repository
		partyRepo   party.Repository
	)
	switch cfg.Store {
	case config.StoreMemory:
		requests := memory.NewRequestRepository()
		requestRepo = requests
		eventRepo = memory.NewEventRepository(requests)
		partyRepo = memory.NewPartyRepository()
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db error: %v", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			log.Fatalf("migration error: %v", err)
		}
		requestRepo = postgres.NewRequestRepository(pool)
		eventRepo = postgres.NewEventRepository(pool)
		partyRepo = postgres.NewPartyRepository(pool)
	}

	// infrastructure
	sseHub := sse.NewHub()
	var escrowClient escrow.Collaborator = escrowhttp.New(cfg.EscrowBaseURL, cfg.EscrowAPIKey, cfg.EscrowTimeout)

	// services
	eventSvc := event.NewService(eventRepo, sseHub, logger)
	accessSvc := access.NewService(requestRepo, escrowClient, eventSvc, logger)
	authSvc := auth.NewService(partyRepo, cfg.AuthCacheTTL, logger)

	// API server
	apiServer := httpapi.NewServer(accessSvc, authSvc, sseHub)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("store", string(cfg.Store)).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	sseHub.Stop()
}
