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

	httpapi "github.com/orderflow/orderflow/internal/api/http"
	"github.com/orderflow/orderflow/internal/application/checkout"
	"github.com/orderflow/orderflow/internal/config"
	"github.com/orderflow/orderflow/internal/engine"
	"github.com/orderflow/orderflow/internal/gateway"
	"github.com/orderflow/orderflow/internal/infrastructure/sse"
	"github.com/orderflow/orderflow/internal/persist"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	store, err := persist.NewBoltStore(cfg.SnapshotPath)
	if err != nil {
		log.Fatalf("snapshot store error: %v", err)
	}
	defer store.Close()

	// infrastructure
	sseHub := sse.NewHub()
	backend := gateway.NewClient(cfg.BackendBaseURL, &http.Client{Timeout: cfg.ActorTimeout}, logger)

	// services
	policy := engine.Policy{
		TrustNewAccounts: cfg.TrustNewAccounts,
		OTPMaxAttempts:   cfg.OTPMaxAttempts,
		ActorTimeout:     cfg.ActorTimeout,
	}
	checkoutSvc := checkout.NewService(store, backend, sseHub, policy, logger)

	// API server
	apiServer := httpapi.NewServer(checkoutSvc, sseHub)

	// No WriteTimeout: the SSE stream holds its response open.
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
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
	checkoutSvc.Shutdown()
	sseHub.Stop()
}
