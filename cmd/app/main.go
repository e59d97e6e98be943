// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podcast-subscription-backend/internal/config"
	pg "podcast-subscription-backend/internal/infra/db/postgres"
	"podcast-subscription-backend/internal/infra/iap"
	"podcast-subscription-backend/internal/infra/logging"
	"podcast-subscription-backend/internal/infra/metrics"
	red "podcast-subscription-backend/internal/infra/redis"
	"podcast-subscription-backend/internal/infra/relay"
	"podcast-subscription-backend/internal/infra/sched"
	"podcast-subscription-backend/internal/infra/web"
	"podcast-subscription-backend/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)

	// ---- Vendor gateway ----
	gateway := iap.NewGateway(iap.Credentials{
		AppleBundleID:             cfg.Apple.BundleID,
		AppleKeyID:                cfg.Apple.KeyID,
		AppleKey:                  cfg.Apple.Key,
		AppleSharedSecret:         cfg.Apple.SharedSecret,
		AppleIssuer:               cfg.Apple.Issuer,
		GoogleServiceAccountEmail: cfg.Google.ServiceAccountEmail,
		GoogleKey:                 cfg.Google.Key,
	}, cfg.IAP.Timeout, logger)

	// ---- Use cases ----
	purchaseUC := usecase.NewPurchaseUseCase(userRepo, subRepo, gateway, locker, logger)
	reconcileUC := usecase.NewReconcileUseCase(userRepo, subRepo, gateway, logger)
	forwarder := relay.NewForwarder(cfg.Webhook.SandboxForwardURL, cfg.IAP.Timeout)
	webhookUC := usecase.NewWebhookUseCase(subRepo, forwarder, cfg.Production, logger)

	// ---- Background reconcile worker ----
	if cfg.Cron.Interval > 0 {
		worker := sched.NewReconcileWorker(cfg.Cron.Interval, reconcileUC, logger)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("reconcile worker stopped")
			}
		}()
	}

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret)
	server := web.NewServer(purchaseUC, webhookUC, reconcileUC, auth, cfg.Cron.Secret, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
