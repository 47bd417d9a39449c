// Package main is the entry point for the dicevault back-office admin
// server.  Runs on its own port behind an IP allowlist, a shared API key
// and operator JWT sessions. It shares the database with the API server
// but runs none of the deposit pipeline; the manual trigger endpoints
// exist for exactly that reason.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevzatmmc/dicevault/internal/backoffice"
	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/explorer"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
	"github.com/nevzatmmc/dicevault/internal/repository"
	"github.com/nevzatmmc/dicevault/internal/service"
)

func main() {
	// ── Config + logger ───────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting dicevault backoffice server",
		"env", cfg.Server.Env, "network", cfg.Explorer.Network, "port", cfg.Server.BackofficePort)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Database ──────────────────────────────────────────────────────────────
	client, db, err := repository.Connect(ctx, &cfg.Mongo)
	if err != nil {
		logger.Error("mongodb connection failed", "err", err)
		os.Exit(1)
	}
	logger.Info("mongodb connected", "database", cfg.Mongo.Database)

	// ── Key vault + explorer ──────────────────────────────────────────────────
	kv, err := keyvault.New(cfg.Vault.MasterKey)
	if err != nil {
		logger.Error("key vault init failed", "err", err)
		os.Exit(1)
	}
	chain := explorer.NewClient(&cfg.Explorer)
	if err = chain.VerifyNetwork(ctx); err != nil {
		logger.Error("explorer network check failed", "err", err)
		os.Exit(1)
	}

	// ── Repositories ──────────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	betRepo := repository.NewBetRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	seedRepo := repository.NewServerSeedRepository(db)
	userSeedRepo := repository.NewUserSeedRepository(db)

	// ── Services ──────────────────────────────────────────────────────────────
	seedSvc := service.NewSeedService(seedRepo, userSeedRepo, cfg)
	payoutSvc := service.NewPayoutService(payoutRepo, betRepo, walletRepo, txRepo, kv, chain, cfg)
	walletSvc := service.NewWalletService(walletRepo, kv, chain, cfg)
	betSvc := service.NewBetService(betRepo, userRepo, walletRepo, txRepo, counterRepo,
		seedSvc, payoutSvc, chain, cfg)
	authSvc := service.NewAuthService(cfg)

	// Manual triggers (retry sweeps, tx reprocessing) enqueue payout jobs
	// into this process, so it needs its own worker pool.
	payoutSvc.Start(ctx)

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:    authSvc,
		WalletSvc:  walletSvc,
		SeedSvc:    seedSvc,
		BetSvc:     betSvc,
		PayoutSvc:  payoutSvc,
		UserRepo:   userRepo,
		BetRepo:    betRepo,
		WalletRepo: walletRepo,
		PayoutRepo: payoutRepo,
		SeedRepo:   seedRepo,
		Hub:        nil, // backoffice does not serve WS
		Cfg:        cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}

	payoutSvc.Wait()

	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDisconnect()
	if err = client.Disconnect(disconnectCtx); err != nil {
		logger.Error("mongodb disconnect error", "err", err)
	}
	logger.Info("backoffice server stopped cleanly")
}
