// Package main is the entry point for the dicevault API server.  It wires
// the deposit pipeline (explorer websocket + REST backfill), the bet and
// payout services, the WebSocket hub and the background scheduler, then
// serves the public HTTP API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nevzatmmc/dicevault/internal/api"
	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/explorer"
	"github.com/nevzatmmc/dicevault/internal/ingest"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
	"github.com/nevzatmmc/dicevault/internal/repository"
	"github.com/nevzatmmc/dicevault/internal/scheduler"
	"github.com/nevzatmmc/dicevault/internal/service"
	"github.com/nevzatmmc/dicevault/internal/ws"
)

func main() {
	// ── 1. Config + logger ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting dicevault server",
		"env", cfg.Server.Env, "network", cfg.Explorer.Network, "port", cfg.Server.Port)

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. MongoDB ────────────────────────────────────────────────────────────
	client, db, err := repository.Connect(ctx, &cfg.Mongo)
	if err != nil {
		logger.Error("mongodb connection failed", "err", err)
		os.Exit(1)
	}
	logger.Info("mongodb connected", "database", cfg.Mongo.Database)

	if err = repository.EnsureIndexes(ctx, db); err != nil {
		logger.Error("index creation failed", "err", err)
		os.Exit(1)
	}
	logger.Info("indexes ensured")

	// ── 4. Key vault ──────────────────────────────────────────────────────────
	kv, err := keyvault.New(cfg.Vault.MasterKey)
	if err != nil {
		logger.Error("key vault init failed", "err", err)
		os.Exit(1)
	}

	// ── 5. Explorer client ────────────────────────────────────────────────────
	chain := explorer.NewClient(&cfg.Explorer)
	if err = chain.VerifyNetwork(ctx); err != nil {
		logger.Error("explorer network check failed", "err", err)
		os.Exit(1)
	}
	logger.Info("explorer verified", "network", cfg.Explorer.Network, "api", cfg.Explorer.MempoolAPI)

	// ── 6. Repositories ───────────────────────────────────────────────────────
	userRepo := repository.NewUserRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	betRepo := repository.NewBetRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	seedRepo := repository.NewServerSeedRepository(db)
	userSeedRepo := repository.NewUserSeedRepository(db)

	// ── 7. Services (order matters for injection) ─────────────────────────────
	seedSvc := service.NewSeedService(seedRepo, userSeedRepo, cfg)

	payoutSvc := service.NewPayoutService(payoutRepo, betRepo, walletRepo, txRepo, kv, chain, cfg)

	walletSvc := service.NewWalletService(walletRepo, kv, chain, cfg)

	betSvc := service.NewBetService(betRepo, userRepo, walletRepo, txRepo, counterRepo,
		seedSvc, payoutSvc, chain, cfg)

	statsSvc := service.NewStatsService(userRepo, betRepo, walletSvc, cfg)

	// ── 8. WebSocket hub ──────────────────────────────────────────────────────
	var allowedOrigins []string
	if cfg.IsProd() {
		allowedOrigins = []string{"https://dicevault.bet", "https://www.dicevault.bet"}
	}
	hub := ws.NewHub(allowedOrigins)
	go hub.Run(ctx)

	betSvc.SetBroadcaster(hub)
	payoutSvc.SetBroadcaster(hub)
	seedSvc.SetBroadcaster(hub)
	logger.Info("websocket hub started")

	// ── 9. Deposit pipeline ───────────────────────────────────────────────────
	// The ingester dedupes frames from both feeds; the listener keeps the
	// explorer websocket alive and replays tracked addresses on reconnect.
	ingester := ingest.NewIngester(chain, logger)
	listener := explorer.NewListener(cfg.Explorer.MempoolWS, &cfg.WS,
		ingester.Monitored, ingester.HandleFrame, logger)
	ingester.SetTracker(listener.Track)
	walletSvc.SetTracker(ingester)

	vaults, err := walletRepo.ListActive(ctx)
	if err != nil {
		logger.Error("loading vault wallets failed", "err", err)
		os.Exit(1)
	}
	addrs := make([]string, 0, len(vaults))
	for _, v := range vaults {
		addrs = append(addrs, v.Address)
	}
	ingester.Track(addrs...)
	logger.Info("tracking vault addresses", "count", len(addrs))

	go listener.Run(ctx)
	go betSvc.Run(ctx, ingester.Events())

	// ── 10. Payout workers ────────────────────────────────────────────────────
	payoutSvc.Start(ctx)

	// ── 11. Scheduler ─────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(betSvc, payoutSvc, seedSvc, ingester, logger)
	sched.Start(ctx)

	// ── 12. HTTP router ───────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		BetSvc:   betSvc,
		StatsSvc: statsSvc,
		SeedSvc:  seedSvc,
		Hub:      hub,
		Cfg:      cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 13. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 14. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}

	// Payout workers finish their in-flight signatures before the DB goes away.
	payoutSvc.Wait()

	disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDisconnect()
	if err = client.Disconnect(disconnectCtx); err != nil {
		logger.Error("mongodb disconnect error", "err", err)
	}

	logger.Info("server stopped cleanly")
}
