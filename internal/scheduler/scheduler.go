// Package scheduler manages the background goroutines that keep the dice
// pipeline moving:
//  1. sweepLoop        – re-detects missed deposits and settles bets that
//     were waiting on confirmations, every 30 seconds.
//  2. payoutRetryLoop  – re-queues failed payouts still inside their retry
//     budget, every minute.
//  3. confirmationLoop – promotes broadcast payouts the chain has mined,
//     every minute.
//  4. seedLoop         – pre-creates upcoming server seeds and reveals past
//     ones, hourly.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nevzatmmc/dicevault/internal/ingest"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires together the services and runs the background loops. Call
// Start(ctx) once from main(); cancel the context to shut it down gracefully.
type Scheduler struct {
	bets     *service.BetService
	payouts  *service.PayoutService
	seeds    *service.SeedService
	ingester *ingest.Ingester
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	bets *service.BetService,
	payouts *service.PayoutService,
	seeds *service.SeedService,
	ingester *ingest.Ingester,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		bets:     bets,
		payouts:  payouts,
		seeds:    seeds,
		ingester: ingester,
		logger:   logger,
	}
}

// Start launches the background goroutines. It returns immediately; all
// loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	go s.payoutRetryLoop(ctx)
	go s.confirmationLoop(ctx)
	go s.seedLoop(ctx)
	s.logger.Info("scheduler started")
}

// ──────────────────────────────────────────────────────────────────────────────
// sweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// sweepLoop runs every 30 seconds: first a REST backfill over the monitored
// vault addresses to catch deposits the live feed dropped, then a pass over
// unrolled bets whose confirmations may have arrived.
func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.recoverAndLog("sweepLoop")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweepLoop: shutting down")
			return
		case <-ticker.C:
			if n, err := s.ingester.Backfill(ctx); err != nil {
				s.logger.Warn("sweepLoop: backfill failed", "err", err)
			} else if n > 0 {
				s.logger.Info("sweepLoop: backfill queued deposits", "count", n)
			}
			if _, err := s.bets.SweepPending(ctx); err != nil {
				s.logger.Error("sweepLoop: SweepPending", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// payoutRetryLoop
// ──────────────────────────────────────────────────────────────────────────────

// payoutRetryLoop re-queues retryable payouts every minute.
func (s *Scheduler) payoutRetryLoop(ctx context.Context) {
	defer s.recoverAndLog("payoutRetryLoop")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("payoutRetryLoop: shutting down")
			return
		case <-ticker.C:
			if _, err := s.payouts.RetryFailed(ctx); err != nil {
				s.logger.Error("payoutRetryLoop: RetryFailed", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// confirmationLoop
// ──────────────────────────────────────────────────────────────────────────────

// confirmationLoop promotes broadcast payouts to confirmed every minute.
func (s *Scheduler) confirmationLoop(ctx context.Context) {
	defer s.recoverAndLog("confirmationLoop")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("confirmationLoop: shutting down")
			return
		case <-ticker.C:
			if _, err := s.payouts.CheckConfirmations(ctx); err != nil {
				s.logger.Error("confirmationLoop: CheckConfirmations", "err", err)
			}
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// seedLoop
// ──────────────────────────────────────────────────────────────────────────────

// seedLoop maintains the server seed calendar: the first pass runs at start
// so today's commitment exists before the first bet, then hourly thereafter.
// Reveals run after creation so a seed can never be revealed on its own day.
func (s *Scheduler) seedLoop(ctx context.Context) {
	defer s.recoverAndLog("seedLoop")

	s.runSeedPass(ctx)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("seedLoop: shutting down")
			return
		case <-ticker.C:
			s.runSeedPass(ctx)
		}
	}
}

// runSeedPass is the inner body of seedLoop, extracted so the defer/recover
// in the loop catches panics correctly.
func (s *Scheduler) runSeedPass(ctx context.Context) {
	if err := s.seeds.EnsureWindow(ctx); err != nil {
		s.logger.Error("seedLoop: EnsureWindow", "err", err)
	}
	if err := s.seeds.RevealDue(ctx); err != nil {
		s.logger.Error("seedLoop: RevealDue", "err", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics
// and log them instead of taking the process down.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
