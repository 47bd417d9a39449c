package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/fair"
	"github.com/nevzatmmc/dicevault/internal/repository"
)

// SeedBroadcaster is the minimal interface SeedService needs from the WS hub.
// Implemented by ws.Hub.
type SeedBroadcaster interface {
	BroadcastSeedHash(update domain.SeedHashUpdate)
}

// upcomingSeedDays is how far ahead of today seeds are pre-created and shown
// on the fairness page.
const upcomingSeedDays = 3

// ──────────────────────────────────────────────────────────────────────────────
// SeedService
// ──────────────────────────────────────────────────────────────────────────────

// SeedService owns the provably-fair seed lifecycle: one server seed per UTC
// date whose hash is public immediately and whose value is revealed only once
// the date has ended, plus the per-user client seed and nonce records.
type SeedService struct {
	seeds       *repository.ServerSeedRepository
	userSeeds   *repository.UserSeedRepository
	cfg         *config.Config
	broadcaster SeedBroadcaster // injected after WS Hub is built
}

// NewSeedService creates a SeedService.
func NewSeedService(
	seeds *repository.ServerSeedRepository,
	userSeeds *repository.UserSeedRepository,
	cfg *config.Config,
) *SeedService {
	return &SeedService{
		seeds:     seeds,
		userSeeds: userSeeds,
		cfg:       cfg,
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *SeedService) SetBroadcaster(b SeedBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Daily rotation
// ──────────────────────────────────────────────────────────────────────────────

// GetOrCreateToday returns today's server seed, creating it on first use.
// Concurrent creators race on the unique seed_date index; the loser re-reads
// the winner, so every caller sees the same seed for the date.
func (s *SeedService) GetOrCreateToday(ctx context.Context) (*domain.ServerSeed, error) {
	return s.getOrCreate(ctx, domain.SeedDateKey(time.Now()))
}

func (s *SeedService) getOrCreate(ctx context.Context, date string) (*domain.ServerSeed, error) {
	seed, err := s.seeds.GetByDate(ctx, date)
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, domain.ErrSeedNotFound) {
		return nil, fmt.Errorf("service.getOrCreate: %w", err)
	}

	value, hash, err := fair.NewServerSeed()
	if err != nil {
		return nil, fmt.Errorf("service.getOrCreate: %w", err)
	}
	seed = &domain.ServerSeed{
		SeedDate:       date,
		ServerSeed:     value,
		ServerSeedHash: hash,
		CreatedAt:      time.Now().UTC(),
	}
	err = s.seeds.Insert(ctx, seed)
	if errors.Is(err, domain.ErrSeedExists) {
		// Lost the creation race; the winner's seed is authoritative.
		return s.seeds.GetByDate(ctx, date)
	}
	if err != nil {
		return nil, fmt.Errorf("service.getOrCreate: %w", err)
	}

	log.Printf("[seeds] created seed for %s hash=%s", date, hash)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSeedHash(domain.SeedHashUpdate{
			SeedDate:       date,
			ServerSeedHash: hash,
		})
	}
	return seed, nil
}

// EnsureWindow pre-creates seeds for today through upcomingSeedDays ahead so
// the fairness page always shows upcoming commitments. Called by the
// scheduler; a single failing date does not abort the others.
func (s *SeedService) EnsureWindow(ctx context.Context) error {
	now := time.Now().UTC()
	var firstErr error
	for i := 0; i <= upcomingSeedDays; i++ {
		date := domain.SeedDateKey(now.AddDate(0, 0, i))
		if _, err := s.getOrCreate(ctx, date); err != nil {
			log.Printf("[seeds] ERROR ensuring seed for %s: %v", date, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RevealDue publishes every seed whose date has ended. Reveal is a flag flip;
// the fairness view starts disclosing the value the moment the date is past,
// and revealed_at records when the sweep noticed.
func (s *SeedService) RevealDue(ctx context.Context) error {
	today := domain.SeedDateKey(time.Now())
	due, err := s.seeds.ListUnrevealedBefore(ctx, today)
	if err != nil {
		return fmt.Errorf("service.RevealDue: %w", err)
	}
	now := time.Now().UTC()
	for _, seed := range due {
		if err := s.seeds.MarkRevealed(ctx, seed.SeedDate, now); err != nil {
			log.Printf("[seeds] ERROR revealing seed %s: %v", seed.SeedDate, err)
			continue
		}
		log.Printf("[seeds] revealed seed for %s (%d bets)", seed.SeedDate, seed.BetCount)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Public fairness view
// ──────────────────────────────────────────────────────────────────────────────

// PublicView returns the seed calendar: hashes for every day in the window,
// values only for days already ended.
func (s *SeedService) PublicView(ctx context.Context) (*domain.FairnessView, error) {
	now := time.Now().UTC()
	from := domain.SeedDateKey(now.AddDate(0, 0, -s.cfg.Game.SeedPublicWindowDays))
	to := domain.SeedDateKey(now.AddDate(0, 0, upcomingSeedDays))

	seeds, err := s.seeds.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("service.PublicView: %w", err)
	}

	view := &domain.FairnessView{
		Seeds:          make([]domain.SeedPublicView, 0, len(seeds)),
		Today:          domain.SeedDateKey(now),
		ThreeDaysLater: to,
	}
	for _, seed := range seeds {
		view.Seeds = append(view.Seeds, seed.ToPublicView(now))
	}
	return view, nil
}

// SeedForDate returns the seed governing a past or present date. The roll
// verifier uses it to decide whether the raw seed may be disclosed.
func (s *SeedService) SeedForDate(ctx context.Context, date string) (*domain.ServerSeed, error) {
	return s.seeds.GetByDate(ctx, date)
}

// ──────────────────────────────────────────────────────────────────────────────
// Admin operations
// ──────────────────────────────────────────────────────────────────────────────

// AdminCreate pre-creates a seed for a future date. Dates that have started
// are immutable: today's seed governs live bets and past seeds are the audit
// trail.
func (s *SeedService) AdminCreate(ctx context.Context, date string) (*domain.ServerSeed, error) {
	if err := validateSeedDate(date); err != nil {
		return nil, err
	}
	if date <= domain.SeedDateKey(time.Now()) {
		return nil, domain.ErrSeedImmutable
	}
	return s.getOrCreate(ctx, date)
}

// AdminDelete removes a future seed so the next creation draws fresh entropy.
func (s *SeedService) AdminDelete(ctx context.Context, date string) error {
	if err := validateSeedDate(date); err != nil {
		return err
	}
	if date <= domain.SeedDateKey(time.Now()) {
		return domain.ErrSeedImmutable
	}
	if err := s.seeds.DeleteByDate(ctx, date); err != nil {
		return fmt.Errorf("service.AdminDelete: %w", err)
	}
	log.Printf("[seeds] deleted future seed %s", date)
	return nil
}

func validateSeedDate(date string) error {
	if _, err := time.Parse(domain.SeedDateFormat, date); err != nil {
		return fmt.Errorf("service.validateSeedDate: invalid seed date %q: %w", date, err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// User seeds
// ──────────────────────────────────────────────────────────────────────────────

// ActiveUserSeed returns the user's active client seed, creating one with
// client_seed = the user's address and nonce 0 on first bet.
func (s *SeedService) ActiveUserSeed(ctx context.Context, userID primitive.ObjectID, address string) (*domain.UserSeed, error) {
	seed, err := s.userSeeds.GetOrCreateActive(ctx, userID, address)
	if err != nil {
		return nil, fmt.Errorf("service.ActiveUserSeed: %w", err)
	}
	return seed, nil
}

// nonceClaimAttempts bounds the claim loop. A bet that loses this many races
// in a row stays unrolled and is re-driven by the pending sweep.
const nonceClaimAttempts = 5

// ClaimNonce consumes exactly one nonce value for a roll. The conditional
// update serializes concurrent rolls for the same user on the seed document:
// a loser re-reads and claims the next value, so no two settled rolls ever
// share a nonce. Returns the value the roll must use.
func (s *SeedService) ClaimNonce(ctx context.Context, userID primitive.ObjectID, clientSeed string) (int64, error) {
	for i := 0; i < nonceClaimAttempts; i++ {
		seed, err := s.userSeeds.GetOrCreateActive(ctx, userID, clientSeed)
		if err != nil {
			return 0, fmt.Errorf("service.ClaimNonce: %w", err)
		}
		err = s.userSeeds.BumpNonce(ctx, seed.ID, seed.Nonce)
		switch {
		case err == nil:
			return seed.Nonce, nil
		case errors.Is(err, domain.ErrNonceConflict):
			continue
		default:
			return 0, fmt.Errorf("service.ClaimNonce: %w", err)
		}
	}
	return 0, fmt.Errorf("service.ClaimNonce: %w", domain.ErrNonceConflict)
}

// RecordBetRolled bumps the per-date roll counter shown on the fairness page.
func (s *SeedService) RecordBetRolled(ctx context.Context, seedDate string) {
	if err := s.seeds.IncrementBetCount(ctx, seedDate); err != nil {
		log.Printf("[seeds] WARN: bet count for %s not incremented: %v", seedDate, err)
	}
}
