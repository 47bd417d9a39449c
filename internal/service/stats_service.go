package service

import (
	"context"
	"fmt"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/repository"
)

// StatsService serves the public aggregate and configuration views.
type StatsService struct {
	users   *repository.UserRepository
	bets    *repository.BetRepository
	wallets *WalletService
	cfg     *config.Config
}

// NewStatsService creates a StatsService.
func NewStatsService(users *repository.UserRepository, bets *repository.BetRepository, wallets *WalletService, cfg *config.Config) *StatsService {
	return &StatsService{users: users, bets: bets, wallets: wallets, cfg: cfg}
}

// Stats aggregates lifetime totals across all settled bets.
func (s *StatsService) Stats(ctx context.Context) (*domain.StatsResponse, error) {
	userCount, err := s.users.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Stats: %w", err)
	}
	totals, err := s.bets.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Stats: %w", err)
	}
	resp := &domain.StatsResponse{
		TotalUsers:   userCount,
		TotalBets:    totals.Bets,
		TotalWagered: totals.Wagered,
		TotalWon:     totals.PaidOut,
		HouseEdge:    s.cfg.Game.HouseEdge,
		MinBet:       s.cfg.Game.MinBetSatoshis,
		MaxBet:       s.cfg.Game.MaxBetSatoshis,
	}
	if totals.Bets > 0 {
		resp.WinRate = float64(totals.Wins) / float64(totals.Bets)
	}
	return resp, nil
}

// Config returns the public parameter sheet plus the active vault menu.
func (s *StatsService) Config(ctx context.Context) (*domain.ConfigResponse, error) {
	vaults, err := s.wallets.ListPublic(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Config: %w", err)
	}
	multipliers, err := s.wallets.Multipliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Config: %w", err)
	}
	return &domain.ConfigResponse{
		Network:       s.cfg.Explorer.Network,
		HouseEdge:     s.cfg.Game.HouseEdge,
		MinBet:        s.cfg.Game.MinBetSatoshis,
		MaxBet:        s.cfg.Game.MaxBetSatoshis,
		MinMultiplier: s.cfg.Game.MinMultiplier,
		MaxMultiplier: s.cfg.Game.MaxMultiplier,
		Multipliers:   multipliers,
		Vaults:        vaults,
	}, nil
}
