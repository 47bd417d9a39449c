package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
	"github.com/nevzatmmc/dicevault/internal/fair"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
	"github.com/nevzatmmc/dicevault/internal/repository"
)

// AddressTracker is the minimal interface WalletService needs from the
// deposit pipeline: new vault addresses must join the watch set immediately.
type AddressTracker interface {
	Track(addresses ...string)
}

// ──────────────────────────────────────────────────────────────────────────────
// WalletService
// ──────────────────────────────────────────────────────────────────────────────

// WalletService manages the vault wallets: key generation and envelope
// encryption at creation, setting updates, deletion guards and cold-storage
// withdrawals. Decrypted key material only ever flows through the shared
// signing path.
type WalletService struct {
	wallets *repository.WalletRepository
	kv      *keyvault.Vault
	chain   ChainClient
	cfg     *config.Config
	tracker AddressTracker
}

// NewWalletService creates a wallet service. The address tracker is injected
// later via SetTracker because the listener needs the wallet list first.
func NewWalletService(
	wallets *repository.WalletRepository,
	kv *keyvault.Vault,
	chain ChainClient,
	cfg *config.Config,
) *WalletService {
	return &WalletService{
		wallets: wallets,
		kv:      kv,
		chain:   chain,
		cfg:     cfg,
	}
}

// SetTracker wires the deposit listener.
func (s *WalletService) SetTracker(t AddressTracker) {
	s.tracker = t
}

// ──────────────────────────────────────────────────────────────────────────────
// CRUD
// ──────────────────────────────────────────────────────────────────────────────

// Create draws a fresh key, encrypts it and registers the vault. When the
// request omits the chance, the default for the configured house edge is
// applied.
func (s *WalletService) Create(ctx context.Context, req *domain.CreateWalletRequest) (*domain.VaultWallet, error) {
	if req.Multiplier < s.cfg.Game.MinMultiplier || req.Multiplier > s.cfg.Game.MaxMultiplier {
		return nil, fmt.Errorf("service.Create: multiplier %.2f: %w", req.Multiplier, domain.ErrInvalidMultiplier)
	}
	chance := req.Chance
	if chance == 0 {
		chance = fair.ChanceForMultiplier(req.Multiplier, s.cfg.Game.HouseEdge)
	}
	if err := domain.ValidateFairness(chance, req.Multiplier, s.cfg.Game.HouseEdge); err != nil {
		return nil, fmt.Errorf("service.Create: chance %.2f x%.2f: %w", chance, req.Multiplier, err)
	}

	key, err := keyvault.GenerateVaultKey(s.cfg.Explorer.Network)
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}
	encrypted, err := s.kv.Encrypt([]byte(key.WIF))
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	now := time.Now().UTC()
	w := &domain.VaultWallet{
		Multiplier:          req.Multiplier,
		Chance:              chance,
		Address:             key.Address,
		AddressType:         key.AddressType,
		Network:             s.cfg.Explorer.Network,
		EncryptedPrivateKey: encrypted,
		IsActive:            true,
		Label:               req.Label,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}
	if s.tracker != nil {
		s.tracker.Track(w.Address)
	}
	log.Printf("[wallet] created vault %s x%.2f chance=%.2f%% (%s)",
		w.Address, w.Multiplier, w.Chance, w.Network)
	return w, nil
}

// Get returns one vault by its hex id.
func (s *WalletService) Get(ctx context.Context, id string) (*domain.VaultWallet, error) {
	oid, err := parseObjectID(id, domain.ErrWalletNotFound)
	if err != nil {
		return nil, fmt.Errorf("service.Get: %w", err)
	}
	return s.wallets.GetByID(ctx, oid)
}

// Update patches the mutable vault settings. The house bound applies at
// creation only; updates enforce the hard fairness bound.
func (s *WalletService) Update(ctx context.Context, id string, req *domain.UpdateWalletRequest) (*domain.VaultWallet, error) {
	oid, err := parseObjectID(id, domain.ErrWalletNotFound)
	if err != nil {
		return nil, fmt.Errorf("service.Update: %w", err)
	}
	w, err := s.wallets.GetByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("service.Update: %w", err)
	}
	if req.Chance != nil {
		if err := domain.ValidateFairness(*req.Chance, w.Multiplier, 0); err != nil {
			return nil, fmt.Errorf("service.Update: chance %.2f x%.2f: %w", *req.Chance, w.Multiplier, err)
		}
	}
	if err := s.wallets.UpdateSettings(ctx, oid, req.Chance, req.Label, req.IsActive); err != nil {
		return nil, fmt.Errorf("service.Update: %w", err)
	}
	return s.wallets.GetByID(ctx, oid)
}

// Delete removes a vault. A vault that has received funds is refused unless
// force is set; its key is unrecoverable once the record is gone.
func (s *WalletService) Delete(ctx context.Context, id string, force bool) error {
	oid, err := parseObjectID(id, domain.ErrWalletNotFound)
	if err != nil {
		return fmt.Errorf("service.Delete: %w", err)
	}
	w, err := s.wallets.GetByID(ctx, oid)
	if err != nil {
		return fmt.Errorf("service.Delete: %w", err)
	}
	if w.TotalReceived > 0 && !force {
		return fmt.Errorf("service.Delete: vault %s received %d sat: %w",
			w.Address, w.TotalReceived, domain.ErrWalletHasFunds)
	}
	if err := s.wallets.Delete(ctx, oid); err != nil {
		return fmt.Errorf("service.Delete: %w", err)
	}
	log.Printf("[wallet] deleted vault %s x%.2f (received=%d force=%v)",
		w.Address, w.Multiplier, w.TotalReceived, force)
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Listings
// ──────────────────────────────────────────────────────────────────────────────

// ListPublic returns the active vaults in their public form.
func (s *WalletService) ListPublic(ctx context.Context) ([]domain.VaultSummary, error) {
	wallets, err := s.wallets.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ListPublic: %w", err)
	}
	out := make([]domain.VaultSummary, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, domain.VaultSummary{
			Multiplier: w.Multiplier,
			Chance:     w.Chance,
			Address:    w.Address,
		})
	}
	return out, nil
}

// Multipliers returns the sorted distinct multipliers with an active vault.
func (s *WalletService) Multipliers(ctx context.Context) ([]float64, error) {
	multipliers, err := s.wallets.Multipliers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Multipliers: %w", err)
	}
	return multipliers, nil
}

// ListAdmin returns every vault. With live balances each wallet costs one
// explorer call; lookup failures leave the balance unset rather than failing
// the listing.
func (s *WalletService) ListAdmin(ctx context.Context, withBalances bool) ([]domain.WalletResponse, error) {
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.ListAdmin: %w", err)
	}
	out := make([]domain.WalletResponse, 0, len(wallets))
	for _, w := range wallets {
		resp := w.ToResponse()
		if withBalances {
			utxos, err := s.chain.AddressUTXOs(ctx, w.Address)
			if err != nil {
				log.Printf("[wallet] WARN: balance lookup for %s: %v", w.Address, err)
			} else {
				balance := sumUTXOs(utxos)
				resp.LiveBalance = &balance
			}
		}
		out = append(out, resp)
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Withdrawal
// ──────────────────────────────────────────────────────────────────────────────

// Withdraw moves vault funds out through the payout signing path. A zero
// amount sweeps everything minus the fee; a full sweep marks the vault
// depleted.
func (s *WalletService) Withdraw(ctx context.Context, id string, req *domain.WithdrawRequest) (*domain.WithdrawResult, error) {
	oid, err := parseObjectID(id, domain.ErrWalletNotFound)
	if err != nil {
		return nil, fmt.Errorf("service.Withdraw: %w", err)
	}
	w, err := s.wallets.GetByID(ctx, oid)
	if err != nil {
		return nil, fmt.Errorf("service.Withdraw: %w", err)
	}

	to := req.ToAddress
	if to == "" {
		to = s.cfg.Vault.ColdStorageAddress
	}
	if to == "" {
		return nil, fmt.Errorf("service.Withdraw: no destination and no cold storage configured: %w", domain.ErrNoRecipient)
	}
	fee := req.Fee
	if fee <= 0 {
		fee = s.cfg.Vault.DefaultTxFee
	}

	utxos, err := s.chain.AddressUTXOs(ctx, w.Address)
	if err != nil {
		return nil, fmt.Errorf("service.Withdraw: %w", err)
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("service.Withdraw: vault %s: %w", w.Address, domain.ErrVaultDepleted)
	}

	amount := req.Amount
	sweep := amount <= 0

	total := sumUTXOs(utxos)
	var selected []explorer.UTXO
	var totalIn, change int64
	if sweep {
		selected, totalIn = utxos, total
		amount = totalIn - fee
		if amount <= 0 {
			return nil, fmt.Errorf("service.Withdraw: vault holds %d sat, fee is %d: %w",
				totalIn, fee, domain.ErrInsufficientFunds)
		}
	} else {
		selected, totalIn = selectUTXOs(utxos, amount+fee)
		if selected == nil {
			return nil, fmt.Errorf("service.Withdraw: vault holds %d sat, need %d: %w",
				total, amount+fee, domain.ErrInsufficientFunds)
		}
		change = totalIn - amount - fee
		if change > 0 && change <= s.cfg.Vault.DustLimit {
			fee += change
			change = 0
		}
	}

	rawHex, err := signVaultTransfer(s.kv, transfer{
		wallet: w,
		utxos:  selected,
		to:     to,
		amount: amount,
		change: change,
	})
	if err != nil {
		return nil, fmt.Errorf("service.Withdraw: %w", err)
	}
	txid, err := s.chain.Broadcast(ctx, rawHex)
	if err != nil {
		return nil, fmt.Errorf("service.Withdraw: %w", err)
	}

	if err := s.wallets.RecordPayout(ctx, w.ID, amount+fee); err != nil {
		log.Printf("[wallet] WARN: record withdrawal on vault %s: %v", w.Address, err)
	}
	if sweep {
		if err := s.wallets.MarkDepleted(ctx, w.ID, true); err != nil {
			log.Printf("[wallet] WARN: mark vault %s depleted: %v", w.Address, err)
		}
	}
	log.Printf("[wallet] withdrew %d sat from vault %s to %s txid=%s fee=%d",
		amount, w.Address, to, txid, fee)
	return &domain.WithdrawResult{Txid: txid, Amount: amount, Fee: fee, ToAddress: to}, nil
}
