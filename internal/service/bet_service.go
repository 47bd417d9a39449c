package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/fair"
	"github.com/nevzatmmc/dicevault/internal/repository"
)

// sweepBatchSize caps how many unrolled bets one sweep pass touches.
const sweepBatchSize = 100

// ResultBroadcaster is the minimal interface the bet pipeline needs from the
// WS hub. Implemented by ws.Hub.
type ResultBroadcaster interface {
	BroadcastBetResult(result domain.BetResult)
}

// ──────────────────────────────────────────────────────────────────────────────
// BetService
// ──────────────────────────────────────────────────────────────────────────────

// BetService is the deposit-to-settlement pipeline: it materializes bets from
// detected deposits, derives their rolls and hands wins to the payout engine.
// Run consumes the ingester's event channel as the single consumer, so bets
// for one user are created and rolled in arrival order.
type BetService struct {
	bets     *repository.BetRepository
	users    *repository.UserRepository
	wallets  *repository.WalletRepository
	txs      *repository.TransactionRepository
	counters *repository.CounterRepository
	seeds    *SeedService
	payouts  *PayoutService
	chain    ChainClient
	cfg      *config.Config

	broadcaster ResultBroadcaster // injected after the WS hub is built
}

// NewBetService creates a BetService.
func NewBetService(
	bets *repository.BetRepository,
	users *repository.UserRepository,
	wallets *repository.WalletRepository,
	txs *repository.TransactionRepository,
	counters *repository.CounterRepository,
	seeds *SeedService,
	payouts *PayoutService,
	chain ChainClient,
	cfg *config.Config,
) *BetService {
	return &BetService{
		bets:     bets,
		users:    users,
		wallets:  wallets,
		txs:      txs,
		counters: counters,
		seeds:    seeds,
		payouts:  payouts,
		chain:    chain,
		cfg:      cfg,
	}
}

// SetBroadcaster injects the WS hub dependency post-construction.
func (s *BetService) SetBroadcaster(b ResultBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Pipeline entry
// ──────────────────────────────────────────────────────────────────────────────

// Run consumes deposit events until ctx is cancelled. Rejections and replays
// are ordinary traffic; only infrastructure failures are logged as errors.
func (s *BetService) Run(ctx context.Context, events <-chan domain.DepositEvent) {
	log.Printf("[bets] deposit pipeline started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("[bets] deposit pipeline stopped")
			return
		case ev := <-events:
			if _, err := s.HandleDeposit(ctx, ev); err != nil {
				if domain.IsUserError(err) || domain.IsConflict(err) {
					continue
				}
				log.Printf("[bets] ERROR: deposit %s: %v", shortTxid(ev.Txid), err)
			}
		}
	}
}

// HandleDeposit turns one detected deposit into a bet. Every step is
// idempotent: replaying the same event converges on the same bet.
func (s *BetService) HandleDeposit(ctx context.Context, ev domain.DepositEvent) (*domain.Bet, error) {
	// ── 1. Record the detection and dedupe on txid ───────────────────────────
	rec, created, err := s.txs.UpsertDetected(ctx, ev.ToRecord(time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}
	if !created {
		s.refreshConfirmations(ctx, rec, ev)
	}
	if existing, err := s.bets.GetByDepositTxid(ctx, ev.Txid); err == nil {
		if !rec.IsProcessed {
			if merr := s.txs.MarkProcessed(ctx, ev.Txid, &existing.ID); merr != nil {
				log.Printf("[bets] WARN: mark %s processed: %v", shortTxid(ev.Txid), merr)
			}
		}
		return s.maybeSettle(ctx, existing, ev.Confirmations)
	} else if !errors.Is(err, domain.ErrBetNotFound) {
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}
	if rec.IsProcessed {
		// Processed with no bet attached: an earlier pass rejected this
		// deposit.
		return nil, fmt.Errorf("service.HandleDeposit: %s: %w", ev.Txid, domain.ErrTxAlreadyProcessed)
	}

	// ── 2. Upsert the bettor ─────────────────────────────────────────────────
	user, err := s.users.GetOrCreate(ctx, ev.FromAddress)
	if err != nil {
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}

	// ── 3. Resolve the vault ─────────────────────────────────────────────────
	wallet, err := s.wallets.GetByAddress(ctx, ev.ToAddress)
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			return nil, s.reject(ctx, ev.Txid, fmt.Errorf("%s: %w", ev.ToAddress, domain.ErrNotVaultAddress))
		}
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}
	if !wallet.IsActive {
		return nil, s.reject(ctx, ev.Txid, fmt.Errorf("vault %s is disabled: %w", wallet.Address, domain.ErrNotVaultAddress))
	}

	// ── 4. Resolve the user's seed pair ──────────────────────────────────────
	clientSeed := ev.FromAddress
	if clientSeed == "" {
		// No resolvable spender; the txid still gives a deterministic,
		// user-checkable client seed.
		clientSeed = ev.Txid
	}
	userSeed, err := s.seeds.ActiveUserSeed(ctx, user.ID, clientSeed)
	if err != nil {
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}

	// ── 5. Resolve today's server seed ───────────────────────────────────────
	seed, err := s.seeds.GetOrCreateToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}

	// ── 6. Validate bet parameters ───────────────────────────────────────────
	if ev.Amount < s.cfg.Game.MinBetSatoshis {
		return nil, s.reject(ctx, ev.Txid, fmt.Errorf("%d sat: %w", ev.Amount, domain.ErrBetTooSmall))
	}
	if ev.Amount > s.cfg.Game.MaxBetSatoshis {
		return nil, s.reject(ctx, ev.Txid, fmt.Errorf("%d sat: %w", ev.Amount, domain.ErrBetTooLarge))
	}
	if wallet.Multiplier < s.cfg.Game.MinMultiplier || wallet.Multiplier > s.cfg.Game.MaxMultiplier {
		return nil, s.reject(ctx, ev.Txid, fmt.Errorf("x%.2f: %w", wallet.Multiplier, domain.ErrInvalidMultiplier))
	}

	// ── 7. Assign the bet number ─────────────────────────────────────────────
	number, err := s.counters.Next(ctx, repository.CounterBetNumber)
	if err != nil {
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}

	// ── 8. Compose the bet with its fairness snapshots ───────────────────────
	now := time.Now().UTC()
	bet := &domain.Bet{
		BetNumber:      number,
		UserID:         user.ID,
		UserAddress:    ev.FromAddress,
		WalletID:       wallet.ID,
		TargetAddress:  wallet.Address,
		DepositTxid:    ev.Txid,
		BetAmount:      ev.Amount,
		Multiplier:     wallet.Multiplier,
		Chance:         wallet.Chance,
		Nonce:          userSeed.Nonce,
		ClientSeed:     userSeed.ClientSeed,
		ServerSeedHash: seed.ServerSeedHash,
		SeedDate:       seed.SeedDate,
		Status:         domain.BetStatusPending,
		CreatedAt:      now,
	}

	// ── 9. Persist; the unique deposit_txid index breaks creation races ──────
	if err := s.bets.Insert(ctx, bet); err != nil {
		if errors.Is(err, domain.ErrBetExists) {
			return s.bets.GetByDepositTxid(ctx, ev.Txid)
		}
		return nil, fmt.Errorf("service.HandleDeposit: %w", err)
	}

	// ── 10. Attach the deposit record ────────────────────────────────────────
	if err := s.txs.MarkProcessed(ctx, ev.Txid, &bet.ID); err != nil {
		log.Printf("[bets] WARN: mark %s processed: %v", shortTxid(ev.Txid), err)
	}

	// ── 11. Vault deposit stats ──────────────────────────────────────────────
	if err := s.wallets.RecordDeposit(ctx, wallet.ID, ev.Amount); err != nil {
		log.Printf("[bets] WARN: record deposit on vault %s: %v", wallet.Address, err)
	}
	log.Printf("[bets] bet #%d created: %d sat on x%.2f via %s (%s)",
		bet.BetNumber, bet.BetAmount, bet.Multiplier, shortTxid(ev.Txid), ev.DetectedBy)

	// ── 12. Settle now or wait for confirmations ─────────────────────────────
	return s.maybeSettle(ctx, bet, ev.Confirmations)
}

// refreshConfirmations keeps the stored confirmation columns moving when a
// replay carries a deeper view of the chain.
func (s *BetService) refreshConfirmations(ctx context.Context, rec *domain.DetectedTransaction, ev domain.DepositEvent) {
	if ev.Confirmations <= rec.Confirmations {
		return
	}
	var confirmedAt *time.Time
	if ev.Confirmed && rec.ConfirmedAt == nil {
		now := time.Now().UTC()
		confirmedAt = &now
	}
	if err := s.txs.UpdateConfirmations(ctx, ev.Txid, ev.Confirmations, ev.BlockHeight, ev.BlockHash, confirmedAt); err != nil {
		log.Printf("[bets] WARN: update confirmations for %s: %v", shortTxid(ev.Txid), err)
	}
}

// reject marks a deposit processed with no bet attached and returns the
// classification to the caller.
func (s *BetService) reject(ctx context.Context, txid string, cause error) error {
	if err := s.txs.MarkProcessed(ctx, txid, nil); err != nil {
		log.Printf("[bets] WARN: mark %s processed: %v", shortTxid(txid), err)
	}
	log.Printf("[bets] deposit %s rejected: %v", shortTxid(txid), cause)
	return fmt.Errorf("service.HandleDeposit: %w", cause)
}

// maybeSettle rolls the bet when its deposit has enough confirmations,
// otherwise leaves it for the pending sweep.
func (s *BetService) maybeSettle(ctx context.Context, bet *domain.Bet, confirmations int) (*domain.Bet, error) {
	if bet.IsRolled() || bet.IsTerminal() {
		return bet, nil
	}
	if confirmations < s.cfg.Game.MinConfirmations {
		log.Printf("[bets] bet #%d waiting for confirmations (%d/%d)",
			bet.BetNumber, confirmations, s.cfg.Game.MinConfirmations)
		return bet, nil
	}
	if s.cfg.Game.MinConfirmations > 0 && bet.Status == domain.BetStatusPending {
		now := time.Now().UTC()
		if err := s.bets.SetConfirmed(ctx, bet.ID, now); err != nil {
			log.Printf("[bets] WARN: confirm bet #%d: %v", bet.BetNumber, err)
		} else {
			bet.Status = domain.BetStatusConfirmed
			bet.ConfirmedAt = &now
		}
	}
	return s.RollAndSettle(ctx, bet)
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

// RollAndSettle derives the outcome for a funded bet and settles the money
// columns. Rolls are write-once: losing the persistence race returns the
// winner's version of the bet.
func (s *BetService) RollAndSettle(ctx context.Context, bet *domain.Bet) (*domain.Bet, error) {
	// ── 1. Double-roll guard ─────────────────────────────────────────────────
	if bet.IsRolled() {
		return bet, nil
	}

	// ── 2. The seed of the bet's calendar date governs the roll ─────────────
	seed, err := s.seeds.SeedForDate(ctx, bet.SeedDate)
	if err != nil {
		return nil, fmt.Errorf("service.RollAndSettle: %w", err)
	}

	// ── 3. Claim the nonce; rolls for one user serialize on the seed doc ────
	// The claimed value usually equals the snapshot taken at materialization;
	// when another bet settled in between, the roll uses the newer value and
	// step 5 persists it.
	nonce, err := s.seeds.ClaimNonce(ctx, bet.UserID, bet.ClientSeed)
	if err != nil {
		return nil, fmt.Errorf("service.RollAndSettle: bet #%d: %w", bet.BetNumber, err)
	}
	bet.Nonce = nonce

	// ── 4. Derive the outcome ────────────────────────────────────────────────
	outcome, err := fair.Settle(seed.ServerSeed, bet.ClientSeed, bet.Nonce, bet.BetAmount, bet.Multiplier, bet.Chance)
	if err != nil {
		return nil, fmt.Errorf("service.RollAndSettle: bet #%d: %w", bet.BetNumber, err)
	}

	// ── 5. Persist write-once ────────────────────────────────────────────────
	now := time.Now().UTC()
	roll := outcome.Roll
	bet.RollResult = &roll
	bet.IsWin = outcome.IsWin
	bet.PayoutAmount = outcome.Payout
	bet.Profit = outcome.Profit
	bet.ServerSeed = seed.ServerSeed
	bet.Status = domain.BetStatusRolled
	bet.RolledAt = &now
	if err := s.bets.SetRolled(ctx, bet); err != nil {
		if errors.Is(err, domain.ErrBetAlreadyRolled) {
			// Another worker settled this bet; the claimed value goes unused.
			// A gap in the user's nonce sequence is harmless, a duplicate is not.
			return s.bets.GetByID(ctx, bet.ID)
		}
		return nil, fmt.Errorf("service.RollAndSettle: %w", err)
	}

	// ── 6. Lifetime stats ────────────────────────────────────────────────────
	s.seeds.RecordBetRolled(ctx, bet.SeedDate)
	var wonDelta, lostDelta int64
	if bet.IsWin {
		wonDelta = bet.Profit
	} else {
		lostDelta = bet.BetAmount
	}
	if err := s.users.RecordBet(ctx, bet.UserID, bet.BetAmount, wonDelta, lostDelta, now); err != nil {
		log.Printf("[bets] WARN: record user stats for bet #%d: %v", bet.BetNumber, err)
	}

	// ── 7. Pay the win or finalize the loss ──────────────────────────────────
	log.Printf("[bets] bet #%d rolled %.2f against %.2f%%: win=%v payout=%d",
		bet.BetNumber, roll, bet.Chance, bet.IsWin, bet.PayoutAmount)
	if bet.IsWin {
		// The result is announced by the payout engine once the payout
		// terminates, so subscribers see the final txid.
		if _, err := s.payouts.ProcessWinningBet(ctx, bet); err != nil {
			log.Printf("[bets] ERROR: queue payout for bet #%d: %v", bet.BetNumber, err)
		}
		return bet, nil
	}
	if err := s.bets.SetPaid(ctx, bet.ID, "", now); err != nil {
		log.Printf("[bets] WARN: finalize losing bet #%d: %v", bet.BetNumber, err)
	} else {
		bet.Status = domain.BetStatusPaid
		bet.PaidAt = &now
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastBetResult(bet.ToResult(false))
	}
	return bet, nil
}

// SweepPending re-drives bets that were waiting on confirmations or were
// stranded by a crash between insert and roll. Returns the number settled.
func (s *BetService) SweepPending(ctx context.Context) (int, error) {
	list, err := s.bets.ListUnrolled(ctx, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("service.SweepPending: %w", err)
	}
	settled := 0
	for _, bet := range list {
		confirmations := 0
		if s.cfg.Game.MinConfirmations > 0 {
			confirmations, err = s.depositConfirmations(ctx, bet.DepositTxid)
			if err != nil {
				log.Printf("[bets] WARN: sweep bet #%d: %v", bet.BetNumber, err)
				continue
			}
		}
		updated, err := s.maybeSettle(ctx, bet, confirmations)
		if err != nil {
			log.Printf("[bets] ERROR: sweep bet #%d: %v", bet.BetNumber, err)
			continue
		}
		if updated.IsRolled() {
			settled++
		}
	}
	if settled > 0 {
		log.Printf("[bets] sweep settled %d bet(s)", settled)
	}
	return settled, nil
}

// depositConfirmations asks the explorer how deep a deposit is and mirrors
// the answer onto the stored transaction record.
func (s *BetService) depositConfirmations(ctx context.Context, txid string) (int, error) {
	tx, err := s.chain.Tx(ctx, txid)
	if err != nil {
		return 0, fmt.Errorf("lookup %s: %w", shortTxid(txid), err)
	}
	if !tx.Status.Confirmed {
		return 0, nil
	}
	conf, err := s.chain.Confirmations(ctx, tx.Status)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	height, hash := tx.Status.BlockHeight, tx.Status.BlockHash
	if err := s.txs.UpdateConfirmations(ctx, txid, int(conf), &height, &hash, &now); err != nil {
		log.Printf("[bets] WARN: update confirmations for %s: %v", shortTxid(txid), err)
	}
	return int(conf), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Manual submission
// ──────────────────────────────────────────────────────────────────────────────

// SubmitTxid lets a user or operator push a txid the feeds missed. The
// transaction is fetched, matched against the vault set and run through the
// standard pipeline.
func (s *BetService) SubmitTxid(ctx context.Context, txid string, source domain.DetectionSource) (*domain.Bet, error) {
	tx, err := s.chain.Tx(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("service.SubmitTxid: %w", err)
	}

	// First vault output wins, matching the live ingest rule.
	var vault *domain.VaultWallet
	for _, out := range tx.Vout {
		if out.ScriptpubkeyAddress == "" {
			continue
		}
		w, err := s.wallets.GetByAddress(ctx, out.ScriptpubkeyAddress)
		if err != nil {
			if errors.Is(err, domain.ErrWalletNotFound) {
				continue
			}
			return nil, fmt.Errorf("service.SubmitTxid: %w", err)
		}
		vault = w
		break
	}
	if vault == nil {
		return nil, fmt.Errorf("service.SubmitTxid: %s: %w", txid, domain.ErrNotVaultAddress)
	}
	amount, _ := tx.OutputTo(vault.Address)

	confirmations := 0
	if tx.Status.Confirmed {
		if conf, err := s.chain.Confirmations(ctx, tx.Status); err == nil {
			confirmations = int(conf)
		}
	}
	ev := domain.DepositEvent{
		Txid:          tx.Txid,
		ToAddress:     vault.Address,
		Amount:        amount,
		FromAddress:   tx.FromAddress(),
		Fee:           tx.Fee,
		Confirmed:     tx.Status.Confirmed,
		Confirmations: confirmations,
		DetectedBy:    source,
	}
	if tx.Status.Confirmed {
		height, hash := tx.Status.BlockHeight, tx.Status.BlockHash
		ev.BlockHeight = &height
		ev.BlockHash = &hash
	}
	return s.HandleDeposit(ctx, ev)
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetBet returns one bet by hex id.
func (s *BetService) GetBet(ctx context.Context, id string) (*domain.Bet, error) {
	oid, err := parseObjectID(id, domain.ErrBetNotFound)
	if err != nil {
		return nil, err
	}
	return s.bets.GetByID(ctx, oid)
}

// Connect upserts the user behind an address and returns their lifetime
// stats plus the seed material needed to pre-verify the next roll.
func (s *BetService) Connect(ctx context.Context, address string) (*domain.ConnectResponse, error) {
	user, err := s.users.GetOrCreate(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("service.Connect: %w", err)
	}
	userSeed, err := s.seeds.ActiveUserSeed(ctx, user.ID, address)
	if err != nil {
		return nil, fmt.Errorf("service.Connect: %w", err)
	}
	seed, err := s.seeds.GetOrCreateToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("service.Connect: %w", err)
	}
	return &domain.ConnectResponse{
		Address:        user.Address,
		TotalBets:      user.TotalBets,
		TotalWagered:   user.TotalWagered,
		TotalWon:       user.TotalWon,
		TotalLost:      user.TotalLost,
		ClientSeed:     userSeed.ClientSeed,
		Nonce:          userSeed.Nonce,
		ServerSeedHash: seed.ServerSeedHash,
		SeedDate:       seed.SeedDate,
	}, nil
}

// UserBets returns a user's bet history, newest first, plus the total count.
func (s *BetService) UserBets(ctx context.Context, address string, limit, offset int64) ([]domain.BetResponse, int64, error) {
	bets, total, err := s.bets.ListByUser(ctx, address, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("service.UserBets: %w", err)
	}
	out := make([]domain.BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, b.ToResponse())
	}
	return out, total, nil
}

// RecentBets returns the anonymised public feed of settled bets.
func (s *BetService) RecentBets(ctx context.Context, limit int64) ([]domain.PublicBetResponse, error) {
	bets, err := s.bets.ListRecentRolled(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service.RecentBets: %w", err)
	}
	out := make([]domain.PublicBetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, b.ToPublicResponse())
	}
	return out, nil
}

// VerifyBet rebuilds the fairness proof for a settled bet. The raw server
// seed appears only once its calendar date has passed; until then the
// response carries the commitment and a note.
func (s *BetService) VerifyBet(ctx context.Context, id string) (*domain.VerifyBetResponse, error) {
	bet, err := s.GetBet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service.VerifyBet: %w", err)
	}
	if !bet.IsRolled() {
		return nil, fmt.Errorf("service.VerifyBet: bet #%d: %w", bet.BetNumber, domain.ErrBetNotSettled)
	}

	resp := &domain.VerifyBetResponse{
		BetID:          bet.ID.Hex(),
		BetNumber:      bet.BetNumber,
		ServerSeedHash: bet.ServerSeedHash,
		ClientSeed:     bet.ClientSeed,
		Nonce:          bet.Nonce,
		RollResult:     bet.RollResult,
	}
	seed, err := s.seeds.SeedForDate(ctx, bet.SeedDate)
	if err != nil {
		return nil, fmt.Errorf("service.VerifyBet: %w", err)
	}
	if !seed.IsRevealable(time.Now().UTC()) {
		resp.VerificationMsg = fmt.Sprintf("server seed for %s unlocks after the date ends (UTC)", bet.SeedDate)
		return resp, nil
	}

	v, err := fair.Verify(seed.ServerSeed, bet.ClientSeed, bet.Nonce, bet.ServerSeedHash)
	if err != nil {
		return nil, fmt.Errorf("service.VerifyBet: %w", err)
	}
	resp.ServerSeed = seed.ServerSeed
	resp.RecomputedRoll = v.Roll
	resp.HashValid = v.HashValid
	resp.RollValid = bet.RollResult != nil && *bet.RollResult == v.Roll
	resp.IsValid = resp.HashValid && resp.RollValid
	if !resp.IsValid {
		resp.VerificationMsg = "recomputed roll or seed hash does not match the stored bet"
	}
	return resp, nil
}
