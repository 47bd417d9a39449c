package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
	"github.com/nevzatmmc/dicevault/internal/repository"
)

// payoutQueueSize bounds the worker feed. A full queue is not a loss: the
// payout record is already persisted and the retry sweep re-queues it.
const payoutQueueSize = 64

// payoutBatchSize caps how many payouts one sweep pass touches.
const payoutBatchSize = 50

// ChainClient is the minimal interface the services need from the explorer
// client.
type ChainClient interface {
	Tx(ctx context.Context, txid string) (*explorer.Tx, error)
	AddressUTXOs(ctx context.Context, address string) ([]explorer.UTXO, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
	Confirmations(ctx context.Context, status explorer.TxStatus) (int64, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// PayoutService
// ──────────────────────────────────────────────────────────────────────────────

// PayoutService turns winning bets into broadcast Bitcoin transactions. A
// fixed pool of workers drains a queue of payout ids; each attempt is stamped
// with a fresh id before broadcast so a crash mid-flight leaves a trace the
// operator can match against the chain.
type PayoutService struct {
	payouts *repository.PayoutRepository
	bets    *repository.BetRepository
	wallets *repository.WalletRepository
	txs     *repository.TransactionRepository
	kv      *keyvault.Vault
	chain   ChainClient
	cfg     *config.Config

	broadcaster ResultBroadcaster

	jobs chan primitive.ObjectID
	wg   sync.WaitGroup

	mu       sync.Mutex
	inFlight map[primitive.ObjectID]struct{}
}

// NewPayoutService creates a payout service. Call Start to launch the
// worker pool.
func NewPayoutService(
	payouts *repository.PayoutRepository,
	bets *repository.BetRepository,
	wallets *repository.WalletRepository,
	txs *repository.TransactionRepository,
	kv *keyvault.Vault,
	chain ChainClient,
	cfg *config.Config,
) *PayoutService {
	return &PayoutService{
		payouts:  payouts,
		bets:     bets,
		wallets:  wallets,
		txs:      txs,
		kv:       kv,
		chain:    chain,
		cfg:      cfg,
		jobs:     make(chan primitive.ObjectID, payoutQueueSize),
		inFlight: make(map[primitive.ObjectID]struct{}),
	}
}

// SetBroadcaster injects the WS hub. A winning bet's result is announced
// only once its payout terminates, so the emission happens here rather than
// in the roll path.
func (s *PayoutService) SetBroadcaster(b ResultBroadcaster) { s.broadcaster = b }

// ──────────────────────────────────────────────────────────────────────────────
// Worker pool
// ──────────────────────────────────────────────────────────────────────────────

// Start launches the worker pool. Workers run until ctx is cancelled.
func (s *PayoutService) Start(ctx context.Context) {
	for i := 1; i <= s.cfg.Vault.PayoutWorkers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
	log.Printf("[payout] started %d payout worker(s)", s.cfg.Vault.PayoutWorkers)
}

// Wait blocks until every worker has exited.
func (s *PayoutService) Wait() {
	s.wg.Wait()
}

func (s *PayoutService) worker(ctx context.Context, n int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.jobs:
			if err := s.attempt(ctx, id); err != nil {
				log.Printf("[payout] worker %d: payout %s: %v", n, id.Hex(), err)
			}
		}
	}
}

// Enqueue hands a payout to the worker pool without blocking. Returns false
// when the queue is full; the retry sweep picks the payout up later.
func (s *PayoutService) Enqueue(id primitive.ObjectID) bool {
	select {
	case s.jobs <- id:
		return true
	default:
		log.Printf("[payout] WARN: queue full, payout %s deferred to the retry sweep", id.Hex())
		return false
	}
}

// begin claims a payout for this process. A second claim while the first is
// live is refused, which keeps a worker and a sweep off the same payout.
func (s *PayoutService) begin(id primitive.ObjectID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *PayoutService) end(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// ──────────────────────────────────────────────────────────────────────────────
// Pipeline
// ──────────────────────────────────────────────────────────────────────────────

// ProcessWinningBet gates a settled bet into the payout pipeline: it creates
// the payout record (at most one per bet, enforced by the unique bet_id
// index) and queues it for a worker.
func (s *PayoutService) ProcessWinningBet(ctx context.Context, bet *domain.Bet) (*domain.Payout, error) {
	// 1. Eligibility gate: a rolled win with something to pay.
	if !bet.IsWin || !bet.IsRolled() || bet.PayoutAmount <= 0 {
		return nil, fmt.Errorf("service.ProcessWinningBet: bet #%d: %w", bet.BetNumber, domain.ErrPayoutNotEligible)
	}

	// 2. An existing payout wins; this call is a no-op replay.
	existing, err := s.payouts.GetByBetID(ctx, bet.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrPayoutNotFound) {
		return nil, fmt.Errorf("service.ProcessWinningBet: %w", err)
	}

	// 3. Resolve the recipient: the deposit's spender first, the stored
	// user address second.
	recipient := s.resolveRecipient(ctx, bet)

	now := time.Now().UTC()
	p := &domain.Payout{
		BetID:     bet.ID,
		BetNumber: bet.BetNumber,
		WalletID:  bet.WalletID,
		Amount:    bet.PayoutAmount,
		ToAddress: recipient,
		Status:    domain.PayoutStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payouts.Insert(ctx, p); err != nil {
		if errors.Is(err, domain.ErrPayoutExists) {
			return s.payouts.GetByBetID(ctx, bet.ID)
		}
		return nil, fmt.Errorf("service.ProcessWinningBet: %w", err)
	}

	// 4. No recipient is permanent: park the payout before it reaches a
	// worker.
	if recipient == "" {
		return p, s.fail(ctx, p, fmt.Errorf("bet #%d: %w", bet.BetNumber, domain.ErrNoRecipient))
	}

	s.Enqueue(p.ID)
	log.Printf("[payout] queued payout %s for bet #%d amount=%d to=%s",
		p.ID.Hex(), p.BetNumber, p.Amount, p.ToAddress)
	return p, nil
}

// resolveRecipient picks the payout destination. The address that funded the
// deposit is authoritative; the user's stored address is the fallback.
func (s *PayoutService) resolveRecipient(ctx context.Context, bet *domain.Bet) string {
	if bet.DepositTxid != "" {
		if rec, err := s.txs.GetByTxid(ctx, bet.DepositTxid); err == nil && rec.FromAddress != "" {
			return rec.FromAddress
		}
	}
	return bet.UserAddress
}

// attempt runs one build-and-broadcast cycle for a payout. All persistent
// state transitions happen here; callers only log the returned error.
func (s *PayoutService) attempt(ctx context.Context, id primitive.ObjectID) error {
	if !s.begin(id) {
		return nil
	}
	defer s.end(id)

	// 1. Re-read state; another worker or an operator may have finished it.
	p, err := s.payouts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == domain.PayoutStatusBroadcast || p.IsTerminal() || !p.CanRetry(s.cfg.Vault.PayoutMaxRetries) {
		return nil
	}
	if p.ToAddress == "" {
		return s.fail(ctx, p, domain.ErrNoRecipient)
	}

	wallet, err := s.wallets.GetByID(ctx, p.WalletID)
	if err != nil {
		return s.fail(ctx, p, err)
	}

	// 2. Give the explorer's UTXO index time to see recent spends.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.Vault.PayoutSettleDelay):
	}

	// 3. Fund the spend.
	utxos, err := s.chain.AddressUTXOs(ctx, wallet.Address)
	if err != nil {
		return s.fail(ctx, p, err)
	}
	if len(utxos) == 0 {
		if derr := s.wallets.MarkDepleted(ctx, wallet.ID, true); derr != nil {
			log.Printf("[payout] WARN: mark vault %s depleted: %v", wallet.Address, derr)
		}
		log.Printf("[payout] WARN: vault %s (x%.2f) has no spendable outputs", wallet.Address, wallet.Multiplier)
		return s.fail(ctx, p, domain.ErrVaultDepleted)
	}
	target := p.Amount + s.cfg.Vault.FeeBuffer
	selected, totalIn := selectUTXOs(utxos, target)
	if selected == nil {
		return s.fail(ctx, p, fmt.Errorf("vault holds %d sat, need %d: %w",
			sumUTXOs(utxos), target, domain.ErrInsufficientFunds))
	}

	// 4. Change below the dust limit is folded into the fee.
	fee := s.cfg.Vault.DefaultTxFee
	change := totalIn - p.Amount - fee
	if change < 0 {
		return s.fail(ctx, p, fmt.Errorf("inputs %d cannot cover %d + fee %d: %w",
			totalIn, p.Amount, fee, domain.ErrInsufficientFunds))
	}
	if change > 0 && change <= s.cfg.Vault.DustLimit {
		fee += change
		change = 0
	}

	// 5. Stamp the attempt before any bytes can reach the network.
	attemptID := uuid.NewString()
	if err := s.payouts.SetAttempt(ctx, p.ID, attemptID); err != nil {
		return err
	}

	rawHex, err := signVaultTransfer(s.kv, transfer{
		wallet: wallet,
		utxos:  selected,
		to:     p.ToAddress,
		amount: p.Amount,
		change: change,
	})
	if err != nil {
		return s.fail(ctx, p, err)
	}

	// 6. Broadcast and persist the result.
	txid, err := s.chain.Broadcast(ctx, rawHex)
	if err != nil {
		return s.fail(ctx, p, err)
	}
	now := time.Now().UTC()
	if err := s.payouts.MarkBroadcast(ctx, p.ID, txid, fee, now); err != nil {
		log.Printf("[payout] ERROR: payout %s broadcast as %s but not recorded: %v", p.ID.Hex(), txid, err)
		return err
	}
	if err := s.bets.SetPaid(ctx, p.BetID, txid, now); err != nil {
		log.Printf("[payout] WARN: mark bet %s paid: %v", p.BetID.Hex(), err)
	}
	if err := s.wallets.RecordPayout(ctx, wallet.ID, p.Amount+fee); err != nil {
		log.Printf("[payout] WARN: record payout on vault %s: %v", wallet.Address, err)
	}
	log.Printf("[payout] broadcast payout %s for bet #%d txid=%s amount=%d fee=%d attempt=%s",
		p.ID.Hex(), p.BetNumber, txid, p.Amount, fee, attemptID)
	s.announce(ctx, p.BetID)
	return nil
}

// announce emits the final BetResult once a payout terminates either way.
// Losing bets never reach this path; the roll pipeline announces them.
func (s *PayoutService) announce(ctx context.Context, betID primitive.ObjectID) {
	if s.broadcaster == nil {
		return
	}
	bet, err := s.bets.GetByID(ctx, betID)
	if err != nil {
		log.Printf("[payout] WARN: reload bet %s for broadcast: %v", betID.Hex(), err)
		return
	}
	s.broadcaster.BroadcastBetResult(bet.ToResult(false))
}

// fail records an attempt failure. Fatal errors park the payout with its
// retry budget spent and fail the owning bet; transient errors burn one
// retry and fail the bet only when the budget runs out.
func (s *PayoutService) fail(ctx context.Context, p *domain.Payout, attemptErr error) error {
	// A cancelled attempt is not a failure; the sweepers resume it on the
	// next start.
	if errors.Is(attemptErr, context.Canceled) || errors.Is(attemptErr, context.DeadlineExceeded) {
		return attemptErr
	}

	now := time.Now().UTC()
	maxRetries := s.cfg.Vault.PayoutMaxRetries
	retries := p.RetryCount + 1
	if domain.IsPayoutFatal(attemptErr) {
		retries = maxRetries
	}
	if err := s.payouts.MarkFailed(ctx, p.ID, attemptErr.Error(), retries, now); err != nil {
		log.Printf("[payout] ERROR: mark payout %s failed: %v", p.ID.Hex(), err)
	}
	if retries >= maxRetries {
		if err := s.bets.SetFailed(ctx, p.BetID); err != nil {
			log.Printf("[payout] ERROR: mark bet %s failed: %v", p.BetID.Hex(), err)
		}
		log.Printf("[payout] ERROR: payout %s for bet #%d is terminal after %d attempt(s): %v",
			p.ID.Hex(), p.BetNumber, retries, attemptErr)
		s.announce(ctx, p.BetID)
	} else {
		log.Printf("[payout] WARN: payout %s attempt %d/%d failed: %v",
			p.ID.Hex(), retries, maxRetries, attemptErr)
	}
	return attemptErr
}

// ──────────────────────────────────────────────────────────────────────────────
// Sweeps
// ──────────────────────────────────────────────────────────────────────────────

// RetryFailed queues every payout still inside its retry budget. Returns the
// number queued.
func (s *PayoutService) RetryFailed(ctx context.Context) (int, error) {
	list, err := s.payouts.ListRetryable(ctx, s.cfg.Vault.PayoutMaxRetries, payoutBatchSize)
	if err != nil {
		return 0, fmt.Errorf("service.RetryFailed: %w", err)
	}
	queued := 0
	for _, p := range list {
		if s.Enqueue(p.ID) {
			queued++
		}
	}
	if queued > 0 {
		log.Printf("[payout] retry sweep queued %d payout(s)", queued)
	}
	return queued, nil
}

// CheckConfirmations promotes broadcast payouts the chain has mined. Returns
// the number confirmed.
func (s *PayoutService) CheckConfirmations(ctx context.Context) (int, error) {
	list, err := s.payouts.ListBroadcast(ctx, payoutBatchSize)
	if err != nil {
		return 0, fmt.Errorf("service.CheckConfirmations: %w", err)
	}
	confirmed := 0
	for _, p := range list {
		if p.Txid == nil {
			continue
		}
		tx, err := s.chain.Tx(ctx, *p.Txid)
		if err != nil {
			if errors.Is(err, domain.ErrTxNotFound) {
				log.Printf("[payout] WARN: broadcast payout %s txid=%s unknown to the explorer",
					p.ID.Hex(), *p.Txid)
			} else {
				log.Printf("[payout] WARN: check payout %s: %v", p.ID.Hex(), err)
			}
			continue
		}
		if !tx.Status.Confirmed {
			continue
		}
		if err := s.payouts.MarkConfirmed(ctx, p.ID, time.Now().UTC()); err != nil {
			log.Printf("[payout] ERROR: mark payout %s confirmed: %v", p.ID.Hex(), err)
			continue
		}
		confirmed++
	}
	if confirmed > 0 {
		log.Printf("[payout] confirmed %d payout(s)", confirmed)
	}
	return confirmed, nil
}
