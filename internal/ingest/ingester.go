// Package ingest interprets explorer feeds and turns transactions paying a
// monitored vault address into deposit events for the bet pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
)

const (
	eventBuffer    = 256
	defaultSeenCap = 4096
)

// TxFetcher is the slice of the explorer client the ingester needs: full
// transaction hydration for summary frames and address history for backfill.
type TxFetcher interface {
	Tx(ctx context.Context, txid string) (*explorer.Tx, error)
	AddressTxs(ctx context.Context, address string) ([]explorer.Tx, error)
	TipHeight(ctx context.Context) (int64, error)
}

// Ingester filters explorer traffic down to deposits on monitored vault
// addresses. Every emitted event is keyed by txid; a transaction is emitted
// once no matter how many feeds carry it. The events channel is bounded:
// when the bet pipeline falls behind, frames are dropped and the periodic
// REST backfill re-detects them.
type Ingester struct {
	client TxFetcher
	logger *slog.Logger

	mu        sync.RWMutex
	monitored map[string]struct{}

	seenMu  sync.Mutex
	seen    map[string]struct{}
	seenQ   []string
	seenCap int

	events  chan domain.DepositEvent
	tracker func(address string)
}

// NewIngester builds an Ingester around an explorer client.
func NewIngester(client TxFetcher, logger *slog.Logger) *Ingester {
	return &Ingester{
		client:    client,
		logger:    logger,
		monitored: make(map[string]struct{}),
		seen:      make(map[string]struct{}),
		seenCap:   defaultSeenCap,
		events:    make(chan domain.DepositEvent, eventBuffer),
	}
}

// SetTracker installs a hook invoked for every newly monitored address, used
// to push a live track-address subscription onto the websocket.
func (in *Ingester) SetTracker(fn func(address string)) {
	in.tracker = fn
}

// Events is the deposit stream consumed by the bet pipeline.
func (in *Ingester) Events() <-chan domain.DepositEvent {
	return in.events
}

// Track adds vault addresses to the monitored set and notifies the tracker
// for each address not already present.
func (in *Ingester) Track(addresses ...string) {
	in.mu.Lock()
	var fresh []string
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, ok := in.monitored[addr]; ok {
			continue
		}
		in.monitored[addr] = struct{}{}
		fresh = append(fresh, addr)
	}
	in.mu.Unlock()

	for _, addr := range fresh {
		if in.tracker != nil {
			in.tracker(addr)
		}
	}
}

// Untrack removes an address from the monitored set. The websocket keeps
// pushing frames for it until the next reconnect; they no longer match.
func (in *Ingester) Untrack(address string) {
	in.mu.Lock()
	delete(in.monitored, address)
	in.mu.Unlock()
}

// Monitored snapshots the monitored address set. The websocket listener
// replays it as track-address frames on every (re)connect.
func (in *Ingester) Monitored() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	addrs := make([]string, 0, len(in.monitored))
	for addr := range in.monitored {
		addrs = append(addrs, addr)
	}
	return addrs
}

// IsMonitored reports whether an address belongs to a tracked vault.
func (in *Ingester) IsMonitored(address string) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	_, ok := in.monitored[address]
	return ok
}

// ──────────────────────────────────────────────────────────────────────────────
// Frame dispatch
// ──────────────────────────────────────────────────────────────────────────────

// txSummary is the compact shape inside bulk "transactions" frames.
type txSummary struct {
	Txid string `json:"txid"`
}

// HandleFrame dispatches one raw websocket frame. Frames carry either
// tracked-address transactions, a single full transaction, a bulk list of
// transaction summaries, or control data (blocks, mempool stats) we ignore.
func (in *Ingester) HandleFrame(frame []byte) {
	var probe struct {
		Address             string            `json:"address"`
		AddressTransactions json.RawMessage   `json:"address-transactions"`
		Transactions        []txSummary       `json:"transactions"`
		Txid                string            `json:"txid"`
		Vout                []json.RawMessage `json:"vout"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		in.logger.Warn("ingest: undecodable frame", "error", err, "bytes", len(frame))
		return
	}

	switch {
	case len(probe.AddressTransactions) > 0:
		in.handleAddressTransactions(probe.AddressTransactions)

	case probe.Txid != "" && len(probe.Vout) > 0:
		var tx explorer.Tx
		if err := json.Unmarshal(frame, &tx); err != nil {
			in.logger.Warn("ingest: bad transaction frame", "error", err)
			return
		}
		in.handleTx(&tx, domain.DetectedByWebsocket)

	case len(probe.Transactions) > 0:
		in.handleSummaries(probe.Transactions)
	}
	// Everything else (blocks, mempool-blocks, stats) carries no deposits.
}

// handleAddressTransactions processes the payload of a tracked address. The
// explorer sends a list; some deployments push a single object.
func (in *Ingester) handleAddressTransactions(payload json.RawMessage) {
	var txs []explorer.Tx
	if err := json.Unmarshal(payload, &txs); err != nil {
		var single explorer.Tx
		if err := json.Unmarshal(payload, &single); err != nil {
			in.logger.Warn("ingest: bad address-transactions payload", "error", err)
			return
		}
		txs = []explorer.Tx{single}
	}
	for i := range txs {
		in.handleTx(&txs[i], domain.DetectedByWebsocket)
	}
}

// handleSummaries hydrates bulk summaries over REST. Only unseen txids are
// fetched; the explorer client bounds each lookup with its request timeout.
func (in *Ingester) handleSummaries(summaries []txSummary) {
	for _, s := range summaries {
		if s.Txid == "" || in.alreadySeen(s.Txid) {
			continue
		}
		tx, err := in.client.Tx(context.Background(), s.Txid)
		if err != nil {
			in.logger.Warn("ingest: hydrate summary failed", "txid", s.Txid, "error", err)
			continue
		}
		in.handleTx(tx, domain.DetectedByWebsocket)
	}
}

// handleTx emits a deposit event when the transaction pays a monitored vault
// address. The first matching vault output wins; outputs to that address are
// summed.
func (in *Ingester) handleTx(tx *explorer.Tx, source domain.DetectionSource) {
	if tx.Txid == "" || in.alreadySeen(tx.Txid) {
		return
	}

	vault := in.matchVault(tx)
	if vault == "" {
		return
	}
	amount, _ := tx.OutputTo(vault)
	if amount == 0 {
		return
	}

	in.emit(tx, vault, amount, source, confirmationsOf(tx, 0))
}

// matchVault returns the first output address belonging to a monitored vault.
func (in *Ingester) matchVault(tx *explorer.Tx) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, out := range tx.Vout {
		if out.ScriptpubkeyAddress == "" {
			continue
		}
		if _, ok := in.monitored[out.ScriptpubkeyAddress]; ok {
			return out.ScriptpubkeyAddress
		}
	}
	return ""
}

// emit ships the event if the pipeline has room, marking the txid seen only
// on success so a dropped event stays eligible for backfill.
func (in *Ingester) emit(tx *explorer.Tx, vault string, amount int64, source domain.DetectionSource, confirmations int) bool {
	raw, _ := json.Marshal(tx)
	ev := domain.DepositEvent{
		Txid:          tx.Txid,
		ToAddress:     vault,
		Amount:        amount,
		FromAddress:   tx.FromAddress(),
		Fee:           tx.Fee,
		Confirmed:     tx.Status.Confirmed,
		Confirmations: confirmations,
		DetectedBy:    source,
		Raw:           raw,
	}
	if tx.Status.Confirmed {
		height := tx.Status.BlockHeight
		hash := tx.Status.BlockHash
		ev.BlockHeight = &height
		if hash != "" {
			ev.BlockHash = &hash
		}
	}

	select {
	case in.events <- ev:
		in.markSeen(tx.Txid)
		in.logger.Info("deposit detected",
			"txid", tx.Txid, "vault", vault, "amount", amount,
			"confirmed", ev.Confirmed, "via", source)
		return true
	default:
		in.logger.Warn("ingest: event buffer full, deposit deferred to backfill",
			"txid", tx.Txid, "vault", vault)
		return false
	}
}

// confirmationsOf maps a tx status to a confirmation count. With no tip
// height available a confirmed tx counts as 1, matching what the deposit
// record stores before the confirmation sweep refreshes it.
func confirmationsOf(tx *explorer.Tx, tip int64) int {
	if !tx.Status.Confirmed {
		return 0
	}
	if tip <= 0 || tx.Status.BlockHeight <= 0 {
		return 1
	}
	conf := tip - tx.Status.BlockHeight + 1
	if conf < 1 {
		conf = 1
	}
	return int(conf)
}

// ──────────────────────────────────────────────────────────────────────────────
// REST backfill
// ──────────────────────────────────────────────────────────────────────────────

// Backfill scans the recent history of every monitored address over REST and
// emits events for unseen deposits. Covers websocket downtime and events
// dropped on a full buffer. Returns the number of deposits emitted.
func (in *Ingester) Backfill(ctx context.Context) (int, error) {
	addrs := in.Monitored()
	if len(addrs) == 0 {
		return 0, nil
	}

	tip, err := in.client.TipHeight(ctx)
	if err != nil {
		in.logger.Warn("ingest: backfill tip height unavailable", "error", err)
		tip = 0
	}

	emitted := 0
	for _, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}

		txs, err := in.client.AddressTxs(ctx, addr)
		if err != nil {
			in.logger.Warn("ingest: backfill address scan failed", "address", addr, "error", err)
			continue
		}

		for i := range txs {
			tx := &txs[i]
			if tx.Txid == "" || in.alreadySeen(tx.Txid) {
				continue
			}
			amount, ok := tx.OutputTo(addr)
			if !ok || amount == 0 {
				continue
			}
			if in.emit(tx, addr, amount, domain.DetectedByRest, confirmationsOf(tx, tip)) {
				emitted++
			}
		}
	}
	return emitted, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Seen-txid dedupe
// ──────────────────────────────────────────────────────────────────────────────

func (in *Ingester) alreadySeen(txid string) bool {
	in.seenMu.Lock()
	defer in.seenMu.Unlock()
	_, ok := in.seen[txid]
	return ok
}

// markSeen records a txid, evicting the oldest entries beyond the cap so the
// set cannot grow without bound on a busy chain.
func (in *Ingester) markSeen(txid string) {
	in.seenMu.Lock()
	defer in.seenMu.Unlock()
	if _, ok := in.seen[txid]; ok {
		return
	}
	in.seen[txid] = struct{}{}
	in.seenQ = append(in.seenQ, txid)
	for len(in.seenQ) > in.seenCap {
		oldest := in.seenQ[0]
		in.seenQ = in.seenQ[1:]
		delete(in.seen, oldest)
	}
}
