package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
)

const testVault = "tb1qvault00000000000000000000000000000000000"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	txs     map[string]*explorer.Tx
	history map[string][]explorer.Tx
	tip     int64
}

func (f *fakeFetcher) Tx(_ context.Context, txid string) (*explorer.Tx, error) {
	tx, ok := f.txs[txid]
	if !ok {
		return nil, domain.ErrTxNotFound
	}
	return tx, nil
}

func (f *fakeFetcher) AddressTxs(_ context.Context, address string) ([]explorer.Tx, error) {
	return f.history[address], nil
}

func (f *fakeFetcher) TipHeight(_ context.Context) (int64, error) {
	return f.tip, nil
}

func vaultTx(txid string, amount int64, confirmed bool, height int64) explorer.Tx {
	tx := explorer.Tx{
		Txid: txid,
		Vin: []explorer.Vin{{
			Prevout: &explorer.Vout{ScriptpubkeyAddress: "tb1qsender", Value: amount + 7000},
		}},
		Vout: []explorer.Vout{
			{ScriptpubkeyAddress: testVault, Value: amount},
			{ScriptpubkeyAddress: "tb1qchange", Value: 2000},
		},
		Fee: 5000,
	}
	if confirmed {
		tx.Status = explorer.TxStatus{Confirmed: true, BlockHeight: height, BlockHash: "00000000deadbeef"}
	}
	return tx
}

func newTestIngester(f TxFetcher) *Ingester {
	in := NewIngester(f, discardLogger())
	in.Track(testVault)
	return in
}

func recvEvent(t *testing.T, in *Ingester) domain.DepositEvent {
	t.Helper()
	select {
	case ev := <-in.Events():
		return ev
	default:
		t.Fatal("expected a deposit event")
		return domain.DepositEvent{}
	}
}

func requireNoEvent(t *testing.T, in *Ingester) {
	t.Helper()
	select {
	case ev := <-in.Events():
		t.Fatalf("unexpected event for txid %s", ev.Txid)
	default:
	}
}

// ── Frame dispatch ────────────────────────────────────────────────────────────

func TestHandleFrame_AddressTransactions(t *testing.T) {
	in := newTestIngester(&fakeFetcher{})

	tx := vaultTx("tx-addr-1", 100000, false, 0)
	payload, _ := json.Marshal([]explorer.Tx{tx})
	frame := []byte(fmt.Sprintf(`{"address":%q,"address-transactions":%s}`, testVault, payload))

	in.HandleFrame(frame)

	ev := recvEvent(t, in)
	if ev.Txid != "tx-addr-1" || ev.ToAddress != testVault {
		t.Errorf("event = %+v", ev)
	}
	if ev.Amount != 100000 {
		t.Errorf("amount = %d, want 100000", ev.Amount)
	}
	if ev.FromAddress != "tb1qsender" {
		t.Errorf("from = %q", ev.FromAddress)
	}
	if ev.DetectedBy != domain.DetectedByWebsocket {
		t.Errorf("detected_by = %s", ev.DetectedBy)
	}
	if ev.Confirmed || ev.Confirmations != 0 {
		t.Errorf("mempool deposit should be unconfirmed, got %+v", ev)
	}
	if len(ev.Raw) == 0 {
		t.Error("raw payload should be preserved")
	}
}

func TestHandleFrame_SingleObjectAddressTransactions(t *testing.T) {
	in := newTestIngester(&fakeFetcher{})

	tx := vaultTx("tx-addr-obj", 70000, false, 0)
	payload, _ := json.Marshal(tx)
	frame := []byte(fmt.Sprintf(`{"address":%q,"address-transactions":%s}`, testVault, payload))

	in.HandleFrame(frame)

	ev := recvEvent(t, in)
	if ev.Txid != "tx-addr-obj" || ev.Amount != 70000 {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandleFrame_DirectTx(t *testing.T) {
	in := newTestIngester(&fakeFetcher{})

	tx := vaultTx("tx-direct", 25000, true, 880120)
	frame, _ := json.Marshal(tx)

	in.HandleFrame(frame)

	ev := recvEvent(t, in)
	if ev.Txid != "tx-direct" || !ev.Confirmed {
		t.Errorf("event = %+v", ev)
	}
	if ev.Confirmations != 1 {
		t.Errorf("confirmations without tip = %d, want 1", ev.Confirmations)
	}
	if ev.BlockHeight == nil || *ev.BlockHeight != 880120 {
		t.Errorf("block height = %v", ev.BlockHeight)
	}
}

func TestHandleFrame_DuplicateTxidEmitsOnce(t *testing.T) {
	in := newTestIngester(&fakeFetcher{})

	tx := vaultTx("tx-dup", 50000, false, 0)
	frame, _ := json.Marshal(tx)

	in.HandleFrame(frame)
	in.HandleFrame(frame)

	recvEvent(t, in)
	requireNoEvent(t, in)
}

func TestHandleFrame_BulkSummariesHydrated(t *testing.T) {
	tx := vaultTx("tx-bulk", 30000, false, 0)
	in := newTestIngester(&fakeFetcher{txs: map[string]*explorer.Tx{"tx-bulk": &tx}})

	in.HandleFrame([]byte(`{"transactions":[{"txid":"tx-bulk"},{"txid":"tx-unknown"}]}`))

	ev := recvEvent(t, in)
	if ev.Txid != "tx-bulk" || ev.Amount != 30000 {
		t.Errorf("event = %+v", ev)
	}
	requireNoEvent(t, in)
}

func TestHandleFrame_IgnoresControlAndGarbage(t *testing.T) {
	in := newTestIngester(&fakeFetcher{})

	frames := [][]byte{
		[]byte(`{"block":{"height":880123}}`),
		[]byte(`{"mempool-blocks":[{"nTx":1200}]}`),
		[]byte(`{"mempoolInfo":{"size":48211}}`),
		[]byte(`not json at all`),
		[]byte(`{}`),
	}
	for _, f := range frames {
		in.HandleFrame(f)
	}
	requireNoEvent(t, in)
}

func TestHandleFrame_UnmonitoredAddress(t *testing.T) {
	in := newTestIngester(&fakeFetcher{})

	tx := explorer.Tx{
		Txid: "tx-other",
		Vout: []explorer.Vout{{ScriptpubkeyAddress: "tb1qsomeoneelse", Value: 90000}},
	}
	frame, _ := json.Marshal(tx)

	in.HandleFrame(frame)
	requireNoEvent(t, in)
}

// ── Backfill ──────────────────────────────────────────────────────────────────

func TestBackfill(t *testing.T) {
	seen := vaultTx("tx-seen", 40000, true, 880100)
	fresh := vaultTx("tx-fresh", 80000, true, 880120)
	f := &fakeFetcher{
		history: map[string][]explorer.Tx{testVault: {seen, fresh}},
		tip:     880123,
	}
	in := newTestIngester(f)
	in.markSeen("tx-seen")

	emitted, err := in.Backfill(context.Background())
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if emitted != 1 {
		t.Fatalf("emitted = %d, want 1", emitted)
	}

	ev := recvEvent(t, in)
	if ev.Txid != "tx-fresh" {
		t.Errorf("txid = %s", ev.Txid)
	}
	if ev.DetectedBy != domain.DetectedByRest {
		t.Errorf("detected_by = %s, want rest", ev.DetectedBy)
	}
	// Included at 880120 against tip 880123: 4 confirmations.
	if ev.Confirmations != 4 {
		t.Errorf("confirmations = %d, want 4", ev.Confirmations)
	}
	requireNoEvent(t, in)
}

func TestBackfill_RedetectsDroppedEvents(t *testing.T) {
	tx := vaultTx("tx-drop", 60000, false, 0)
	f := &fakeFetcher{history: map[string][]explorer.Tx{testVault: {tx}}}

	in := NewIngester(f, discardLogger())
	in.events = make(chan domain.DepositEvent, 1)
	in.Track(testVault)

	filler := vaultTx("tx-filler", 10000, false, 0)
	fillerFrame, _ := json.Marshal(filler)
	dropFrame, _ := json.Marshal(tx)

	in.HandleFrame(fillerFrame) // fills the 1-slot buffer
	in.HandleFrame(dropFrame)   // dropped, must stay unseen

	if in.alreadySeen("tx-drop") {
		t.Fatal("a dropped event must not be marked seen")
	}

	recvEvent(t, in) // drain the filler
	emitted, err := in.Backfill(context.Background())
	if err != nil || emitted != 1 {
		t.Fatalf("backfill after drop: emitted=%d err=%v", emitted, err)
	}
	ev := recvEvent(t, in)
	if ev.Txid != "tx-drop" {
		t.Errorf("txid = %s", ev.Txid)
	}
}

// ── Tracking and dedupe bookkeeping ───────────────────────────────────────────

func TestTrack(t *testing.T) {
	in := NewIngester(&fakeFetcher{}, discardLogger())

	var notified []string
	in.SetTracker(func(addr string) { notified = append(notified, addr) })

	in.Track("tb1qa", "tb1qb", "tb1qa", "")
	in.Track("tb1qb")

	if len(notified) != 2 {
		t.Errorf("tracker notified %d times, want 2: %v", len(notified), notified)
	}
	if !in.IsMonitored("tb1qa") || !in.IsMonitored("tb1qb") {
		t.Error("tracked addresses should be monitored")
	}
	if got := len(in.Monitored()); got != 2 {
		t.Errorf("monitored = %d, want 2", got)
	}

	in.Untrack("tb1qa")
	if in.IsMonitored("tb1qa") {
		t.Error("untracked address still monitored")
	}
}

func TestSeenSetEviction(t *testing.T) {
	in := NewIngester(&fakeFetcher{}, discardLogger())
	in.seenCap = 2

	in.markSeen("t1")
	in.markSeen("t2")
	in.markSeen("t3")

	if in.alreadySeen("t1") {
		t.Error("oldest txid should have been evicted")
	}
	if !in.alreadySeen("t2") || !in.alreadySeen("t3") {
		t.Error("recent txids must survive eviction")
	}
}
