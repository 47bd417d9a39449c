package explorer_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
)

// ── Mock esplora servers ──────────────────────────────────────────────────────

const testTxJSON = `{
	"txid": "a1075db55d416d3ca199f55b6084e2115b9345e16c5cf302fc80e9d5fbf5d48d",
	"vin": [
		{"txid": "0437cd7f8525ceed2324359c2d0ba26006d92d856a9c20fa0241106ee5a597c9", "vout": 0,
		 "prevout": {"scriptpubkey_address": "tb1qsender0000000000000000000000000000000000", "value": 160000}}
	],
	"vout": [
		{"scriptpubkey_address": "tb1qvault00000000000000000000000000000000000", "scriptpubkey_type": "v0_p2wpkh", "value": 100000},
		{"scriptpubkey_address": "tb1qchange0000000000000000000000000000000000", "scriptpubkey_type": "v0_p2wpkh", "value": 55000}
	],
	"fee": 5000,
	"status": {"confirmed": true, "block_height": 880120, "block_hash": "0000000000000000000266a8d814c2f1b9df3d8e9a1f6ba60b6a32b26b6d4a10", "block_time": 1735689600}
}`

func mockJSON(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

func mockText(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func buildClient(primaryURL, secondaryURL, network string) *explorer.Client {
	return explorer.NewClient(&config.ExplorerConfig{
		Network:          network,
		MempoolAPI:       primaryURL,
		BlockstreamAPI:   secondaryURL,
		RequestTimeout:   3 * time.Second,
		BroadcastTimeout: 3 * time.Second,
	})
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestClient_Tx(t *testing.T) {
	srv := httptest.NewServer(mockJSON(testTxJSON))
	defer srv.Close()

	c := buildClient(srv.URL, srv.URL, config.NetworkTestnet)
	tx, err := c.Tx(context.Background(), "a1075db55d416d3ca199f55b6084e2115b9345e16c5cf302fc80e9d5fbf5d48d")
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}

	if tx.Txid != "a1075db55d416d3ca199f55b6084e2115b9345e16c5cf302fc80e9d5fbf5d48d" {
		t.Errorf("txid = %s", tx.Txid)
	}
	if got := tx.FromAddress(); got != "tb1qsender0000000000000000000000000000000000" {
		t.Errorf("FromAddress = %q", got)
	}
	amount, ok := tx.OutputTo("tb1qvault00000000000000000000000000000000000")
	if !ok || amount != 100000 {
		t.Errorf("OutputTo vault = %d, %v; want 100000, true", amount, ok)
	}
	if _, ok := tx.OutputTo("tb1qunrelated"); ok {
		t.Error("OutputTo should not match an address absent from vout")
	}
	if !tx.Status.Confirmed || tx.Status.BlockHeight != 880120 {
		t.Errorf("status = %+v", tx.Status)
	}
	if tx.Fee != 5000 {
		t.Errorf("fee = %d, want 5000", tx.Fee)
	}
}

func TestClient_Tx_NotFound(t *testing.T) {
	srv := httptest.NewServer(mockText(http.StatusNotFound, "Transaction not found"))
	defer srv.Close()

	c := buildClient(srv.URL, srv.URL, config.NetworkTestnet)
	_, err := c.Tx(context.Background(), "deadbeef")
	if !errors.Is(err, domain.ErrTxNotFound) {
		t.Fatalf("want ErrTxNotFound, got %v", err)
	}
}

func TestClient_Tx_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(mockText(http.StatusBadGateway, "bad gateway"))
	defer srv.Close()

	c := buildClient(srv.URL, srv.URL, config.NetworkTestnet)
	_, err := c.Tx(context.Background(), "deadbeef")
	if !errors.Is(err, domain.ErrExplorerUnavailable) {
		t.Fatalf("want ErrExplorerUnavailable, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("explorer 5xx should be retryable")
	}
}

func TestClient_AddressUTXOs(t *testing.T) {
	srv := httptest.NewServer(mockJSON(`[
		{"txid": "tx1", "vout": 0, "value": 60000, "status": {"confirmed": true, "block_height": 880100}},
		{"txid": "tx2", "vout": 1, "value": 15000, "status": {"confirmed": false}}
	]`))
	defer srv.Close()

	c := buildClient(srv.URL, srv.URL, config.NetworkTestnet)
	utxos, err := c.AddressUTXOs(context.Background(), "tb1qvault")
	if err != nil {
		t.Fatalf("AddressUTXOs: %v", err)
	}
	if len(utxos) != 2 {
		t.Fatalf("got %d utxos, want 2", len(utxos))
	}
	if utxos[0].Value != 60000 || !utxos[0].Status.Confirmed {
		t.Errorf("utxo[0] = %+v", utxos[0])
	}
	if utxos[1].Vout != 1 || utxos[1].Status.Confirmed {
		t.Errorf("utxo[1] = %+v", utxos[1])
	}
}

func TestClient_TipHeight(t *testing.T) {
	srv := httptest.NewServer(mockText(http.StatusOK, "880123\n"))
	defer srv.Close()

	c := buildClient(srv.URL, srv.URL, config.NetworkTestnet)
	height, err := c.TipHeight(context.Background())
	if err != nil {
		t.Fatalf("TipHeight: %v", err)
	}
	if height != 880123 {
		t.Errorf("height = %d, want 880123", height)
	}
}

func TestClient_Confirmations(t *testing.T) {
	srv := httptest.NewServer(mockText(http.StatusOK, "880123"))
	defer srv.Close()

	c := buildClient(srv.URL, srv.URL, config.NetworkTestnet)

	// Included at 880120 with tip 880123: 4 confirmations.
	conf, err := c.Confirmations(context.Background(), explorer.TxStatus{Confirmed: true, BlockHeight: 880120})
	if err != nil {
		t.Fatalf("Confirmations: %v", err)
	}
	if conf != 4 {
		t.Errorf("confirmations = %d, want 4", conf)
	}

	conf, err = c.Confirmations(context.Background(), explorer.TxStatus{Confirmed: false})
	if err != nil || conf != 0 {
		t.Errorf("unconfirmed tx: conf=%d err=%v, want 0, nil", conf, err)
	}
}

func TestClient_Broadcast_Primary(t *testing.T) {
	var secondaryHits atomic.Int32

	primary := httptest.NewServer(mockText(http.StatusOK, "c0ffee\n"))
	defer primary.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondaryHits.Add(1)
		_, _ = w.Write([]byte("c0ffee"))
	}))
	defer secondary.Close()

	c := buildClient(primary.URL, secondary.URL, config.NetworkTestnet)
	txid, err := c.Broadcast(context.Background(), "0200000001...")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid != "c0ffee" {
		t.Errorf("txid = %q", txid)
	}
	if secondaryHits.Load() != 0 {
		t.Error("secondary endpoint should not be called when primary succeeds")
	}
}

func TestClient_Broadcast_FallsBackToSecondary(t *testing.T) {
	primary := httptest.NewServer(mockText(http.StatusServiceUnavailable, "overloaded"))
	defer primary.Close()
	secondary := httptest.NewServer(mockText(http.StatusOK, "c0ffee"))
	defer secondary.Close()

	c := buildClient(primary.URL, secondary.URL, config.NetworkTestnet)
	txid, err := c.Broadcast(context.Background(), "0200000001...")
	if err != nil {
		t.Fatalf("Broadcast should fall back to secondary: %v", err)
	}
	if txid != "c0ffee" {
		t.Errorf("txid = %q", txid)
	}
}

func TestClient_Broadcast_RejectionIsPermanent(t *testing.T) {
	reject := httptest.NewServer(mockText(http.StatusBadRequest, `sendrawtransaction RPC error: {"code":-26,"message":"dust"}`))
	defer reject.Close()

	c := buildClient(reject.URL, reject.URL, config.NetworkTestnet)
	_, err := c.Broadcast(context.Background(), "0200000001...")
	if !errors.Is(err, domain.ErrBroadcastRejected) {
		t.Fatalf("want ErrBroadcastRejected, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Error("an explorer rejection must not be retryable")
	}
}

func TestClient_Broadcast_OutageIsRetryable(t *testing.T) {
	down := httptest.NewServer(mockText(http.StatusBadGateway, "bad gateway"))
	defer down.Close()

	c := buildClient(down.URL, down.URL, config.NetworkTestnet)
	_, err := c.Broadcast(context.Background(), "0200000001...")
	if !errors.Is(err, domain.ErrBroadcastFailed) {
		t.Fatalf("want ErrBroadcastFailed, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("an explorer outage should be retryable")
	}
}

func TestClient_VerifyNetwork(t *testing.T) {
	testnetGenesis := chaincfg.TestNet3Params.GenesisHash.String()

	good := httptest.NewServer(mockText(http.StatusOK, testnetGenesis+"\n"))
	defer good.Close()

	c := buildClient(good.URL, good.URL, config.NetworkTestnet)
	if err := c.VerifyNetwork(context.Background()); err != nil {
		t.Fatalf("VerifyNetwork on matching chain: %v", err)
	}

	// Same endpoint checked against mainnet expectations must fail.
	c = buildClient(good.URL, good.URL, config.NetworkMainnet)
	err := c.VerifyNetwork(context.Background())
	if !errors.Is(err, domain.ErrWrongNetwork) {
		t.Fatalf("want ErrWrongNetwork, got %v", err)
	}
	t.Logf("network mismatch detected: %v", err)
}
