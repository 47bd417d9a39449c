// Package explorer talks to esplora-compatible block explorers (mempool.space,
// blockstream.info). The REST client covers transaction lookups, UTXO sets and
// broadcasting; the Listener maintains the mempool.space websocket feed.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
)

const userAgent = "dicevault/1.0"

// ──────────────────────────────────────────────────────────────────────────────
// Esplora wire types
// ──────────────────────────────────────────────────────────────────────────────

// TxStatus is the confirmation block of an esplora transaction.
//
//	{"confirmed":true,"block_height":880123,"block_hash":"000...","block_time":1735689600}
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

// Vout is a transaction output. Value is in satoshis.
type Vout struct {
	ScriptpubkeyAddress string `json:"scriptpubkey_address"`
	ScriptpubkeyType    string `json:"scriptpubkey_type"`
	Value               int64  `json:"value"`
}

// Vin is a transaction input with its previous output expanded.
type Vin struct {
	Txid    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Prevout *Vout  `json:"prevout"`
}

// Tx is an esplora transaction.
type Tx struct {
	Txid   string   `json:"txid"`
	Vin    []Vin    `json:"vin"`
	Vout   []Vout   `json:"vout"`
	Fee    int64    `json:"fee"`
	Status TxStatus `json:"status"`
}

// FromAddress returns the first input's previous output address, or "" when
// the input set is empty or coinbase-shaped.
func (t *Tx) FromAddress() string {
	if len(t.Vin) == 0 || t.Vin[0].Prevout == nil {
		return ""
	}
	return t.Vin[0].Prevout.ScriptpubkeyAddress
}

// OutputTo returns the satoshis the transaction pays to addr across all
// outputs, and whether any output matched.
func (t *Tx) OutputTo(addr string) (int64, bool) {
	var total int64
	found := false
	for _, out := range t.Vout {
		if out.ScriptpubkeyAddress == addr {
			total += out.Value
			found = true
		}
	}
	return total, found
}

// UTXO is an unspent output of an address.
type UTXO struct {
	Txid   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status TxStatus `json:"status"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Client
// ──────────────────────────────────────────────────────────────────────────────

// Client is an esplora REST client with a primary endpoint (mempool.space)
// and a secondary fallback (blockstream.info) used for broadcasting.
type Client struct {
	primary   string
	secondary string
	network   string

	api       *http.Client
	broadcast *http.Client
}

// NewClient constructs a Client from the explorer config.
func NewClient(cfg *config.ExplorerConfig) *Client {
	return &Client{
		primary:   strings.TrimRight(cfg.MempoolAPI, "/"),
		secondary: strings.TrimRight(cfg.BlockstreamAPI, "/"),
		network:   cfg.Network,
		api:       &http.Client{Timeout: cfg.RequestTimeout},
		broadcast: &http.Client{Timeout: cfg.BroadcastTimeout},
	}
}

// Tx fetches a transaction by id.
//
//	GET /tx/{txid}
func (c *Client) Tx(ctx context.Context, txid string) (*Tx, error) {
	body, err := c.doGet(ctx, c.primary+"/tx/"+txid)
	if err != nil {
		return nil, fmt.Errorf("explorer.Tx: %w", err)
	}
	var tx Tx
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("explorer.Tx: parse: %w", err)
	}
	return &tx, nil
}

// AddressUTXOs fetches the unspent outputs of an address.
//
//	GET /address/{address}/utxo
func (c *Client) AddressUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	body, err := c.doGet(ctx, c.primary+"/address/"+address+"/utxo")
	if err != nil {
		return nil, fmt.Errorf("explorer.AddressUTXOs: %w", err)
	}
	var utxos []UTXO
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("explorer.AddressUTXOs: parse: %w", err)
	}
	return utxos, nil
}

// AddressTxs fetches the recent transaction history of an address. Used to
// backfill deposits that landed while the websocket was down.
//
//	GET /address/{address}/txs
func (c *Client) AddressTxs(ctx context.Context, address string) ([]Tx, error) {
	body, err := c.doGet(ctx, c.primary+"/address/"+address+"/txs")
	if err != nil {
		return nil, fmt.Errorf("explorer.AddressTxs: %w", err)
	}
	var txs []Tx
	if err := json.Unmarshal(body, &txs); err != nil {
		return nil, fmt.Errorf("explorer.AddressTxs: parse: %w", err)
	}
	return txs, nil
}

// TipHeight returns the current chain tip height.
//
//	GET /blocks/tip/height
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	body, err := c.doGet(ctx, c.primary+"/blocks/tip/height")
	if err != nil {
		return 0, fmt.Errorf("explorer.TipHeight: %w", err)
	}
	height, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("explorer.TipHeight: parse %q: %w", string(body), err)
	}
	return height, nil
}

// Confirmations computes the confirmation count for a transaction status
// against the current tip. Unconfirmed transactions report 0.
func (c *Client) Confirmations(ctx context.Context, status TxStatus) (int64, error) {
	if !status.Confirmed {
		return 0, nil
	}
	tip, err := c.TipHeight(ctx)
	if err != nil {
		return 0, err
	}
	conf := tip - status.BlockHeight + 1
	if conf < 1 {
		conf = 1
	}
	return conf, nil
}

// Broadcast submits a raw transaction and returns the txid the explorer
// reports. The primary endpoint is tried first, the secondary on failure.
// A rejection (HTTP 4xx) from the last endpoint tried is permanent; anything
// else is retryable.
//
//	POST /tx, body = raw hex, response = plain-text txid
func (c *Client) Broadcast(ctx context.Context, rawHex string) (string, error) {
	txid, primaryErr := c.broadcastTo(ctx, c.primary, rawHex)
	if primaryErr == nil {
		return txid, nil
	}

	txid, secondaryErr := c.broadcastTo(ctx, c.secondary, rawHex)
	if secondaryErr == nil {
		return txid, nil
	}

	if isRejection(primaryErr) || isRejection(secondaryErr) {
		return "", fmt.Errorf("explorer.Broadcast: primary: %v; secondary: %v: %w",
			primaryErr, secondaryErr, domain.ErrBroadcastRejected)
	}
	return "", fmt.Errorf("explorer.Broadcast: primary: %v; secondary: %v: %w",
		primaryErr, secondaryErr, domain.ErrBroadcastFailed)
}

// VerifyNetwork probes both REST endpoints for the genesis block hash and
// compares it against the configured network. Catches a mainnet service
// pointed at a testnet explorer before any funds move.
//
//	GET /block-height/0, response = plain-text block hash
func (c *Client) VerifyNetwork(ctx context.Context) error {
	want := genesisHash(c.network)
	for _, base := range []string{c.primary, c.secondary} {
		body, err := c.doGet(ctx, base+"/block-height/0")
		if err != nil {
			return fmt.Errorf("explorer.VerifyNetwork: %s: %w", base, err)
		}
		got := strings.TrimSpace(string(body))
		if got != want {
			return fmt.Errorf("explorer.VerifyNetwork: %s serves genesis %s, want %s (%s): %w",
				base, got, want, c.network, domain.ErrWrongNetwork)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helpers
// ──────────────────────────────────────────────────────────────────────────────

// statusError carries the HTTP status of a failed explorer call so broadcast
// failures can be classified as rejected vs unavailable.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

func isRejection(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 400 && se.code < 500
	}
	return false
}

// doGet performs an HTTP GET and returns the body bytes. Non-200 statuses
// are errors; 404 maps to domain.ErrTxNotFound, 5xx and transport failures
// to domain.ErrExplorerUnavailable.
func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %v: %w", err, domain.ErrExplorerUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrTxNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, domain.ErrExplorerUnavailable)
	default:
		return nil, &statusError{code: resp.StatusCode, body: truncate(string(body), 160)}
	}
}

// broadcastTo POSTs raw hex to one endpoint's /tx and returns the txid.
func (c *Client) broadcastTo(ctx context.Context, base, rawHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/tx", strings.NewReader(rawHex))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.broadcast.Do(req)
	if err != nil {
		return "", fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &statusError{code: resp.StatusCode, body: truncate(string(body), 160)}
	}
	return strings.TrimSpace(string(body)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// genesisHash returns the expected genesis block hash for a network name.
func genesisHash(network string) string {
	if network == config.NetworkMainnet {
		return chaincfg.MainNetParams.GenesisHash.String()
	}
	return chaincfg.TestNet3Params.GenesisHash.String()
}
