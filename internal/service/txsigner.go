package service

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
)

// transfer describes one signed spend from a vault wallet: the outputs to
// consume, the recipient and an optional change output back to the vault.
// The network fee is implicit: sum(utxos) - amount - change.
type transfer struct {
	wallet *domain.VaultWallet
	utxos  []explorer.UTXO
	to     string
	amount int64
	change int64
}

// signVaultTransfer decrypts the vault's key, assembles the transaction and
// signs every input. Plaintext key material never leaves this call. Returns
// the raw transaction hex ready for broadcast.
func signVaultTransfer(kv *keyvault.Vault, t transfer) (string, error) {
	params := keyvault.NetParams(t.wallet.Network)

	// Esplora UTXO listings carry no scriptPubKey; rebuild it from the
	// vault address.
	vaultAddr, err := btcutil.DecodeAddress(t.wallet.Address, params)
	if err != nil {
		return "", fmt.Errorf("service.signVaultTransfer: vault address %s: %w", t.wallet.Address, domain.ErrInvalidAddress)
	}
	vaultScript, err := txscript.PayToAddrScript(vaultAddr)
	if err != nil {
		return "", fmt.Errorf("service.signVaultTransfer: vault script: %w", err)
	}
	toAddr, err := btcutil.DecodeAddress(t.to, params)
	if err != nil {
		return "", fmt.Errorf("service.signVaultTransfer: recipient %s: %w", t.to, domain.ErrInvalidAddress)
	}
	toScript, err := txscript.PayToAddrScript(toAddr)
	if err != nil {
		return "", fmt.Errorf("service.signVaultTransfer: recipient script: %w", err)
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, u := range t.utxos {
		hash, err := chainhash.NewHashFromStr(u.Txid)
		if err != nil {
			return "", fmt.Errorf("service.signVaultTransfer: utxo txid %s: %w", u.Txid, err)
		}
		op := wire.OutPoint{Hash: *hash, Index: u.Vout}
		txIn := wire.NewTxIn(&op, nil, nil)
		txIn.Sequence = wire.MaxTxInSequenceNum
		msgTx.AddTxIn(txIn)
		fetcher.AddPrevOut(op, &wire.TxOut{Value: u.Value, PkScript: vaultScript})
	}
	msgTx.AddTxOut(wire.NewTxOut(t.amount, toScript))
	if t.change > 0 {
		msgTx.AddTxOut(wire.NewTxOut(t.change, vaultScript))
	}

	wifBytes, err := kv.Decrypt(t.wallet.EncryptedPrivateKey)
	if err != nil {
		return "", fmt.Errorf("service.signVaultTransfer: %w", err)
	}
	defer keyvault.Zero(wifBytes)

	wif, err := btcutil.DecodeWIF(string(wifBytes))
	if err != nil {
		// Authenticated ciphertext that does not parse as WIF is a corrupt
		// record, not a transient failure.
		return "", fmt.Errorf("service.signVaultTransfer: decode wif: %w", domain.ErrCiphertextInvalid)
	}
	if !wif.IsForNet(params) {
		return "", fmt.Errorf("service.signVaultTransfer: wif network mismatch: %w", domain.ErrCiphertextInvalid)
	}
	priv := wif.PrivKey
	defer priv.Zero()

	if t.wallet.IsSegwit() {
		sigHashes := txscript.NewTxSigHashes(msgTx, fetcher)
		for i := range msgTx.TxIn {
			witness, err := txscript.WitnessSignature(msgTx, sigHashes, i, t.utxos[i].Value, vaultScript, txscript.SigHashAll, priv, true)
			if err != nil {
				return "", fmt.Errorf("service.signVaultTransfer: sign input %d: %w", i, err)
			}
			msgTx.TxIn[i].Witness = witness
		}
	} else {
		for i := range msgTx.TxIn {
			sigScript, err := txscript.SignatureScript(msgTx, i, vaultScript, txscript.SigHashAll, priv, true)
			if err != nil {
				return "", fmt.Errorf("service.signVaultTransfer: sign input %d: %w", i, err)
			}
			msgTx.TxIn[i].SignatureScript = sigScript
		}
	}

	var buf bytes.Buffer
	if err := msgTx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("service.signVaultTransfer: serialize: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// selectUTXOs picks inputs covering target satoshis (payout plus fee margin).
// A single output that covers the target alone wins; otherwise every output
// is combined. Returns nil when the vault cannot cover the target.
func selectUTXOs(utxos []explorer.UTXO, target int64) ([]explorer.UTXO, int64) {
	for _, u := range utxos {
		if u.Value >= target {
			return []explorer.UTXO{u}, u.Value
		}
	}
	if total := sumUTXOs(utxos); total >= target {
		return utxos, total
	}
	return nil, 0
}

func sumUTXOs(utxos []explorer.UTXO) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
