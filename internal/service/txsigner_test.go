package service

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/explorer"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
)

// Arbitrary but well-formed txids for fake UTXOs.
const (
	utxoTxidA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	utxoTxidB = "7f83b1657ff1fc53b92dc18148a1d65dfc2d4b1fa3d677284addd200126d9069"
)

func newTestVault(t *testing.T) *keyvault.Vault {
	t.Helper()
	kv, err := keyvault.New(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("keyvault.New: %v", err)
	}
	return kv
}

// newTestWallet generates a fresh testnet vault with its key encrypted under kv.
func newTestWallet(t *testing.T, kv *keyvault.Vault) (*domain.VaultWallet, *keyvault.GeneratedKey) {
	t.Helper()
	key, err := keyvault.GenerateVaultKey(config.NetworkTestnet)
	if err != nil {
		t.Fatalf("GenerateVaultKey: %v", err)
	}
	blob, err := kv.Encrypt([]byte(key.WIF))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return &domain.VaultWallet{
		Multiplier:          2.0,
		Chance:              49.0,
		Address:             key.Address,
		AddressType:         key.AddressType,
		Network:             config.NetworkTestnet,
		EncryptedPrivateKey: blob,
		IsActive:            true,
	}, key
}

func TestSignVaultTransfer_Segwit(t *testing.T) {
	kv := newTestVault(t)
	wallet, _ := newTestWallet(t, kv)
	recipient, _ := newTestWallet(t, kv)

	rawHex, err := signVaultTransfer(kv, transfer{
		wallet: wallet,
		utxos: []explorer.UTXO{
			{Txid: utxoTxidA, Vout: 0, Value: 50_000},
			{Txid: utxoTxidB, Vout: 1, Value: 30_000},
		},
		to:     recipient.Address,
		amount: 60_000,
		change: 19_750, // 80_000 in - 60_000 out - 250 fee
	})
	if err != nil {
		t.Fatalf("signVaultTransfer: %v", err)
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		t.Fatalf("result is not hex: %v", err)
	}
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("result does not deserialize: %v", err)
	}

	if len(tx.TxIn) != 2 {
		t.Errorf("inputs = %d, want 2", len(tx.TxIn))
	}
	if len(tx.TxOut) != 2 {
		t.Errorf("outputs = %d, want 2 (recipient + change)", len(tx.TxOut))
	}
	for i, in := range tx.TxIn {
		if len(in.Witness) == 0 {
			t.Errorf("input %d: segwit spend must carry a witness", i)
		}
		if len(in.SignatureScript) != 0 {
			t.Errorf("input %d: segwit spend must not carry a signature script", i)
		}
	}
	if tx.TxOut[0].Value != 60_000 {
		t.Errorf("recipient value = %d, want 60000", tx.TxOut[0].Value)
	}
	if tx.TxOut[1].Value != 19_750 {
		t.Errorf("change value = %d, want 19750", tx.TxOut[1].Value)
	}
}

func TestSignVaultTransfer_NoChangeOmitsOutput(t *testing.T) {
	kv := newTestVault(t)
	wallet, _ := newTestWallet(t, kv)
	recipient, _ := newTestWallet(t, kv)

	rawHex, err := signVaultTransfer(kv, transfer{
		wallet: wallet,
		utxos:  []explorer.UTXO{{Txid: utxoTxidA, Vout: 0, Value: 10_000}},
		to:     recipient.Address,
		amount: 9_750,
		change: 0,
	})
	if err != nil {
		t.Fatalf("signVaultTransfer: %v", err)
	}
	raw, _ := hex.DecodeString(rawHex)
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(tx.TxOut) != 1 {
		t.Errorf("outputs = %d, want 1 when change is zero", len(tx.TxOut))
	}
}

func TestSignVaultTransfer_Legacy(t *testing.T) {
	kv := newTestVault(t)
	wallet, key := newTestWallet(t, kv)
	recipient, _ := newTestWallet(t, kv)

	// Rebind the same key to its P2PKH form.
	wif, err := btcutil.DecodeWIF(key.WIF)
	if err != nil {
		t.Fatalf("DecodeWIF: %v", err)
	}
	params := keyvault.NetParams(config.NetworkTestnet)
	p2pkh, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(wif.SerializePubKey()), params)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash: %v", err)
	}
	wallet.Address = p2pkh.EncodeAddress()
	wallet.AddressType = domain.AddressTypeLegacy

	rawHex, err := signVaultTransfer(kv, transfer{
		wallet: wallet,
		utxos:  []explorer.UTXO{{Txid: utxoTxidA, Vout: 2, Value: 25_000}},
		to:     recipient.Address,
		amount: 24_000,
		change: 0,
	})
	if err != nil {
		t.Fatalf("signVaultTransfer: %v", err)
	}
	raw, _ := hex.DecodeString(rawHex)
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(tx.TxIn[0].SignatureScript) == 0 {
		t.Error("legacy spend must carry a signature script")
	}
	if len(tx.TxIn[0].Witness) != 0 {
		t.Error("legacy spend must not carry a witness")
	}
}

func TestSignVaultTransfer_NetworkMismatchIsFatal(t *testing.T) {
	kv := newTestVault(t)
	wallet, _ := newTestWallet(t, kv)
	recipient, _ := newTestWallet(t, kv)

	// Swap in a mainnet key under the testnet wallet record.
	mainnetKey, err := keyvault.GenerateVaultKey(config.NetworkMainnet)
	if err != nil {
		t.Fatalf("GenerateVaultKey: %v", err)
	}
	blob, err := kv.Encrypt([]byte(mainnetKey.WIF))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	wallet.EncryptedPrivateKey = blob

	_, err = signVaultTransfer(kv, transfer{
		wallet: wallet,
		utxos:  []explorer.UTXO{{Txid: utxoTxidA, Vout: 0, Value: 10_000}},
		to:     recipient.Address,
		amount: 9_000,
	})
	if !errors.Is(err, domain.ErrCiphertextInvalid) {
		t.Errorf("network mismatch should map to the corrupt-key sentinel, got %v", err)
	}
}

func TestSignVaultTransfer_BadCiphertext(t *testing.T) {
	kv := newTestVault(t)
	wallet, _ := newTestWallet(t, kv)
	recipient, _ := newTestWallet(t, kv)
	wallet.EncryptedPrivateKey = "bm90IGEgcmVhbCBjaXBoZXJ0ZXh0"

	_, err := signVaultTransfer(kv, transfer{
		wallet: wallet,
		utxos:  []explorer.UTXO{{Txid: utxoTxidA, Vout: 0, Value: 10_000}},
		to:     recipient.Address,
		amount: 9_000,
	})
	if !errors.Is(err, domain.ErrCiphertextInvalid) {
		t.Errorf("undecryptable key should fail with the integrity sentinel, got %v", err)
	}
}

func TestSelectUTXOs(t *testing.T) {
	utxos := []explorer.UTXO{
		{Txid: utxoTxidA, Vout: 0, Value: 5_000},
		{Txid: utxoTxidA, Vout: 1, Value: 20_000},
		{Txid: utxoTxidB, Vout: 0, Value: 8_000},
	}

	// Single covering output wins.
	picked, total := selectUTXOs(utxos, 15_000)
	if len(picked) != 1 || picked[0].Value != 20_000 {
		t.Errorf("picked %v, want the single 20000 output", picked)
	}
	if total != 20_000 {
		t.Errorf("total = %d, want 20000", total)
	}

	// No single output covers: combine everything.
	picked, total = selectUTXOs(utxos, 25_000)
	if len(picked) != 3 {
		t.Errorf("picked %d outputs, want all 3", len(picked))
	}
	if total != 33_000 {
		t.Errorf("total = %d, want 33000", total)
	}

	// Vault cannot cover the target.
	picked, total = selectUTXOs(utxos, 50_000)
	if picked != nil || total != 0 {
		t.Errorf("underfunded selection should return nil, got %v / %d", picked, total)
	}

	// Empty vault.
	picked, _ = selectUTXOs(nil, 1)
	if picked != nil {
		t.Errorf("empty utxo set should return nil, got %v", picked)
	}
}
