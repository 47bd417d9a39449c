// Package keyvault encrypts and decrypts vault private keys with a single
// process-wide master key. Plaintext key material exists only in caller-scoped
// buffers: decrypt, build the signing key, zeroize. Nothing here logs.
package keyvault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
)

// Vault performs authenticated encryption over WIF private keys.
type Vault struct {
	aead cipher.AEAD
}

// New builds a Vault from a 32-byte master key (AES-256-GCM).
func New(masterKey []byte) (*Vault, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("keyvault.New: got %d key bytes: %w", len(masterKey), domain.ErrMasterKeyInvalid)
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("keyvault.New: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keyvault.New: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext and returns a base64 blob of nonce||ciphertext.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("keyvault.Encrypt: read nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. The caller owns the returned
// buffer and must Zero it as soon as the signing key is constructed. Any
// tampering fails authentication and is never retryable.
func (v *Vault) Decrypt(blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("keyvault.Decrypt: %w", domain.ErrCiphertextInvalid)
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return nil, fmt.Errorf("keyvault.Decrypt: blob too short: %w", domain.ErrCiphertextInvalid)
	}
	plaintext, err := v.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("keyvault.Decrypt: %w", domain.ErrCiphertextInvalid)
	}
	return plaintext, nil
}

// Zero overwrites a plaintext buffer.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Key generation
// ──────────────────────────────────────────────────────────────────────────────

// GeneratedKey is a freshly drawn vault key pair. WIF is sensitive: encrypt
// it immediately and drop the struct.
type GeneratedKey struct {
	WIF         string
	Address     string
	AddressType domain.AddressType
}

// GenerateVaultKey draws a new secp256k1 key for the given network and
// derives its P2WPKH deposit address.
func GenerateVaultKey(network string) (*GeneratedKey, error) {
	params := NetParams(network)

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("keyvault.GenerateVaultKey: %w", err)
	}
	defer priv.Zero()

	wif, err := btcutil.NewWIF(priv, params, true)
	if err != nil {
		return nil, fmt.Errorf("keyvault.GenerateVaultKey: encode wif: %w", err)
	}

	pubHash := btcutil.Hash160(priv.PubKey().SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubHash, params)
	if err != nil {
		return nil, fmt.Errorf("keyvault.GenerateVaultKey: derive address: %w", err)
	}

	return &GeneratedKey{
		WIF:         wif.String(),
		Address:     addr.EncodeAddress(),
		AddressType: domain.AddressTypeSegwit,
	}, nil
}

// NetParams maps a configured network name onto chain parameters.
func NetParams(network string) *chaincfg.Params {
	if network == config.NetworkMainnet {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}
