package keyvault

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
)

func testMasterKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestVault_RoundTrip(t *testing.T) {
	v, err := New(testMasterKey())
	require.NoError(t, err)

	plaintext := []byte("cVt4o7BGAig1UXywgGSmARhxMdzP5qvQsxKkSsc1XEkw3tDTQFpy")
	blob, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotContains(t, blob, string(plaintext))

	got, err := v.Decrypt(blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	// Every encryption draws a fresh nonce.
	blob2, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, blob, blob2)
}

func TestVault_TamperDetection(t *testing.T) {
	v, err := New(testMasterKey())
	require.NoError(t, err)

	blob, err := v.Encrypt([]byte("secret-wif"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = v.Decrypt(tampered)
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrCiphertextInvalid),
		"tampered blob must fail with the integrity sentinel, got %v", err)

	_, err = v.Decrypt("not base64 at all!!!")
	require.True(t, errors.Is(err, domain.ErrCiphertextInvalid))

	_, err = v.Decrypt(base64.StdEncoding.EncodeToString([]byte("tiny")))
	require.True(t, errors.Is(err, domain.ErrCiphertextInvalid))
}

func TestVault_WrongKeyFails(t *testing.T) {
	v1, err := New(testMasterKey())
	require.NoError(t, err)
	v2, err := New(bytes.Repeat([]byte{0x24}, 32))
	require.NoError(t, err)

	blob, err := v1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = v2.Decrypt(blob)
	require.True(t, errors.Is(err, domain.ErrCiphertextInvalid))
}

func TestNew_RejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := New(bytes.Repeat([]byte{1}, n))
		require.Truef(t, errors.Is(err, domain.ErrMasterKeyInvalid), "len %d should be rejected", n)
	}
}

func TestZero(t *testing.T) {
	buf := []byte("sensitive")
	Zero(buf)
	require.Equal(t, bytes.Repeat([]byte{0}, len(buf)), buf)
}

func TestGenerateVaultKey(t *testing.T) {
	cases := []struct {
		network    string
		wantPrefix string
	}{
		{config.NetworkTestnet, "tb1"},
		{config.NetworkMainnet, "bc1"},
	}
	for _, c := range cases {
		key, err := GenerateVaultKey(c.network)
		require.NoError(t, err)
		require.Truef(t, strings.HasPrefix(key.Address, c.wantPrefix),
			"%s address %q should start with %s", c.network, key.Address, c.wantPrefix)
		require.Equal(t, domain.AddressTypeSegwit, key.AddressType)

		wif, err := btcutil.DecodeWIF(key.WIF)
		require.NoError(t, err)
		require.True(t, wif.IsForNet(NetParams(c.network)), "wif should match its network")
		require.True(t, wif.CompressPubKey)

		// The address must bind to the key that was returned.
		pubHash := btcutil.Hash160(wif.SerializePubKey())
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubHash, NetParams(c.network))
		require.NoError(t, err)
		require.Equal(t, key.Address, addr.EncodeAddress())
	}
}
