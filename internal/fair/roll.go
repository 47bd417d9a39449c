// Package fair implements the provably-fair dice derivation. Everything here
// is pure: the same (server seed, client seed, nonce) triple always produces
// the same roll, and anyone holding the revealed server seed can recompute
// every outcome it governed.
package fair

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ServerSeedBytes is the entropy drawn for a daily server seed. The seed is
// stored and revealed as its 256-character hex encoding; only its SHA-256
// commitment is public before the reveal.
const ServerSeedBytes = 128

var (
	errEmptyServerSeed = errors.New("fair: server seed is empty")
	errEmptyClientSeed = errors.New("fair: client seed is empty")
	errNegativeNonce   = errors.New("fair: nonce is negative")
)

// Roll derives the dice result for one bet.
//
// Derivation:
//
//	H    = HMAC-SHA-512(key = server_seed, msg = "{client_seed}:{nonce}")
//	n    = first 8 hex chars of H, read as an unsigned 32-bit integer
//	roll = (n mod 10000) / 100.0
//
// The result is always in [0.00, 99.99] with exactly two decimals of
// precision.
func Roll(serverSeed, clientSeed string, nonce int64) (float64, error) {
	digest, err := rollDigest(serverSeed, clientSeed, nonce)
	if err != nil {
		return 0, err
	}
	return rollFromDigest(digest)
}

func rollDigest(serverSeed, clientSeed string, nonce int64) (string, error) {
	if serverSeed == "" {
		return "", errEmptyServerSeed
	}
	if clientSeed == "" {
		return "", errEmptyClientSeed
	}
	if nonce < 0 {
		return "", errNegativeNonce
	}
	mac := hmac.New(sha512.New, []byte(serverSeed))
	mac.Write([]byte(clientSeed + ":" + strconv.FormatInt(nonce, 10)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func rollFromDigest(digest string) (float64, error) {
	if len(digest) < 8 {
		return 0, fmt.Errorf("fair: digest too short: %d chars", len(digest))
	}
	n, err := strconv.ParseUint(digest[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("fair: parse digest prefix: %w", err)
	}
	return float64(n%10000) / 100.0, nil
}

// IsWin applies the win predicate: the roll must land strictly below the
// vault's chance threshold.
func IsWin(roll, chance float64) bool {
	return roll < chance
}

// Payout returns floor(amount × multiplier) in satoshis. The floor runs on
// decimals so fractional multipliers cannot drift through float arithmetic.
func Payout(amount int64, multiplier float64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromFloat(multiplier)).
		Floor().
		IntPart()
}

// ChanceForMultiplier computes the default win threshold for a multiplier
// under the given house edge, rounded to two decimals:
//
//	chance = (100 − edge × 100) / multiplier
func ChanceForMultiplier(multiplier, houseEdge float64) float64 {
	if multiplier <= 0 {
		return 0
	}
	chance := decimal.NewFromInt(100).
		Sub(decimal.NewFromFloat(houseEdge).Mul(decimal.NewFromInt(100))).
		Div(decimal.NewFromFloat(multiplier)).
		Round(2)
	f, _ := chance.Float64()
	return f
}

// HashSeed returns the public SHA-256 commitment of a server seed.
func HashSeed(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// NewServerSeed draws a fresh server seed and returns it with its hash.
func NewServerSeed() (seed, hash string, err error) {
	buf := make([]byte, ServerSeedBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("fair: read entropy: %w", err)
	}
	seed = hex.EncodeToString(buf)
	return seed, HashSeed(seed), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────────────────────────────────

// Outcome is the full settlement of one roll.
type Outcome struct {
	Roll   float64
	IsWin  bool
	Payout int64
	Profit int64
}

// Settle rolls and computes the money columns for one bet:
//
//	win:  payout = floor(amount × multiplier), profit = payout − amount
//	loss: payout = 0,                          profit = −amount
func Settle(serverSeed, clientSeed string, nonce, amount int64, multiplier, chance float64) (Outcome, error) {
	roll, err := Roll(serverSeed, clientSeed, nonce)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Roll: roll, IsWin: IsWin(roll, chance)}
	if out.IsWin {
		out.Payout = Payout(amount, multiplier)
		out.Profit = out.Payout - amount
	} else {
		out.Payout = 0
		out.Profit = -amount
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Verification
// ──────────────────────────────────────────────────────────────────────────────

// Verification is the result of an independent fairness check.
type Verification struct {
	Roll      float64 `json:"roll"`
	Digest    string  `json:"digest"`
	HashValid bool    `json:"hash_valid"`
}

// Verify recomputes the roll for the triple and, when expectedHash is
// non-empty, checks the seed against its published commitment.
func Verify(serverSeed, clientSeed string, nonce int64, expectedHash string) (Verification, error) {
	digest, err := rollDigest(serverSeed, clientSeed, nonce)
	if err != nil {
		return Verification{}, err
	}
	roll, err := rollFromDigest(digest)
	if err != nil {
		return Verification{}, err
	}
	v := Verification{Roll: roll, Digest: digest, HashValid: true}
	if expectedHash != "" {
		v.HashValid = HashSeed(serverSeed) == expectedHash
	}
	return v, nil
}
