package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// AddressType selects the script and witness form of a vault address.
type AddressType string

const (
	AddressTypeLegacy  AddressType = "legacy"  // P2PKH
	AddressTypeSegwit  AddressType = "segwit"  // P2WPKH
	AddressTypeTaproot AddressType = "taproot" // P2TR
)

// ──────────────────────────────────────────────────────────────────────────────
// VaultWallet
// ──────────────────────────────────────────────────────────────────────────────

// VaultWallet is a Bitcoin wallet bound to a fixed multiplier. It receives
// deposits and pays winnings from the same key. Chance is the authoritative
// win threshold; the multiplier only sizes the payout. The private key is
// stored envelope-encrypted and never leaves the payout signing path.
type VaultWallet struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Multiplier          float64            `bson:"multiplier" json:"multiplier"`
	Chance              float64            `bson:"chance" json:"chance"`
	Address             string             `bson:"address" json:"address"`
	AddressType         AddressType        `bson:"address_type" json:"address_type"`
	Network             string             `bson:"network" json:"network"`
	EncryptedPrivateKey string             `bson:"encrypted_private_key" json:"-"`
	IsActive            bool               `bson:"is_active" json:"is_active"`
	IsDepleted          bool               `bson:"is_depleted" json:"is_depleted"`
	TotalReceived       int64              `bson:"total_received" json:"total_received"`
	TotalSent           int64              `bson:"total_sent" json:"total_sent"`
	BetCount            int64              `bson:"bet_count" json:"bet_count"`
	Label               string             `bson:"label,omitempty" json:"label,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsSegwit returns true for witness-program address types.
func (w *VaultWallet) IsSegwit() bool {
	return w.AddressType == AddressTypeSegwit || w.AddressType == AddressTypeTaproot
}

// ValidateFairness rejects (chance, multiplier) pairs that hand the bettor a
// positive expected value.
//
// Hard bound (always): chance × multiplier ≤ 100.
// House bound (at creation): chance × multiplier ≤ 100 − houseEdge × 100.
//
// Comparisons run on decimals so a pair like (49.5, 2.02) cannot slip
// through float rounding.
func ValidateFairness(chance, multiplier, houseEdge float64) error {
	if chance <= 0 || chance >= 100 {
		return ErrInvalidChance
	}
	ev := decimal.NewFromFloat(chance).Mul(decimal.NewFromFloat(multiplier))
	if ev.GreaterThan(decimal.NewFromInt(100)) {
		return ErrInvalidChance
	}
	ceiling := decimal.NewFromInt(100).Sub(decimal.NewFromFloat(houseEdge).Mul(decimal.NewFromInt(100)))
	if ev.GreaterThan(ceiling) {
		return ErrInvalidChance
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Request / response shapes
// ──────────────────────────────────────────────────────────────────────────────

// CreateWalletRequest carries the admin inputs for a new vault. Chance is
// optional; when zero the default for the configured house edge is applied.
type CreateWalletRequest struct {
	Multiplier float64 `json:"multiplier" binding:"required,gt=0"`
	Chance     float64 `json:"chance"`
	Label      string  `json:"label"`
}

// UpdateWalletRequest carries the mutable vault fields. Nil means unchanged.
type UpdateWalletRequest struct {
	Chance   *float64 `json:"chance"`
	IsActive *bool    `json:"is_active"`
	Label    *string  `json:"label"`
}

// WalletResponse is the admin-facing view of a vault. LiveBalance is filled
// only when the caller asked for explorer balances.
type WalletResponse struct {
	ID            string      `json:"id"`
	Multiplier    float64     `json:"multiplier"`
	Chance        float64     `json:"chance"`
	Address       string      `json:"address"`
	AddressType   AddressType `json:"address_type"`
	Network       string      `json:"network"`
	IsActive      bool        `json:"is_active"`
	IsDepleted    bool        `json:"is_depleted"`
	TotalReceived int64       `json:"total_received"`
	TotalSent     int64       `json:"total_sent"`
	BetCount      int64       `json:"bet_count"`
	Label         string      `json:"label,omitempty"`
	LiveBalance   *int64      `json:"live_balance,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// ToResponse converts a VaultWallet to its admin response form.
func (w *VaultWallet) ToResponse() WalletResponse {
	return WalletResponse{
		ID:            w.ID.Hex(),
		Multiplier:    w.Multiplier,
		Chance:        w.Chance,
		Address:       w.Address,
		AddressType:   w.AddressType,
		Network:       w.Network,
		IsActive:      w.IsActive,
		IsDepleted:    w.IsDepleted,
		TotalReceived: w.TotalReceived,
		TotalSent:     w.TotalSent,
		BetCount:      w.BetCount,
		Label:         w.Label,
		CreatedAt:     w.CreatedAt,
	}
}

// VaultSummary is the public view of an active vault: just enough for a
// bettor to pick a multiplier and pay.
type VaultSummary struct {
	Multiplier float64 `json:"multiplier"`
	Chance     float64 `json:"chance"`
	Address    string  `json:"address"`
}

// WithdrawRequest moves vault funds to cold storage. Zero values fall back
// to the configured defaults: ToAddress to the cold-storage address, Fee to
// the default network fee, Amount to everything minus the fee.
type WithdrawRequest struct {
	ToAddress string `json:"to_address"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
}

// WithdrawResult reports a broadcast withdrawal.
type WithdrawResult struct {
	Txid      string `json:"txid"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	ToAddress string `json:"to_address"`
}
