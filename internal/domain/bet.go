package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// BetStatus represents the current state of a bet.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"   // deposit detected, waiting for confirmations
	BetStatusConfirmed BetStatus = "confirmed" // deposit confirmed, roll not yet settled
	BetStatusRolled    BetStatus = "rolled"    // roll settled, payout in flight (wins only)
	BetStatusPaid      BetStatus = "paid"      // terminal: payout broadcast (win) or no payout owed (loss)
	BetStatusFailed    BetStatus = "failed"    // terminal: payout exhausted its retries
)

// ──────────────────────────────────────────────────────────────────────────────
// Bet
// ──────────────────────────────────────────────────────────────────────────────

// Bet links one deposit to one roll and, for wins, one payout. The seed
// fields are snapshots taken at creation so a bet stays verifiable even
// after the user's seed advances; ServerSeed is snapshotted at roll time.
type Bet struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BetNumber      int64              `bson:"bet_number" json:"bet_number"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserAddress    string             `bson:"user_address" json:"user_address"`
	WalletID       primitive.ObjectID `bson:"wallet_id" json:"wallet_id"`
	TargetAddress  string             `bson:"target_address" json:"target_address"`
	DepositTxid    string             `bson:"deposit_txid,omitempty" json:"deposit_txid"`
	BetAmount      int64              `bson:"bet_amount" json:"bet_amount"`
	Multiplier     float64            `bson:"multiplier" json:"multiplier"`
	Chance         float64            `bson:"chance" json:"chance"`
	Nonce          int64              `bson:"nonce" json:"nonce"`
	ClientSeed     string             `bson:"client_seed" json:"client_seed"`
	ServerSeedHash string             `bson:"server_seed_hash" json:"server_seed_hash"`
	ServerSeed     string             `bson:"server_seed,omitempty" json:"-"`
	SeedDate       string             `bson:"seed_date" json:"seed_date"`
	RollResult     *float64           `bson:"roll_result" json:"roll_result"`
	IsWin          bool               `bson:"is_win" json:"is_win"`
	PayoutAmount   int64              `bson:"payout_amount" json:"payout_amount"`
	Profit         int64              `bson:"profit" json:"profit"`
	PayoutTxid     *string            `bson:"payout_txid" json:"payout_txid"`
	Status         BetStatus          `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	ConfirmedAt    *time.Time         `bson:"confirmed_at" json:"confirmed_at,omitempty"`
	RolledAt       *time.Time         `bson:"rolled_at" json:"rolled_at,omitempty"`
	PaidAt         *time.Time         `bson:"paid_at" json:"paid_at,omitempty"`
}

// IsRolled returns true once the roll is settled. Rolls are write-once: a
// rolled bet must never be rolled again.
func (b *Bet) IsRolled() bool {
	return b.RollResult != nil
}

// IsTerminal returns true when no further state transition is expected.
func (b *Bet) IsTerminal() bool {
	return b.Status == BetStatusPaid || b.Status == BetStatusFailed
}

// TruncatedAddress returns the bettor's address shortened for public feeds.
func (b *Bet) TruncatedAddress() string {
	return truncateAddress(b.UserAddress)
}

func truncateAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:10] + "..."
}

// ──────────────────────────────────────────────────────────────────────────────
// Response shapes
// ──────────────────────────────────────────────────────────────────────────────

// BetResponse is the owner-facing view of a bet: full address, full seed
// commitments, never the raw server seed (that comes from the fairness view
// once the seed date has passed).
type BetResponse struct {
	ID             string     `json:"id"`
	BetNumber      int64      `json:"bet_number"`
	UserAddress    string     `json:"user_address"`
	TargetAddress  string     `json:"target_address"`
	DepositTxid    string     `json:"deposit_txid"`
	BetAmount      int64      `json:"bet_amount"`
	Multiplier     float64    `json:"multiplier"`
	Chance         float64    `json:"chance"`
	Nonce          int64      `json:"nonce"`
	ClientSeed     string     `json:"client_seed"`
	ServerSeedHash string     `json:"server_seed_hash"`
	SeedDate       string     `json:"seed_date"`
	RollResult     *float64   `json:"roll_result"`
	IsWin          bool       `json:"is_win"`
	PayoutAmount   int64      `json:"payout_amount"`
	Profit         int64      `json:"profit"`
	PayoutTxid     *string    `json:"payout_txid"`
	Status         BetStatus  `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	RolledAt       *time.Time `json:"rolled_at,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

// ToResponse converts a Bet to its owner-facing response form.
func (b *Bet) ToResponse() BetResponse {
	return BetResponse{
		ID:             b.ID.Hex(),
		BetNumber:      b.BetNumber,
		UserAddress:    b.UserAddress,
		TargetAddress:  b.TargetAddress,
		DepositTxid:    b.DepositTxid,
		BetAmount:      b.BetAmount,
		Multiplier:     b.Multiplier,
		Chance:         b.Chance,
		Nonce:          b.Nonce,
		ClientSeed:     b.ClientSeed,
		ServerSeedHash: b.ServerSeedHash,
		SeedDate:       b.SeedDate,
		RollResult:     b.RollResult,
		IsWin:          b.IsWin,
		PayoutAmount:   b.PayoutAmount,
		Profit:         b.Profit,
		PayoutTxid:     b.PayoutTxid,
		Status:         b.Status,
		CreatedAt:      b.CreatedAt,
		RolledAt:       b.RolledAt,
		PaidAt:         b.PaidAt,
	}
}

// PublicBetResponse is the anonymised view used by the recent-bets feed.
type PublicBetResponse struct {
	ID           string     `json:"id"`
	BetNumber    int64      `json:"bet_number"`
	UserAddress  string     `json:"user_address"`
	BetAmount    int64      `json:"bet_amount"`
	Multiplier   float64    `json:"multiplier"`
	Chance       float64    `json:"chance"`
	RollResult   *float64   `json:"roll_result"`
	IsWin        bool       `json:"is_win"`
	PayoutAmount int64      `json:"payout_amount"`
	Profit       int64      `json:"profit"`
	RolledAt     *time.Time `json:"rolled_at,omitempty"`
}

// ToPublicResponse converts a Bet to its anonymised feed form.
func (b *Bet) ToPublicResponse() PublicBetResponse {
	return PublicBetResponse{
		ID:           b.ID.Hex(),
		BetNumber:    b.BetNumber,
		UserAddress:  b.TruncatedAddress(),
		BetAmount:    b.BetAmount,
		Multiplier:   b.Multiplier,
		Chance:       b.Chance,
		RollResult:   b.RollResult,
		IsWin:        b.IsWin,
		PayoutAmount: b.PayoutAmount,
		Profit:       b.Profit,
		RolledAt:     b.RolledAt,
	}
}

// BetResult is the settlement record fanned out to websocket subscribers the
// moment a bet rolls. ServerSeed is filled only when the bet's seed date has
// already passed; live bets expose the hash commitment alone.
type BetResult struct {
	BetID          string     `json:"bet_id"`
	BetNumber      int64      `json:"bet_number"`
	UserAddress    string     `json:"user_address"`
	BetAmount      int64      `json:"bet_amount"`
	Multiplier     float64    `json:"multiplier"`
	Chance         float64    `json:"win_chance"`
	RollResult     *float64   `json:"roll_result"`
	IsWin          bool       `json:"is_win"`
	PayoutAmount   int64      `json:"payout_amount"`
	Profit         int64      `json:"profit"`
	Nonce          int64      `json:"nonce"`
	TargetAddress  string     `json:"target_address"`
	DepositTxid    string     `json:"deposit_txid"`
	PayoutTxid     *string    `json:"payout_txid"`
	ServerSeed     string     `json:"server_seed,omitempty"`
	ServerSeedHash string     `json:"server_seed_hash"`
	ClientSeed     string     `json:"client_seed"`
	Status         BetStatus  `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	RolledAt       *time.Time `json:"rolled_at,omitempty"`
}

// ToResult converts a settled bet to its fan-out form. revealSeed must only
// be true when the bet's seed date is strictly in the past.
func (b *Bet) ToResult(revealSeed bool) BetResult {
	r := BetResult{
		BetID:          b.ID.Hex(),
		BetNumber:      b.BetNumber,
		UserAddress:    b.TruncatedAddress(),
		BetAmount:      b.BetAmount,
		Multiplier:     b.Multiplier,
		Chance:         b.Chance,
		RollResult:     b.RollResult,
		IsWin:          b.IsWin,
		PayoutAmount:   b.PayoutAmount,
		Profit:         b.Profit,
		Nonce:          b.Nonce,
		TargetAddress:  b.TargetAddress,
		DepositTxid:    b.DepositTxid,
		PayoutTxid:     b.PayoutTxid,
		ServerSeedHash: b.ServerSeedHash,
		ClientSeed:     b.ClientSeed,
		Status:         b.Status,
		CreatedAt:      b.CreatedAt,
		RolledAt:       b.RolledAt,
	}
	if revealSeed {
		r.ServerSeed = b.ServerSeed
	}
	return r
}

// VerifyBetResponse carries the full fairness proof for a settled bet.
// ServerSeed is populated only once the seed's calendar date has passed.
type VerifyBetResponse struct {
	BetID           string   `json:"bet_id"`
	BetNumber       int64    `json:"bet_number"`
	ServerSeed      string   `json:"server_seed,omitempty"`
	ServerSeedHash  string   `json:"server_seed_hash"`
	ClientSeed      string   `json:"client_seed"`
	Nonce           int64    `json:"nonce"`
	RollResult      *float64 `json:"roll_result"`
	RecomputedRoll  float64  `json:"recomputed_roll"`
	HashValid       bool     `json:"hash_valid"`
	RollValid       bool     `json:"roll_valid"`
	IsValid         bool     `json:"is_valid"`
	VerificationMsg string   `json:"verification_message,omitempty"`
}
