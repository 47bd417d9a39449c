package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ──────────────────────────────────────────────────────────────────────────────
// User
// ──────────────────────────────────────────────────────────────────────────────

// User is the implicit identity behind a sending Bitcoin address. Created on
// the first observed deposit from that address; never deleted. All aggregates
// are lifetime totals in integer satoshis.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Address      string             `bson:"address" json:"address"`
	TotalBets    int64              `bson:"total_bets" json:"total_bets"`
	TotalWagered int64              `bson:"total_wagered" json:"total_wagered"`
	TotalWon     int64              `bson:"total_won" json:"total_won"`
	TotalLost    int64              `bson:"total_lost" json:"total_lost"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	LastBetAt    *time.Time         `bson:"last_bet_at" json:"last_bet_at,omitempty"`
}

// NetProfit returns lifetime winnings minus lifetime losses.
func (u *User) NetProfit() int64 {
	return u.TotalWon - u.TotalLost
}

// ──────────────────────────────────────────────────────────────────────────────
// UserSeed
// ──────────────────────────────────────────────────────────────────────────────

// UserSeed is the client half of the provably-fair pair. One active record
// per user; the client seed equals the user's address and the nonce advances
// by exactly one on every settled roll.
type UserSeed struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"user_id"`
	ClientSeed string             `bson:"client_seed" json:"client_seed"`
	Nonce      int64              `bson:"nonce" json:"nonce"`
	IsActive   bool               `bson:"is_active" json:"is_active"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Response shapes
// ──────────────────────────────────────────────────────────────────────────────

// ConnectResponse is returned by the user connect endpoint: the user's
// lifetime stats plus everything needed to pre-verify the next roll.
type ConnectResponse struct {
	Address        string `json:"address"`
	TotalBets      int64  `json:"total_bets"`
	TotalWagered   int64  `json:"total_wagered"`
	TotalWon       int64  `json:"total_won"`
	TotalLost      int64  `json:"total_lost"`
	ClientSeed     string `json:"client_seed"`
	Nonce          int64  `json:"nonce"`
	ServerSeedHash string `json:"server_seed_hash"`
	SeedDate       string `json:"seed_date"`
}
