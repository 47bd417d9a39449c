package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// PayoutStatus represents the current state of a payout.
type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "pending"   // awaiting a broadcast attempt
	PayoutStatusBroadcast PayoutStatus = "broadcast" // on the network, unconfirmed
	PayoutStatusConfirmed PayoutStatus = "confirmed" // mined
	PayoutStatusFailed    PayoutStatus = "failed"    // terminal: retries exhausted or fatal error
)

// ──────────────────────────────────────────────────────────────────────────────
// Payout
// ──────────────────────────────────────────────────────────────────────────────

// Payout is the on-chain return of winnings for exactly one bet. At most one
// payout exists per bet; retries mutate this record rather than creating
// siblings, so RetryCount is the full attempt history.
type Payout struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BetID         primitive.ObjectID `bson:"bet_id" json:"bet_id"`
	BetNumber     int64              `bson:"bet_number" json:"bet_number"`
	WalletID      primitive.ObjectID `bson:"wallet_id" json:"wallet_id"`
	Amount        int64              `bson:"amount" json:"amount"`
	ToAddress     string             `bson:"to_address" json:"to_address"`
	Status        PayoutStatus       `bson:"status" json:"status"`
	Txid          *string            `bson:"txid,omitempty" json:"txid"`
	RetryCount    int                `bson:"retry_count" json:"retry_count"`
	NetworkFee    int64              `bson:"network_fee" json:"network_fee"`
	ErrorMessage  string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	LastAttemptID string             `bson:"last_attempt_id,omitempty" json:"last_attempt_id,omitempty"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
	BroadcastAt   *time.Time         `bson:"broadcast_at" json:"broadcast_at,omitempty"`
	ConfirmedAt   *time.Time         `bson:"confirmed_at" json:"confirmed_at,omitempty"`
	FailedAt      *time.Time         `bson:"failed_at" json:"failed_at,omitempty"`
}

// IsTerminal returns true when the payout will not be attempted again.
func (p *Payout) IsTerminal() bool {
	return p.Status == PayoutStatusConfirmed || p.Status == PayoutStatusFailed
}

// CanRetry reports whether another broadcast attempt is allowed under the
// given retry budget. Broadcast and confirmed payouts are never re-attempted;
// fatal failures are stored with RetryCount forced to the budget so they
// fall out of this predicate.
func (p *Payout) CanRetry(maxRetries int) bool {
	if p.Status != PayoutStatusPending && p.Status != PayoutStatusFailed {
		return false
	}
	return p.RetryCount < maxRetries
}
