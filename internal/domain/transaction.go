package domain

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// DetectionSource tags which path first observed a deposit.
type DetectionSource string

const (
	DetectedByWebsocket DetectionSource = "websocket" // live mempool feed
	DetectedByRest      DetectionSource = "rest"      // address polling fallback
	DetectedByManual    DetectionSource = "manual"    // user-submitted txid
	DetectedByAdmin     DetectionSource = "admin"     // operator recovery endpoint
)

// ──────────────────────────────────────────────────────────────────────────────
// DetectedTransaction
// ──────────────────────────────────────────────────────────────────────────────

// DetectedTransaction is the look-aside record of an on-chain deposit paying
// a vault address. A transaction may be observed many times over overlapping
// feeds; exactly one record exists per txid. IsProcessed flips true when a
// bet is attached or the deposit is rejected as unusable.
type DetectedTransaction struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Txid           string              `bson:"txid" json:"txid"`
	FromAddress    string              `bson:"from_address" json:"from_address"`
	ToAddress      string              `bson:"to_address" json:"to_address"`
	Amount         int64               `bson:"amount" json:"amount"`
	Fee            int64               `bson:"fee" json:"fee"`
	DetectedBy     DetectionSource     `bson:"detected_by" json:"detected_by"`
	DetectionCount int64               `bson:"detection_count" json:"detection_count"`
	Confirmations  int                 `bson:"confirmations" json:"confirmations"`
	BlockHeight    *int64              `bson:"block_height" json:"block_height,omitempty"`
	BlockHash      *string             `bson:"block_hash" json:"block_hash,omitempty"`
	IsProcessed    bool                `bson:"is_processed" json:"is_processed"`
	BetID          *primitive.ObjectID `bson:"bet_id" json:"bet_id,omitempty"`
	DetectedAt     time.Time           `bson:"detected_at" json:"detected_at"`
	ConfirmedAt    *time.Time          `bson:"confirmed_at" json:"confirmed_at,omitempty"`
	RawData        string              `bson:"raw_data,omitempty" json:"-"`
}

// ──────────────────────────────────────────────────────────────────────────────
// DepositEvent
// ──────────────────────────────────────────────────────────────────────────────

// DepositEvent is the ingester's handoff to the bet pipeline: one event per
// detected deposit txid, addressed to the first vault output it pays.
// FromAddress may be empty when the first input has no resolvable prevout
// address (e.g. coinbase). Delivery may duplicate; persistence dedupes on
// txid.
type DepositEvent struct {
	Txid          string
	ToAddress     string
	Amount        int64
	FromAddress   string
	Fee           int64
	Confirmed     bool
	Confirmations int
	BlockHeight   *int64
	BlockHash     *string
	DetectedBy    DetectionSource
	Raw           json.RawMessage
}

// ToRecord turns the event into its persistence form with DetectionCount 1.
func (e DepositEvent) ToRecord(now time.Time) *DetectedTransaction {
	tx := &DetectedTransaction{
		Txid:           e.Txid,
		FromAddress:    e.FromAddress,
		ToAddress:      e.ToAddress,
		Amount:         e.Amount,
		Fee:            e.Fee,
		DetectedBy:     e.DetectedBy,
		DetectionCount: 1,
		Confirmations:  e.Confirmations,
		BlockHeight:    e.BlockHeight,
		BlockHash:      e.BlockHash,
		DetectedAt:     now,
		RawData:        string(e.Raw),
	}
	if e.Confirmed {
		if tx.Confirmations == 0 {
			tx.Confirmations = 1
		}
		tx.ConfirmedAt = &now
	}
	return tx
}
