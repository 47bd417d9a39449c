// Package ws holds the WebSocket hub and the envelope broadcast to
// subscribers of the public bet feed.
package ws

import (
	"time"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	// MsgTypeNewBet carries a domain.BetResult: emitted when a losing bet
	// settles and when a winning bet's payout terminates.
	MsgTypeNewBet MsgType = "new_bet"

	// MsgTypeSeedHash carries a domain.SeedHashUpdate: the commitment of a
	// freshly created daily server seed.
	MsgTypeSeedHash MsgType = "seed_hash_update"

	// MsgTypePong answers a legacy client's textual "ping".
	MsgTypePong MsgType = "pong"
)

// Envelope wraps every outbound message. Data holds the payload named by
// Type; pong frames carry none.
type Envelope struct {
	Type      MsgType     `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
