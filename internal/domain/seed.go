package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SeedDateFormat is the calendar key of a server seed. All seed dates are UTC.
const SeedDateFormat = "2006-01-02"

// SeedDateKey returns the calendar key for t in UTC.
func SeedDateKey(t time.Time) string {
	return t.UTC().Format(SeedDateFormat)
}

// ──────────────────────────────────────────────────────────────────────────────
// ServerSeed
// ──────────────────────────────────────────────────────────────────────────────

// ServerSeed is the house half of the provably-fair pair: one per calendar
// date. The hash is public from the moment of creation; the seed itself is
// disclosed only once its date is strictly in the past. Past seeds are the
// audit trail and must never change.
type ServerSeed struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SeedDate       string             `bson:"seed_date" json:"seed_date"`
	ServerSeed     string             `bson:"server_seed" json:"-"`
	ServerSeedHash string             `bson:"server_seed_hash" json:"server_seed_hash"`
	BetCount       int64              `bson:"bet_count" json:"bet_count"`
	RevealedAt     *time.Time         `bson:"revealed_at" json:"revealed_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// IsRevealable returns true when the seed's calendar date has ended relative
// to now (UTC date comparison, string order works for ISO dates).
func (s *ServerSeed) IsRevealable(now time.Time) bool {
	return s.SeedDate < SeedDateKey(now)
}

// IsFuture returns true when the seed governs a date that has not started yet.
// Only future seeds may be created or deleted by the admin surface.
func (s *ServerSeed) IsFuture(now time.Time) bool {
	return s.SeedDate > SeedDateKey(now)
}

// ──────────────────────────────────────────────────────────────────────────────
// Public fairness view
// ──────────────────────────────────────────────────────────────────────────────

// SeedPublicView is one calendar entry of the fairness page. ServerSeed is
// present only for revealed (past-dated) seeds.
type SeedPublicView struct {
	SeedDate       string `json:"seed_date"`
	ServerSeedHash string `json:"server_seed_hash"`
	ServerSeed     string `json:"server_seed,omitempty"`
	BetCount       int64  `json:"bet_count"`
	IsRevealed     bool   `json:"is_revealed"`
}

// FairnessView is the full public seed calendar: N past days through three
// days ahead.
type FairnessView struct {
	Seeds          []SeedPublicView `json:"seeds"`
	Today          string           `json:"today"`
	ThreeDaysLater string           `json:"three_days_later"`
}

// SeedHashUpdate announces a freshly created daily seed's commitment to
// websocket subscribers. Only the hash travels; the seed stays private until
// its date ends.
type SeedHashUpdate struct {
	SeedDate       string `json:"seed_date"`
	ServerSeedHash string `json:"server_seed_hash"`
}

// ToPublicView converts a seed to its fairness page entry, disclosing the
// raw seed only when the date has passed.
func (s *ServerSeed) ToPublicView(now time.Time) SeedPublicView {
	v := SeedPublicView{
		SeedDate:       s.SeedDate,
		ServerSeedHash: s.ServerSeedHash,
		BetCount:       s.BetCount,
		IsRevealed:     s.IsRevealable(now),
	}
	if v.IsRevealed {
		v.ServerSeed = s.ServerSeed
	}
	return v
}
