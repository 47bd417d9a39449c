package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates every index the repositories rely on. Creation is
// idempotent, so this runs unconditionally at startup before any repository
// is used.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	uniqueSparse := options.Index().SetUnique(true).SetSparse(true)

	for col, models := range map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "address", Value: 1}}, Options: unique},
		},
		colWallets: {
			{Keys: bson.D{{Key: "address", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "multiplier", Value: 1}}},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "multiplier", Value: 1}}},
		},
		colServerSeeds: {
			{Keys: bson.D{{Key: "seed_date", Value: 1}}, Options: unique},
		},
		colUserSeeds: {
			// At most one active seed per user.
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true})},
		},
		colBets: {
			{Keys: bson.D{{Key: "bet_number", Value: 1}}, Options: unique},
			// Sparse so bets created without a deposit (admin credits) do
			// not collide on a missing txid.
			{Keys: bson.D{{Key: "deposit_txid", Value: 1}}, Options: uniqueSparse},
			{Keys: bson.D{{Key: "user_address", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "target_address", Value: 1}}},
			{Keys: bson.D{{Key: "multiplier", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "txid", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "is_processed", Value: 1}, {Key: "detected_at", Value: 1}}},
		},
		colPayouts: {
			{Keys: bson.D{{Key: "bet_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "txid", Value: 1}}, Options: uniqueSparse},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		},
	} {
		if _, err := db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("repository.EnsureIndexes: %s: %w", col, err)
		}
	}
	return nil
}
