package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nevzatmmc/dicevault/internal/domain"
)

// UserRepository handles all database operations for players. A player is
// identified by the Bitcoin address they deposit from.
type UserRepository struct {
	col *mongo.Collection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(colUsers)}
}

// GetByID fetches a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var u domain.User
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByID: %w", err)
	}
	return &u, nil
}

// GetByAddress fetches a user by their deposit address.
func (r *UserRepository) GetByAddress(ctx context.Context, address string) (*domain.User, error) {
	var u domain.User
	err := r.col.FindOne(ctx, bson.M{"address": address}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("user_repo.GetByAddress: %w", err)
	}
	return &u, nil
}

// GetOrCreate returns the user for an address, inserting a zeroed document on
// first contact. Concurrent callers converge on the same document through the
// unique address index.
func (r *UserRepository) GetOrCreate(ctx context.Context, address string) (*domain.User, error) {
	now := time.Now().UTC()
	var u domain.User
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"address": address},
		bson.M{"$setOnInsert": bson.M{
			"address":       address,
			"total_bets":    int64(0),
			"total_wagered": int64(0),
			"total_won":     int64(0),
			"total_lost":    int64(0),
			"created_at":    now,
			"updated_at":    now,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		return nil, fmt.Errorf("user_repo.GetOrCreate: %w", err)
	}
	return &u, nil
}

// RecordBet folds one settled bet into the user's lifetime stats. On a win
// wonDelta carries the profit, on a loss lostDelta carries the bet amount.
func (r *UserRepository) RecordBet(ctx context.Context, id primitive.ObjectID, wagered, wonDelta, lostDelta int64, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{
				"total_bets":    int64(1),
				"total_wagered": wagered,
				"total_won":     wonDelta,
				"total_lost":    lostDelta,
			},
			"$set": bson.M{
				"last_bet_at": at,
				"updated_at":  at,
			},
		},
	)
	if err != nil {
		return fmt.Errorf("user_repo.RecordBet: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Count returns the number of users seen so far.
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("user_repo.Count: %w", err)
	}
	return n, nil
}
