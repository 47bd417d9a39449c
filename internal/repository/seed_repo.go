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

// ServerSeedRepository handles all database operations for daily server seeds.
// Seed dates are "YYYY-MM-DD" strings, which sort correctly as plain strings.
type ServerSeedRepository struct {
	col *mongo.Collection
}

// NewServerSeedRepository creates a new ServerSeedRepository.
func NewServerSeedRepository(db *mongo.Database) *ServerSeedRepository {
	return &ServerSeedRepository{col: db.Collection(colServerSeeds)}
}

// Insert stores a new daily seed. The unique seed_date index turns a lost
// creation race into domain.ErrSeedExists so the caller can re-read the winner.
func (r *ServerSeedRepository) Insert(ctx context.Context, s *domain.ServerSeed) error {
	res, err := r.col.InsertOne(ctx, s)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrSeedExists
		}
		return fmt.Errorf("server_seed_repo.Insert: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		s.ID = id
	}
	return nil
}

// GetByDate fetches the seed for one UTC date.
func (r *ServerSeedRepository) GetByDate(ctx context.Context, date string) (*domain.ServerSeed, error) {
	var s domain.ServerSeed
	err := r.col.FindOne(ctx, bson.M{"seed_date": date}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSeedNotFound
		}
		return nil, fmt.Errorf("server_seed_repo.GetByDate: %w", err)
	}
	return &s, nil
}

// Range returns seeds with from <= seed_date <= to, oldest first.
func (r *ServerSeedRepository) Range(ctx context.Context, from, to string) ([]*domain.ServerSeed, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"seed_date": bson.M{"$gte": from, "$lte": to}},
		options.Find().SetSort(bson.D{{Key: "seed_date", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("server_seed_repo.Range: %w", err)
	}
	var seeds []*domain.ServerSeed
	if err := cur.All(ctx, &seeds); err != nil {
		return nil, fmt.Errorf("server_seed_repo.Range decode: %w", err)
	}
	return seeds, nil
}

// ListUnrevealedBefore returns seeds for dates strictly before the given date
// whose value has not been published yet.
func (r *ServerSeedRepository) ListUnrevealedBefore(ctx context.Context, date string) ([]*domain.ServerSeed, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"seed_date": bson.M{"$lt": date}, "revealed_at": nil},
		options.Find().SetSort(bson.D{{Key: "seed_date", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("server_seed_repo.ListUnrevealedBefore: %w", err)
	}
	var seeds []*domain.ServerSeed
	if err := cur.All(ctx, &seeds); err != nil {
		return nil, fmt.Errorf("server_seed_repo.ListUnrevealedBefore decode: %w", err)
	}
	return seeds, nil
}

// IncrementBetCount bumps the number of bets rolled under a seed date.
func (r *ServerSeedRepository) IncrementBetCount(ctx context.Context, date string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"seed_date": date},
		bson.M{"$inc": bson.M{"bet_count": int64(1)}},
	)
	if err != nil {
		return fmt.Errorf("server_seed_repo.IncrementBetCount: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrSeedNotFound
	}
	return nil
}

// MarkRevealed records the moment a seed value went public. Seeds already
// revealed keep their original timestamp; calling again is a no-op.
func (r *ServerSeedRepository) MarkRevealed(ctx context.Context, date string, at time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"seed_date": date, "revealed_at": nil},
		bson.M{"$set": bson.M{"revealed_at": at}},
	)
	if err != nil {
		return fmt.Errorf("server_seed_repo.MarkRevealed: %w", err)
	}
	return nil
}

// DeleteByDate removes one seed document. Restricting deletion to future
// dates is the service's job.
func (r *ServerSeedRepository) DeleteByDate(ctx context.Context, date string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"seed_date": date})
	if err != nil {
		return fmt.Errorf("server_seed_repo.DeleteByDate: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrSeedNotFound
	}
	return nil
}

// UserSeedRepository handles all database operations for per-user client
// seeds and their nonces.
type UserSeedRepository struct {
	col *mongo.Collection
}

// NewUserSeedRepository creates a new UserSeedRepository.
func NewUserSeedRepository(db *mongo.Database) *UserSeedRepository {
	return &UserSeedRepository{col: db.Collection(colUserSeeds)}
}

// GetOrCreateActive returns the user's active seed, inserting a fresh one at
// nonce 0 when none exists. The partial unique index on (user_id, is_active)
// makes concurrent first bets converge on one document.
func (r *UserSeedRepository) GetOrCreateActive(ctx context.Context, userID primitive.ObjectID, clientSeed string) (*domain.UserSeed, error) {
	var s domain.UserSeed
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "is_active": true},
		bson.M{"$setOnInsert": bson.M{
			"user_id":     userID,
			"client_seed": clientSeed,
			"nonce":       int64(0),
			"is_active":   true,
			"created_at":  time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&s)
	if err != nil {
		return nil, fmt.Errorf("user_seed_repo.GetOrCreateActive: %w", err)
	}
	return &s, nil
}

// BumpNonce advances the seed's nonce from the expected value. The filter is
// the compare half of a compare-and-set: when another roll consumed the value
// first, nothing matches and the caller must re-read before claiming again.
func (r *UserSeedRepository) BumpNonce(ctx context.Context, id primitive.ObjectID, expected int64) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "nonce": expected},
		bson.M{"$inc": bson.M{"nonce": int64(1)}},
	)
	if err != nil {
		return fmt.Errorf("user_seed_repo.BumpNonce: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNonceConflict
	}
	return nil
}
