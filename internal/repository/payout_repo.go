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

// PayoutRepository handles all database operations for payouts. The unique
// bet_id index caps every bet at one payout document across all retries.
type PayoutRepository struct {
	col *mongo.Collection
}

// NewPayoutRepository creates a new PayoutRepository.
func NewPayoutRepository(db *mongo.Database) *PayoutRepository {
	return &PayoutRepository{col: db.Collection(colPayouts)}
}

// Insert stores a new payout. A concurrent insert for the same bet loses the
// race and gets domain.ErrPayoutExists.
func (r *PayoutRepository) Insert(ctx context.Context, p *domain.Payout) error {
	res, err := r.col.InsertOne(ctx, p)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrPayoutExists
		}
		return fmt.Errorf("payout_repo.Insert: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		p.ID = id
	}
	return nil
}

// GetByID fetches a payout by primary key.
func (r *PayoutRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Payout, error) {
	return r.getOne(ctx, bson.M{"_id": id}, "payout_repo.GetByID")
}

// GetByBetID fetches the payout belonging to a bet.
func (r *PayoutRepository) GetByBetID(ctx context.Context, betID primitive.ObjectID) (*domain.Payout, error) {
	return r.getOne(ctx, bson.M{"bet_id": betID}, "payout_repo.GetByBetID")
}

func (r *PayoutRepository) getOne(ctx context.Context, filter bson.M, op string) (*domain.Payout, error) {
	var p domain.Payout
	err := r.col.FindOne(ctx, filter).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPayoutNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// SetAttempt stamps a broadcast attempt id before the transaction goes out.
// If the process dies mid-broadcast, the stamp tells the operator which
// attempt to look for on-chain.
func (r *PayoutRepository) SetAttempt(ctx context.Context, id primitive.ObjectID, attemptID string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"last_attempt_id": attemptID,
			"updated_at":      time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("payout_repo.SetAttempt: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPayoutNotFound
	}
	return nil
}

// MarkBroadcast records a successful broadcast with its txid and fee.
func (r *PayoutRepository) MarkBroadcast(ctx context.Context, id primitive.ObjectID, txid string, fee int64, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":        domain.PayoutStatusBroadcast,
			"txid":          txid,
			"network_fee":   fee,
			"error_message": "",
			"broadcast_at":  at,
			"updated_at":    at,
		}},
	)
	if err != nil {
		return fmt.Errorf("payout_repo.MarkBroadcast: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPayoutNotFound
	}
	return nil
}

// MarkConfirmed finalizes a broadcast payout once its transaction is mined.
func (r *PayoutRepository) MarkConfirmed(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":       domain.PayoutStatusConfirmed,
			"confirmed_at": at,
			"updated_at":   at,
		}},
	)
	if err != nil {
		return fmt.Errorf("payout_repo.MarkConfirmed: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPayoutNotFound
	}
	return nil
}

// MarkFailed records a failed attempt with its error and new retry count.
// Fatal errors pass retryCount == maxRetries to park the payout permanently.
func (r *PayoutRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, errMsg string, retryCount int, at time.Time) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":        domain.PayoutStatusFailed,
			"error_message": errMsg,
			"retry_count":   retryCount,
			"failed_at":     at,
			"updated_at":    at,
		}},
	)
	if err != nil {
		return fmt.Errorf("payout_repo.MarkFailed: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPayoutNotFound
	}
	return nil
}

// ListRetryable returns payouts the retry sweep may attempt again: pending or
// failed, with attempts left, oldest update first.
func (r *PayoutRepository) ListRetryable(ctx context.Context, maxRetries int, limit int64) ([]*domain.Payout, error) {
	cur, err := r.col.Find(ctx,
		bson.M{
			"status": bson.M{"$in": []domain.PayoutStatus{
				domain.PayoutStatusPending, domain.PayoutStatusFailed,
			}},
			"retry_count": bson.M{"$lt": maxRetries},
		},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ListRetryable: %w", err)
	}
	var payouts []*domain.Payout
	if err := cur.All(ctx, &payouts); err != nil {
		return nil, fmt.Errorf("payout_repo.ListRetryable decode: %w", err)
	}
	return payouts, nil
}

// ListBroadcast returns payouts waiting for on-chain confirmation.
func (r *PayoutRepository) ListBroadcast(ctx context.Context, limit int64) ([]*domain.Payout, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"status": domain.PayoutStatusBroadcast},
		options.Find().SetSort(bson.D{{Key: "broadcast_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("payout_repo.ListBroadcast: %w", err)
	}
	var payouts []*domain.Payout
	if err := cur.All(ctx, &payouts); err != nil {
		return nil, fmt.Errorf("payout_repo.ListBroadcast decode: %w", err)
	}
	return payouts, nil
}

// List returns paginated payouts filtered by status (back-office view).
// status "" means all statuses.
func (r *PayoutRepository) List(ctx context.Context, status domain.PayoutStatus, limit, offset int64) ([]*domain.Payout, int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("payout_repo.List count: %w", err)
	}
	cur, err := r.col.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("payout_repo.List: %w", err)
	}
	var payouts []*domain.Payout
	if err := cur.All(ctx, &payouts); err != nil {
		return nil, 0, fmt.Errorf("payout_repo.List decode: %w", err)
	}
	return payouts, total, nil
}
