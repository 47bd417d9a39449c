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

// BetRepository handles all database operations for dice bets.
type BetRepository struct {
	col *mongo.Collection
}

// NewBetRepository creates a new BetRepository.
func NewBetRepository(db *mongo.Database) *BetRepository {
	return &BetRepository{col: db.Collection(colBets)}
}

// Insert stores a new bet. The unique deposit_txid index turns a duplicate
// materialization of the same deposit into domain.ErrBetExists so the caller
// can re-read the winner.
func (r *BetRepository) Insert(ctx context.Context, b *domain.Bet) error {
	res, err := r.col.InsertOne(ctx, b)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrBetExists
		}
		return fmt.Errorf("bet_repo.Insert: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		b.ID = id
	}
	return nil
}

// GetByID fetches a bet by its primary key.
func (r *BetRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Bet, error) {
	return r.getOne(ctx, bson.M{"_id": id}, "bet_repo.GetByID")
}

// GetByNumber fetches a bet by its public sequential number.
func (r *BetRepository) GetByNumber(ctx context.Context, number int64) (*domain.Bet, error) {
	return r.getOne(ctx, bson.M{"bet_number": number}, "bet_repo.GetByNumber")
}

// GetByDepositTxid fetches the bet materialized from a deposit transaction.
func (r *BetRepository) GetByDepositTxid(ctx context.Context, txid string) (*domain.Bet, error) {
	return r.getOne(ctx, bson.M{"deposit_txid": txid}, "bet_repo.GetByDepositTxid")
}

func (r *BetRepository) getOne(ctx context.Context, filter bson.M, op string) (*domain.Bet, error) {
	var b domain.Bet
	err := r.col.FindOne(ctx, filter).Decode(&b)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrBetNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &b, nil
}

// SetConfirmed moves a pending bet to confirmed once its deposit has enough
// confirmations. Bets past pending are left untouched.
func (r *BetRepository) SetConfirmed(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.BetStatusPending},
		bson.M{"$set": bson.M{"status": domain.BetStatusConfirmed, "confirmed_at": at}},
	)
	if err != nil {
		return fmt.Errorf("bet_repo.SetConfirmed: %w", err)
	}
	return nil
}

// SetRolled persists the roll outcome from b: roll_result, is_win,
// payout_amount, profit, server_seed snapshot, status and rolled_at. The
// filter only matches bets that have not rolled yet, so a double roll loses
// the race and gets domain.ErrBetAlreadyRolled.
func (r *BetRepository) SetRolled(ctx context.Context, b *domain.Bet) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": b.ID, "roll_result": nil},
		bson.M{"$set": bson.M{
			"roll_result":   b.RollResult,
			"is_win":        b.IsWin,
			"payout_amount": b.PayoutAmount,
			"profit":        b.Profit,
			"nonce":         b.Nonce,
			"server_seed":   b.ServerSeed,
			"status":        b.Status,
			"rolled_at":     b.RolledAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("bet_repo.SetRolled: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBetAlreadyRolled
	}
	return nil
}

// SetPaid finalizes the bet. Losses finalize with an empty payoutTxid, which
// leaves the payout_txid field null.
func (r *BetRepository) SetPaid(ctx context.Context, id primitive.ObjectID, payoutTxid string, at time.Time) error {
	set := bson.M{
		"status":  domain.BetStatusPaid,
		"paid_at": at,
	}
	if payoutTxid != "" {
		set["payout_txid"] = payoutTxid
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("bet_repo.SetPaid: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBetNotFound
	}
	return nil
}

// SetFailed flags a won bet whose payout was abandoned after exhausting all
// attempts. The roll outcome stays untouched for the audit trail.
func (r *BetRepository) SetFailed(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": domain.BetStatusFailed}},
	)
	if err != nil {
		return fmt.Errorf("bet_repo.SetFailed: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrBetNotFound
	}
	return nil
}

// ListByUser returns a user's bet history, newest first, plus the total count
// for pagination.
func (r *BetRepository) ListByUser(ctx context.Context, address string, limit, offset int64) ([]*domain.Bet, int64, error) {
	filter := bson.M{"user_address": address}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("bet_repo.ListByUser count: %w", err)
	}
	cur, err := r.col.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("bet_repo.ListByUser: %w", err)
	}
	var bets []*domain.Bet
	if err := cur.All(ctx, &bets); err != nil {
		return nil, 0, fmt.Errorf("bet_repo.ListByUser decode: %w", err)
	}
	return bets, total, nil
}

// ListRecentRolled returns the newest settled bets for the public feed.
func (r *BetRepository) ListRecentRolled(ctx context.Context, limit int64) ([]*domain.Bet, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"roll_result": bson.M{"$ne": nil}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.ListRecentRolled: %w", err)
	}
	var bets []*domain.Bet
	if err := cur.All(ctx, &bets); err != nil {
		return nil, fmt.Errorf("bet_repo.ListRecentRolled decode: %w", err)
	}
	return bets, nil
}

// ListUnrolled returns bets still waiting for their roll, oldest first. The
// pending sweep re-drives these when a confirmation was missed.
func (r *BetRepository) ListUnrolled(ctx context.Context, limit int64) ([]*domain.Bet, error) {
	cur, err := r.col.Find(ctx,
		bson.M{
			"roll_result": nil,
			"status": bson.M{"$in": []domain.BetStatus{
				domain.BetStatusPending, domain.BetStatusConfirmed,
			}},
		},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.ListUnrolled: %w", err)
	}
	var bets []*domain.Bet
	if err := cur.All(ctx, &bets); err != nil {
		return nil, fmt.Errorf("bet_repo.ListUnrolled decode: %w", err)
	}
	return bets, nil
}

// Totals aggregates lifetime bet counters for the stats endpoint.
func (r *BetRepository) Totals(ctx context.Context) (*domain.BetTotals, error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"bets":    bson.M{"$sum": 1},
			"wagered": bson.M{"$sum": "$bet_amount"},
			"wins":    bson.M{"$sum": bson.M{"$cond": bson.A{"$is_win", 1, 0}}},
			"paid_out": bson.M{"$sum": bson.M{
				"$cond": bson.A{"$is_win", "$payout_amount", 0},
			}},
		}}},
	})
	if err != nil {
		return nil, fmt.Errorf("bet_repo.Totals: %w", err)
	}
	var rows []domain.BetTotals
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("bet_repo.Totals decode: %w", err)
	}
	if len(rows) == 0 {
		return &domain.BetTotals{}, nil
	}
	return &rows[0], nil
}
