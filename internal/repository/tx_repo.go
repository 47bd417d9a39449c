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

// TransactionRepository handles all database operations for detected deposit
// transactions. One document per txid, regardless of how many times the
// websocket and REST backfill both report it.
type TransactionRepository struct {
	col *mongo.Collection
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *mongo.Database) *TransactionRepository {
	return &TransactionRepository{col: db.Collection(colTransactions)}
}

// UpsertDetected records a detection. A fresh txid inserts the full record;
// a re-detection only bumps detection_count and lifts confirmations. The
// returned flag is true when this call created the document.
//
// detection_count and confirmations ride $inc/$max instead of $setOnInsert
// because an update may not write the same path twice.
func (r *TransactionRepository) UpsertDetected(ctx context.Context, rec *domain.DetectedTransaction) (*domain.DetectedTransaction, bool, error) {
	var out domain.DetectedTransaction
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"txid": rec.Txid},
		bson.M{
			"$inc": bson.M{"detection_count": int64(1)},
			"$max": bson.M{"confirmations": rec.Confirmations},
			"$setOnInsert": bson.M{
				"txid":         rec.Txid,
				"from_address": rec.FromAddress,
				"to_address":   rec.ToAddress,
				"amount":       rec.Amount,
				"fee":          rec.Fee,
				"detected_by":  rec.DetectedBy,
				"block_height": rec.BlockHeight,
				"block_hash":   rec.BlockHash,
				"is_processed": false,
				"bet_id":       nil,
				"detected_at":  rec.DetectedAt,
				"confirmed_at": rec.ConfirmedAt,
				"raw_data":     rec.RawData,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&out)
	if err != nil {
		return nil, false, fmt.Errorf("tx_repo.UpsertDetected: %w", err)
	}
	return &out, out.DetectionCount == 1, nil
}

// GetByTxid fetches a detected transaction by its txid.
func (r *TransactionRepository) GetByTxid(ctx context.Context, txid string) (*domain.DetectedTransaction, error) {
	var t domain.DetectedTransaction
	err := r.col.FindOne(ctx, bson.M{"txid": txid}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrTxNotFound
		}
		return nil, fmt.Errorf("tx_repo.GetByTxid: %w", err)
	}
	return &t, nil
}

// MarkProcessed flags a transaction as consumed by the bet pipeline and links
// the bet it produced. betID stays nil for deposits rejected by validation.
func (r *TransactionRepository) MarkProcessed(ctx context.Context, txid string, betID *primitive.ObjectID) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"txid": txid},
		bson.M{"$set": bson.M{"is_processed": true, "bet_id": betID}},
	)
	if err != nil {
		return fmt.Errorf("tx_repo.MarkProcessed: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTxNotFound
	}
	return nil
}

// UpdateConfirmations refreshes the confirmation state of a transaction as
// reported by the explorer.
func (r *TransactionRepository) UpdateConfirmations(ctx context.Context, txid string, confirmations int, height *int64, hash *string, confirmedAt *time.Time) error {
	set := bson.M{"confirmations": confirmations}
	if height != nil {
		set["block_height"] = height
	}
	if hash != nil {
		set["block_hash"] = hash
	}
	if confirmedAt != nil {
		set["confirmed_at"] = confirmedAt
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"txid": txid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("tx_repo.UpdateConfirmations: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrTxNotFound
	}
	return nil
}

// ListUnprocessed returns transactions the bet pipeline has not consumed yet,
// oldest first. The pending sweep re-drives these.
func (r *TransactionRepository) ListUnprocessed(ctx context.Context, limit int64) ([]*domain.DetectedTransaction, error) {
	cur, err := r.col.Find(ctx,
		bson.M{"is_processed": false},
		options.Find().SetSort(bson.D{{Key: "detected_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("tx_repo.ListUnprocessed: %w", err)
	}
	var txs []*domain.DetectedTransaction
	if err := cur.All(ctx, &txs); err != nil {
		return nil, fmt.Errorf("tx_repo.ListUnprocessed decode: %w", err)
	}
	return txs, nil
}
