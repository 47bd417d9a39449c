package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nevzatmmc/dicevault/internal/domain"
)

// WalletRepository handles all database operations for vault wallets. Each
// wallet is a funded Bitcoin address bound to one payout multiplier.
type WalletRepository struct {
	col *mongo.Collection
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *mongo.Database) *WalletRepository {
	return &WalletRepository{col: db.Collection(colWallets)}
}

// Create inserts a new vault wallet.
func (r *WalletRepository) Create(ctx context.Context, w *domain.VaultWallet) error {
	res, err := r.col.InsertOne(ctx, w)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrWalletExists
		}
		return fmt.Errorf("wallet_repo.Create: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		w.ID = id
	}
	return nil
}

// GetByID fetches a wallet by primary key.
func (r *WalletRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.VaultWallet, error) {
	var w domain.VaultWallet
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&w)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetByID: %w", err)
	}
	return &w, nil
}

// GetByAddress fetches a wallet by its vault address. This is the hot path
// that maps a detected deposit to its multiplier.
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*domain.VaultWallet, error) {
	var w domain.VaultWallet
	err := r.col.FindOne(ctx, bson.M{"address": address}).Decode(&w)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetByAddress: %w", err)
	}
	return &w, nil
}

// GetActiveByMultiplier fetches the newest active wallet for a multiplier.
func (r *WalletRepository) GetActiveByMultiplier(ctx context.Context, multiplier float64) (*domain.VaultWallet, error) {
	var w domain.VaultWallet
	err := r.col.FindOne(ctx,
		bson.M{"multiplier": multiplier, "is_active": true},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&w)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetActiveByMultiplier: %w", err)
	}
	return &w, nil
}

// ListActive returns all active wallets ordered by multiplier. The deposit
// listener tracks exactly these addresses.
func (r *WalletRepository) ListActive(ctx context.Context) ([]*domain.VaultWallet, error) {
	return r.list(ctx, bson.M{"is_active": true}, "wallet_repo.ListActive")
}

// List returns every wallet, active or not (back-office view).
func (r *WalletRepository) List(ctx context.Context) ([]*domain.VaultWallet, error) {
	return r.list(ctx, bson.M{}, "wallet_repo.List")
}

// Multipliers returns the sorted distinct multipliers offered by active
// vaults; the public config endpoint serves this as the game menu.
func (r *WalletRepository) Multipliers(ctx context.Context) ([]float64, error) {
	raw, err := r.col.Distinct(ctx, "multiplier", bson.M{"is_active": true})
	if err != nil {
		return nil, fmt.Errorf("wallet_repo.Multipliers: %w", err)
	}
	multipliers := make([]float64, 0, len(raw))
	for _, v := range raw {
		if m, ok := v.(float64); ok {
			multipliers = append(multipliers, m)
		}
	}
	sort.Float64s(multipliers)
	return multipliers, nil
}

func (r *WalletRepository) list(ctx context.Context, filter bson.M, op string) ([]*domain.VaultWallet, error) {
	cur, err := r.col.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "multiplier", Value: 1}, {Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var wallets []*domain.VaultWallet
	if err := cur.All(ctx, &wallets); err != nil {
		return nil, fmt.Errorf("%s decode: %w", op, err)
	}
	return wallets, nil
}

// UpdateSettings patches the operator-editable fields. Nil pointers leave the
// corresponding field untouched.
func (r *WalletRepository) UpdateSettings(ctx context.Context, id primitive.ObjectID, chance *float64, label *string, active *bool) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if chance != nil {
		set["chance"] = *chance
	}
	if label != nil {
		set["label"] = *label
	}
	if active != nil {
		set["is_active"] = *active
	}
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("wallet_repo.UpdateSettings: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// RecordDeposit folds a detected deposit into the wallet's running totals.
// Fresh funds also clear the depleted flag.
func (r *WalletRepository) RecordDeposit(ctx context.Context, id primitive.ObjectID, amount int64) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"total_received": amount, "bet_count": int64(1)},
			"$set": bson.M{"is_depleted": false, "updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("wallet_repo.RecordDeposit: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// RecordPayout folds a broadcast payout (amount plus network fee) into the
// wallet's running totals.
func (r *WalletRepository) RecordPayout(ctx context.Context, id primitive.ObjectID, amount int64) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"total_sent": amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("wallet_repo.RecordPayout: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// MarkDepleted flags a wallet whose address has no spendable UTXOs left.
func (r *WalletRepository) MarkDepleted(ctx context.Context, id primitive.ObjectID, depleted bool) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_depleted": depleted, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("wallet_repo.MarkDepleted: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// Delete removes a wallet document. Guarding against deleting funded vaults
// is the service's job.
func (r *WalletRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("wallet_repo.Delete: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

// Totals sums received and sent satoshis across all wallets.
func (r *WalletRepository) Totals(ctx context.Context) (received, sent int64, err error) {
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":      nil,
			"received": bson.M{"$sum": "$total_received"},
			"sent":     bson.M{"$sum": "$total_sent"},
		}}},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("wallet_repo.Totals: %w", err)
	}
	var rows []struct {
		Received int64 `bson:"received"`
		Sent     int64 `bson:"sent"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return 0, 0, fmt.Errorf("wallet_repo.Totals decode: %w", err)
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Received, rows[0].Sent, nil
}
