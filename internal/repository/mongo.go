// Package repository persists the service's aggregates in MongoDB. One
// repository per collection; methods wrap driver errors with their call site
// and translate not-found/duplicate-key conditions into domain sentinels.
package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/nevzatmmc/dicevault/internal/config"
)

// Collection names.
const (
	colUsers        = "users"
	colWallets      = "wallets"
	colServerSeeds  = "server_seeds"
	colUserSeeds    = "user_seeds"
	colBets         = "bets"
	colTransactions = "transactions"
	colPayouts      = "payouts"
	colCounters     = "counters"
)

// Connect dials MongoDB, verifies the connection with a primary ping, and
// returns the client plus the configured database handle.
func Connect(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("repository.Connect: %w", err)
	}

	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("repository.Connect: ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}
