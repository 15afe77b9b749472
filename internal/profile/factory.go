package profile

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// NewStore creates a postgres-backed store when a database URL is configured,
// a Mongo-backed store when a Mongo database handle is available, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string, db *mongo.Database) (Store, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL)
	}
	if db != nil {
		return NewMongoStore(db), nil
	}
	return NewInMemoryStore(), nil
}
