package profile

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const profileCollection = "user_profile"

// MongoStore persists profiles as one document per user_id.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection(profileCollection)}
}

func (s *MongoStore) FindOne(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.col.FindOne(ctx, bson.D{{Key: "user_id", Value: userID}}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) Upsert(ctx context.Context, p Profile) error {
	_, err := s.col.UpdateOne(ctx,
		bson.D{{Key: "user_id", Value: p.UserID}},
		bson.D{{Key: "$set", Value: p}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error { return nil }
