package profile

import (
	"context"
	"time"
)

// Profile is the single evolving document kept per user. Name and Style are
// optional scalars, Topics accumulate for the lifetime of the profile, and
// Description is the narrative-mode representation.
type Profile struct {
	UserID      string    `json:"user_id" bson:"user_id"`
	Name        string    `json:"name,omitempty" bson:"name,omitempty"`
	Style       string    `json:"style,omitempty" bson:"style,omitempty"`
	Topics      []string  `json:"topics,omitempty" bson:"topics,omitempty"`
	Description string    `json:"profile_description,omitempty" bson:"profile_description,omitempty"`
	LastUpdated time.Time `json:"last_updated" bson:"last_updated"`
}

// Extraction is the normalized result of one extraction pass. The "unknown"
// sentinel is filtered at the parse boundary: an empty field here means "the
// extractor found no evidence", never a value to persist.
type Extraction struct {
	Name        string
	Style       string
	Topics      []string
	Description string
}

// Store is the narrow interface over profile persistence. FindOne returns
// (nil, nil) when no document exists for the user.
type Store interface {
	FindOne(ctx context.Context, userID string) (*Profile, error)
	Upsert(ctx context.Context, p Profile) error
	Close() error
}
