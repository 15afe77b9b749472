package checkpoint

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultCollection  = "checkpoints"
	countersCollection = "checkpoint_counters"
)

// MongoStore reads and writes checkpoint records in the collection the agent
// runtime's checkpointer uses. Sequence numbers come from a per-thread
// counter document so allocation stays atomic under concurrent appends.
type MongoStore struct {
	col      *mongo.Collection
	counters *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		col:      db.Collection(defaultCollection),
		counters: db.Collection(countersCollection),
	}
}

type mongoWrite struct {
	Messages primitive.Binary `bson:"messages"`
}

type mongoMetadata struct {
	ThreadID primitive.Binary      `bson:"thread_id"`
	Writes   map[string]mongoWrite `bson:"writes"`
}

type mongoRecord struct {
	ID       string        `bson:"_id"`
	ThreadID string        `bson:"thread_id"`
	Seq      int64         `bson:"seq"`
	Redacted bool          `bson:"redacted,omitempty"`
	Metadata mongoMetadata `bson:"metadata"`
}

// threadMarker builds the encoded routing marker the runtime stores under
// metadata.thread_id: a binary blob equal to the JSON-quoted thread id.
// Filtering requires re-encoding the query value identically; plain string
// comparison never matches.
func threadMarker(threadID string) primitive.Binary {
	return primitive.Binary{Subtype: 0x00, Data: []byte(strconv.Quote(threadID))}
}

func (s *MongoStore) Find(ctx context.Context, threadID string) ([]Record, error) {
	filter := bson.D{}
	if threadID != "" {
		filter = bson.D{{Key: "metadata.thread_id", Value: threadMarker(threadID)}}
	}

	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find checkpoints: %w", err)
	}
	defer cur.Close(ctx)

	var out []Record
	for cur.Next(ctx) {
		var doc mongoRecord
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode checkpoint document: %w", err)
		}
		rec := Record{
			ID:       doc.ID,
			ThreadID: doc.ThreadID,
			Seq:      doc.Seq,
			Redacted: doc.Redacted,
			Writes:   make(map[string][]byte, len(doc.Metadata.Writes)),
		}
		for step, w := range doc.Metadata.Writes {
			rec.Writes[step] = w.Messages.Data
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate checkpoints: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Append(ctx context.Context, rec Record) error {
	seq, err := s.nextSeq(ctx, rec.ThreadID)
	if err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	doc := mongoRecord{
		ID:       rec.ID,
		ThreadID: rec.ThreadID,
		Seq:      seq,
		Redacted: rec.Redacted,
		Metadata: mongoMetadata{
			ThreadID: threadMarker(rec.ThreadID),
			Writes:   make(map[string]mongoWrite, len(rec.Writes)),
		},
	}
	for step, data := range rec.Writes {
		doc.Metadata.Writes[step] = mongoWrite{Messages: primitive.Binary{Subtype: 0x00, Data: data}}
	}

	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// nextSeq allocates the next sequence number for a thread with one
// server-side $inc. A read-then-insert would let two concurrent appends
// observe the same tail and produce duplicate seq values.
func (s *MongoStore) nextSeq(ctx context.Context, threadID string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: threadID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: int64(1)}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("allocate checkpoint seq: %w", err)
	}
	return doc.Seq, nil
}

func (s *MongoStore) Close(context.Context) error { return nil }
