package token

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoRecord struct {
	Digest             string    `bson:"_id"`
	TokenID            string    `bson:"token_id"`
	UserID             string    `bson:"user_id"`
	CreatedAt          time.Time `bson:"created_at"`
	ExpiresAt          time.Time `bson:"expires_at"`
	Active             bool      `bson:"active"`
	DeactivatedAt      time.Time `bson:"deactivated_at,omitempty"`
	DeactivationReason string    `bson:"deactivation_reason,omitempty"`
	LastUsedAt         time.Time `bson:"last_used_at,omitempty"`
	UsageCount         int64     `bson:"usage_count,omitempty"`
	IssuedIP           string    `bson:"issued_ip,omitempty"`
	LastIP             string    `bson:"last_ip,omitempty"`
	UserAgent          string    `bson:"user_agent,omitempty"`
	Location           string    `bson:"location,omitempty"`
}

// MongoStore persists token records in a MongoDB collection keyed by
// digest. The single-use flip relies on a conditional update matching
// only active documents, so concurrent deactivations of the same digest
// resolve to exactly one modified document.
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore wraps an existing collection. Call EnsureIndexes once at
// startup before serving traffic.
func NewMongoStore(collection *mongo.Collection) *MongoStore {
	return &MongoStore{collection: collection}
}

// EnsureIndexes creates the secondary indexes listings and sweeps depend
// on. Safe to call repeatedly.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "deactivated_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Put(ctx context.Context, rec *Record) error {
	doc := mongoRecord{
		Digest:    rec.Digest,
		TokenID:   rec.TokenID,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
		Active:    true,
		IssuedIP:  rec.IssuedIP,
		LastIP:    rec.IssuedIP,
		UserAgent: rec.UserAgent,
		Location:  rec.Location,
	}

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) GetByDigest(ctx context.Context, digest string) (*Record, error) {
	return s.findOne(ctx, bson.M{"_id": digest})
}

func (s *MongoStore) GetByID(ctx context.Context, tokenID string) (*Record, error) {
	return s.findOne(ctx, bson.M{"token_id": tokenID})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*Record, error) {
	var doc mongoRecord
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return doc.toRecord(), nil
}

// Deactivate performs the conditional flip. The filter matches only an
// active document, so of N concurrent callers exactly one sees a match.
func (s *MongoStore) Deactivate(ctx context.Context, digest, reason string, at time.Time) (bool, error) {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": digest, "active": true},
		bson.M{"$set": bson.M{
			"active":              false,
			"deactivated_at":      at.UTC(),
			"deactivation_reason": reason,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if result.ModifiedCount > 0 {
		return true, nil
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": digest})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 0 {
		return false, ErrTokenNotFound
	}
	return false, nil
}

func (s *MongoStore) Touch(ctx context.Context, digest, ip string, at time.Time) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": digest, "active": true},
		bson.M{
			"$set": bson.M{"last_used_at": at.UTC(), "last_ip": ip},
			"$inc": bson.M{"usage_count": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *MongoStore) ListByUser(ctx context.Context, userID string, includeInactive bool) ([]*Record, error) {
	filter := bson.M{"user_id": userID}
	if !includeInactive {
		filter["active"] = true
	}

	cursor, err := s.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer cursor.Close(ctx)

	records := []*Record{}
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		records = append(records, doc.toRecord())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Never-used records have no last_used_at document field, so the
	// fallback ordering is applied here rather than in the query.
	sort.Slice(records, func(i, j int) bool {
		return records[i].LastSeen().After(records[j].LastSeen())
	})

	return records, nil
}

func (s *MongoStore) DeactivateAllByUser(ctx context.Context, userID, reason string, at time.Time) (int, error) {
	result, err := s.collection.UpdateMany(ctx,
		bson.M{"user_id": userID, "active": true},
		bson.M{"$set": bson.M{
			"active":              false,
			"deactivated_at":      at.UTC(),
			"deactivation_reason": reason,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(result.ModifiedCount), nil
}

func (s *MongoStore) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	result, err := s.collection.DeleteMany(ctx,
		bson.M{"expires_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(result.DeletedCount), nil
}

func (s *MongoStore) PurgeInactive(ctx context.Context, before time.Time) (int, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{
		"active":         false,
		"deactivated_at": bson.M{"$lt": before.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(result.DeletedCount), nil
}

func (s *MongoStore) CountByState(ctx context.Context) (Counts, error) {
	var counts Counts

	active, err := s.collection.CountDocuments(ctx, bson.M{"active": true})
	if err != nil {
		return counts, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	inactive, err := s.collection.CountDocuments(ctx, bson.M{"active": false})
	if err != nil {
		return counts, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	counts.Active = active
	counts.Inactive = inactive
	counts.Total = active + inactive
	return counts, nil
}

func (s *MongoStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.collection.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (d *mongoRecord) toRecord() *Record {
	return &Record{
		Digest:             d.Digest,
		TokenID:            d.TokenID,
		UserID:             d.UserID,
		CreatedAt:          d.CreatedAt.UTC(),
		ExpiresAt:          d.ExpiresAt.UTC(),
		Active:             d.Active,
		DeactivatedAt:      d.DeactivatedAt.UTC(),
		DeactivationReason: d.DeactivationReason,
		LastUsedAt:         d.LastUsedAt.UTC(),
		UsageCount:         d.UsageCount,
		IssuedIP:           d.IssuedIP,
		LastIP:             d.LastIP,
		UserAgent:          d.UserAgent,
		Location:           d.Location,
	}
}
