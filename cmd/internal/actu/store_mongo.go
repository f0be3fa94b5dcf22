package actu

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"layoo/cmd/internal/mongox"
)

// MongoStore is a Store backed by the "actus" collection.
type MongoStore struct {
	actus *mongo.Collection
}

// NewMongoStore uses the "actus" collection of database db.
func NewMongoStore(client *mongo.Client, db string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("actu: nil mongo client")
	}
	return &MongoStore{actus: client.Database(db).Collection("actus")}, nil
}

// EnsureIndexes creates the expiry TTL index and the recipient feed index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.actus.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		{Keys: bson.D{{Key: "recipients", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("actu: indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, a Actu) error {
	if a.Views == nil {
		a.Views = []View{}
	}
	_, err := s.actus.InsertOne(ctx, a)
	return mongox.Classify(err)
}

func (s *MongoStore) Received(ctx context.Context, userID string, now time.Time) ([]Actu, error) {
	cur, err := s.actus.Find(ctx,
		bson.M{"recipients": userID, "expiresAt": bson.M{"$gt": now}, "isActive": true},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mongox.Classify(err)
	}
	var out []Actu
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongox.Classify(err)
	}
	return out, nil
}

func (s *MongoStore) MarkViewed(ctx context.Context, actuID, viewerID string, at time.Time) (bool, error) {
	res, err := s.actus.UpdateOne(ctx,
		bson.M{"_id": actuID, "views.viewerId": bson.M{"$ne": viewerID}},
		bson.M{
			"$push": bson.M{"views": View{ViewerID: viewerID, ViewedAt: at}},
			"$set":  bson.M{"updatedAt": at},
		},
	)
	if err != nil {
		return false, mongox.Classify(err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// Either already viewed or missing.
	err = s.actus.FindOne(ctx, bson.M{"_id": actuID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if mongox.IsNotFound(err) {
		return false, ErrNotFound
	}
	return false, mongox.Classify(err)
}

func (s *MongoStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.actus.UpdateMany(ctx,
		bson.M{"isActive": true, "expiresAt": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"isActive": false, "updatedAt": now}},
	)
	if err != nil {
		return 0, mongox.Classify(err)
	}
	return res.ModifiedCount, nil
}
