package gift

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

// MongoStore is a Store backed by the "gifts" collection.
type MongoStore struct {
	gifts *mongo.Collection
}

// NewMongoStore uses the "gifts" collection of database db.
func NewMongoStore(client *mongo.Client, db string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("gift: nil mongo client")
	}
	return &MongoStore{gifts: client.Database(db).Collection("gifts")}, nil
}

// EnsureIndexes creates the owner feed index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.gifts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("gift: indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, g Gift) error {
	for _, set := range []*[]string{&g.Recipients, &g.ViewedBy, &g.LikedBy, &g.DislikeBy} {
		if *set == nil {
			*set = []string{}
		}
	}
	_, err := s.gifts.InsertOne(ctx, g)
	return mongox.Classify(err)
}

func (s *MongoStore) FromOwners(ctx context.Context, owners []string, now time.Time) ([]Gift, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	cur, err := s.gifts.Find(ctx,
		bson.M{"owner": bson.M{"$in": owners}, "expiresAt": bson.M{"$gt": now}, "isActive": true},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mongox.Classify(err)
	}
	var out []Gift
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongox.Classify(err)
	}
	return out, nil
}

func (s *MongoStore) React(ctx context.Context, giftID, userID string, r Reaction) (Gift, error) {
	var g Gift
	err := s.gifts.FindOneAndUpdate(ctx,
		bson.M{"_id": giftID},
		bson.M{"$addToSet": bson.M{r.field(): userID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&g)
	if mongox.IsNotFound(err) {
		return Gift{}, ErrNotFound
	}
	if err != nil {
		return Gift{}, mongox.Classify(err)
	}
	return g, nil
}

func (s *MongoStore) MarkViewed(ctx context.Context, giftID, userID string) (Gift, bool, error) {
	var g Gift
	err := s.gifts.FindOneAndUpdate(ctx,
		bson.M{"_id": giftID, "viewedBy": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"viewedBy": userID}, "$inc": bson.M{"viewersCount": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&g)
	if err == nil {
		return g, true, nil
	}
	if !mongox.IsNotFound(err) {
		return Gift{}, false, mongox.Classify(err)
	}

	// Either already viewed or missing.
	err = s.gifts.FindOne(ctx, bson.M{"_id": giftID}).Decode(&g)
	if mongox.IsNotFound(err) {
		return Gift{}, false, ErrNotFound
	}
	if err != nil {
		return Gift{}, false, mongox.Classify(err)
	}
	return g, false, nil
}

func (s *MongoStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.gifts.UpdateMany(ctx,
		bson.M{"isActive": true, "expiresAt": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"isActive": false}},
	)
	if err != nil {
		return 0, mongox.Classify(err)
	}
	return res.ModifiedCount, nil
}
