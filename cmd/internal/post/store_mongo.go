package post

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"layoo/cmd/internal/mongox"
)

// MongoStore is a Store backed by the "posts" collection.
type MongoStore struct {
	posts *mongo.Collection
}

// NewMongoStore uses the "posts" collection of database db.
func NewMongoStore(client *mongo.Client, db string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("post: nil mongo client")
	}
	return &MongoStore{posts: client.Database(db).Collection("posts")}, nil
}

// EnsureIndexes creates the owner feed index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("post: indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, p Post) error {
	if p.MediaURLs == nil {
		p.MediaURLs = []string{}
	}
	if p.ContentFlags == nil {
		p.ContentFlags = map[string]bool{}
	}
	_, err := s.posts.InsertOne(ctx, p)
	return mongox.Classify(err)
}

func (s *MongoStore) FromOwners(ctx context.Context, owners []string) ([]Post, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	cur, err := s.posts.Find(ctx,
		bson.M{"owner": bson.M{"$in": owners}},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mongox.Classify(err)
	}
	var out []Post
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongox.Classify(err)
	}
	return out, nil
}
