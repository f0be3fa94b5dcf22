package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"layoo/cmd/internal/mongox"
)

// MongoStore is a Store backed by MongoDB. Transactions need a replica set or sharded cluster.
//
// The client is owned by the caller; Close is a no-op.
type MongoStore struct {
	client        *mongo.Client
	messages      *mongo.Collection
	conversations *mongo.Collection
}

// NewMongoStore uses the "messages" and "conversations" collections of database db.
func NewMongoStore(client *mongo.Client, db string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("chat: nil mongo client")
	}
	d := client.Database(db)
	return &MongoStore{
		client:        client,
		messages:      d.Collection("messages"),
		conversations: d.Collection("conversations"),
	}, nil
}

func (s *MongoStore) Close() error { return nil }

// EnsureIndexes creates the pair-key unique index and the read-path indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.conversations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "pairKey", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "lastMessageAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("chat: conversation indexes: %w", err)
	}
	if _, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationID", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "conversationID", Value: 1}, {Key: "seenBy", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("chat: message indexes: %w", err)
	}
	return nil
}

type mongoTx struct{ s *MongoStore }

func (t mongoTx) MessageExists(ctx context.Context, id string) (bool, error) {
	return t.s.MessageExists(ctx, id)
}

func (t mongoTx) InsertMessage(ctx context.Context, m Message) error {
	if m.SeenBy == nil {
		m.SeenBy = []string{}
	}
	_, err := t.s.messages.InsertOne(ctx, m)
	return mapMongoError(err, ErrDuplicateMessage)
}

func (t mongoTx) UpdateConversationSummary(ctx context.Context, conversationID, lastMessage string, at time.Time) error {
	res, err := t.s.conversations.UpdateByID(ctx, conversationID, bson.M{
		"$set": bson.M{"lastMessage": lastMessage, "lastMessageAt": at, "updatedAt": at},
	})
	if err != nil {
		return mapMongoError(err, nil)
	}
	if res.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *MongoStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return mapMongoError(err, nil)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, mongoTx{s: s})
	}, opts)
	if err != nil {
		return mapMongoError(err, nil)
	}
	return nil
}

func (s *MongoStore) MessageExists(ctx context.Context, id string) (bool, error) {
	err := s.messages.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if mongox.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, mapMongoError(err, nil)
	}
	return true, nil
}

func (s *MongoStore) GetMessage(ctx context.Context, id string) (Message, error) {
	var m Message
	err := s.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if mongox.IsNotFound(err) {
		return Message{}, ErrMessageNotFound
	}
	if err != nil {
		return Message{}, mapMongoError(err, nil)
	}
	return m, nil
}

func (s *MongoStore) findConversation(ctx context.Context, filter bson.M) (Conversation, error) {
	var c Conversation
	err := s.conversations.FindOne(ctx, filter).Decode(&c)
	if mongox.IsNotFound(err) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, mapMongoError(err, nil)
	}
	return c, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	return s.findConversation(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindConversationByPair(ctx context.Context, pairKey string) (Conversation, error) {
	return s.findConversation(ctx, bson.M{"pairKey": pairKey})
}

func (s *MongoStore) InsertConversation(ctx context.Context, c Conversation) error {
	_, err := s.conversations.InsertOne(ctx, c)
	return mapMongoError(err, ErrDuplicateConversation)
}

func (s *MongoStore) SetFriend(ctx context.Context, conversationID, userID string, value bool, now time.Time) (Conversation, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c Conversation
	err := s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID, "isFriend.userID": userID},
		bson.M{"$set": bson.M{"isFriend.$.value": value, "updatedAt": now}},
		after,
	).Decode(&c)
	if err == nil {
		return c, nil
	}
	if !mongox.IsNotFound(err) {
		return Conversation{}, mapMongoError(err, nil)
	}

	// No flag for userID yet.
	err = s.conversations.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{
			"$push": bson.M{"isFriend": FriendFlag{UserID: userID, Value: value}},
			"$set":  bson.M{"updatedAt": now},
		},
		after,
	).Decode(&c)
	if mongox.IsNotFound(err) {
		return Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return Conversation{}, mapMongoError(err, nil)
	}
	return c, nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	cur, err := s.conversations.Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mapMongoError(err, nil)
	}
	var out []Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapMongoError(err, nil)
	}
	return out, nil
}

func (s *MongoStore) ListUnread(ctx context.Context, userID string) ([]Message, error) {
	convs, err := s.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}

	cur, err := s.messages.Find(ctx,
		bson.M{
			"conversationID": bson.M{"$in": ids},
			"seenBy":         bson.M{"$ne": userID},
			"senderID":       bson.M{"$ne": userID},
		},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mapMongoError(err, nil)
	}
	var out []Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, mapMongoError(err, nil)
	}
	return out, nil
}

func (s *MongoStore) MarkSeen(ctx context.Context, conversationID, userID string) (int64, error) {
	res, err := s.messages.UpdateMany(ctx,
		bson.M{"conversationID": conversationID, "seenBy": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"seenBy": userID}},
	)
	if err != nil {
		return 0, mapMongoError(err, nil)
	}
	return res.ModifiedCount, nil
}

// mapMongoError classifies err and, for unique violations, wraps dup when non-nil.
func mapMongoError(err, dup error) error {
	err = mongox.Classify(err)
	if dup != nil && errors.Is(err, mongox.ErrDuplicate) {
		return fmt.Errorf("%w: %w", dup, err)
	}
	return err
}
