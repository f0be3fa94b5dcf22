package user

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

// MongoStore is a Store backed by the "users" collection.
type MongoStore struct {
	users *mongo.Collection
}

// NewMongoStore uses the "users" collection of database db.
func NewMongoStore(client *mongo.Client, db string) (*MongoStore, error) {
	if client == nil {
		return nil, errors.New("user: nil mongo client")
	}
	return &MongoStore{users: client.Database(db).Collection("users")}, nil
}

// EnsureIndexes creates the unique handle index and the phone lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userID", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "phoneDigits", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("user: indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, u User) error {
	if u.Companies == nil {
		u.Companies = []string{}
	}
	if u.ContactsPhone == nil {
		u.ContactsPhone = []string{}
	}
	_, err := s.users.InsertOne(ctx, u)
	err = mongox.Classify(err)
	if errors.Is(err, mongox.ErrDuplicate) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return err
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (User, error) {
	var u User
	err := s.users.FindOne(ctx, filter, opts...).Decode(&u)
	if mongox.IsNotFound(err) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, mongox.Classify(err)
	}
	return u, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) Update(ctx context.Context, id string, up Update, now time.Time) (User, error) {
	set := bson.M{"updatedAt": now}
	if up.Anonymous != nil {
		set["anonymous"] = *up.Anonymous
	}
	if up.Name != nil {
		set["name"] = *up.Name
	}
	if up.Phone != nil {
		set["phone"] = *up.Phone
		set["phoneDigits"] = NormalizePhone(*up.Phone)
	}
	if up.Dob != nil {
		set["dob"] = *up.Dob
	}
	if up.Regions != nil {
		set["regions"] = *up.Regions
	}
	if up.Status != nil {
		set["status"] = *up.Status
	}
	if up.Bio != nil {
		set["bio"] = *up.Bio
	}
	if up.ProfileImage != nil {
		set["profileImage"] = *up.ProfileImage
	}
	if up.ContactsPhone != nil {
		set["contactsPhone"] = *up.ContactsPhone
	}

	var u User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if mongox.IsNotFound(err) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, mongox.Classify(err)
	}
	return u, nil
}

func (s *MongoStore) FindByPhones(ctx context.Context, digits []string) ([]User, error) {
	if len(digits) == 0 {
		return nil, nil
	}
	cur, err := s.users.Find(ctx, bson.M{"phoneDigits": bson.M{"$in": digits}})
	if err != nil {
		return nil, mongox.Classify(err)
	}
	var out []User
	if err := cur.All(ctx, &out); err != nil {
		return nil, mongox.Classify(err)
	}
	return out, nil
}

func (s *MongoStore) Profiles(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.M{"name": 1, "profileImage": 1}),
	)
	if err != nil {
		return nil, mongox.Classify(err)
	}
	var users []User
	if err := cur.All(ctx, &users); err != nil {
		return nil, mongox.Classify(err)
	}
	for _, u := range users {
		out[u.ID] = Profile{ID: u.ID, Name: u.Name, ProfileImage: u.ProfileImage}
	}
	return out, nil
}

func (s *MongoStore) AddCompany(ctx context.Context, userID, companyID string) ([]string, error) {
	var u User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"userID": userID},
		bson.M{"$addToSet": bson.M{"companies": companyID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetProjection(bson.M{"companies": 1}),
	).Decode(&u)
	if mongox.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, mongox.Classify(err)
	}
	return u.Companies, nil
}

func (s *MongoStore) Companies(ctx context.Context, userID string) ([]string, error) {
	u, err := s.findOne(ctx, bson.M{"userID": userID}, options.FindOne().SetProjection(bson.M{"companies": 1}))
	if err != nil {
		return nil, err
	}
	return u.Companies, nil
}
