package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"layoo/cmd/internal/actu"
	"layoo/cmd/internal/chat"
	"layoo/cmd/internal/gift"
	"layoo/cmd/internal/mongox"
	"layoo/cmd/internal/post"
	"layoo/cmd/internal/user"
)

// backends owns the external connections and the domain stores built on them.
// Without a Mongo URI every domain store is in memory.
type backends struct {
	mongo *mongo.Client
	pool  *pgxpool.Pool
	redis *redis.Client

	chat  chat.Store
	users user.Store
	actus actu.Store
	gifts gift.Store
	posts post.Store
}

// indexer is implemented by the Mongo stores.
type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func openBackends(ctx context.Context, cfg Config, log Logger) (*backends, error) {
	b := &backends{}
	ok := false
	defer func() {
		if !ok {
			_ = b.Close(context.Background())
		}
	}()

	backend := cfg.chatBackend()
	if cfg.ChatBackend != "" && cfg.ChatBackend != backend {
		return nil, fmt.Errorf("unknown LAYOO_CHAT_BACKEND %q", cfg.ChatBackend)
	}

	if cfg.MongoURI != "" {
		client, err := mongox.Connect(ctx, cfg.MongoURI, cfg.MongoTimeout)
		if err != nil {
			return nil, err
		}
		b.mongo = client
		if err := b.openMongoStores(ctx, cfg.MongoDB); err != nil {
			return nil, err
		}
		log.Info("db.enabled.mongo", "db", cfg.MongoDB)
	} else {
		b.users = user.NewInMemoryStore()
		b.actus = actu.NewInMemoryStore()
		b.gifts = gift.NewInMemoryStore()
		b.posts = post.NewInMemoryStore()
		log.Info("db.disabled.inmemory_store")
	}

	switch backend {
	case BackendMongo:
		if b.mongo == nil {
			return nil, errors.New("LAYOO_CHAT_BACKEND=mongo requires LAYOO_MONGO_URI")
		}
		st, err := chat.NewMongoStore(b.mongo, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		if err := st.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		b.chat = st
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("LAYOO_CHAT_BACKEND=postgres requires LAYOO_DATABASE_URL")
		}
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		st, err := chat.NewPostgresStore(pool, chat.WithSchema(cfg.DBSchema))
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}
		b.chat = st
	default:
		b.chat = chat.NewInMemoryStore()
	}
	log.Info("chat.store", "backend", backend)

	if cfg.RedisAddr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := b.redis.Ping(pctx).Err()
		cancel()
		if err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("presence.mirror.redis", "addr", cfg.RedisAddr)
	}

	ok = true
	return b, nil
}

func (b *backends) openMongoStores(ctx context.Context, db string) error {
	users, err := user.NewMongoStore(b.mongo, db)
	if err != nil {
		return err
	}
	actus, err := actu.NewMongoStore(b.mongo, db)
	if err != nil {
		return err
	}
	gifts, err := gift.NewMongoStore(b.mongo, db)
	if err != nil {
		return err
	}
	posts, err := post.NewMongoStore(b.mongo, db)
	if err != nil {
		return err
	}
	for _, ix := range []indexer{users, actus, gifts, posts} {
		if err := ix.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	b.users, b.actus, b.gifts, b.posts = users, actus, gifts, posts
	return nil
}

// databaseEnabled reports whether any durable store is configured.
func (b *backends) databaseEnabled() bool {
	return b.mongo != nil || b.pool != nil
}

// ping checks every configured connection.
func (b *backends) ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if b.mongo != nil {
		if err := b.mongo.Ping(ctx, readpref.Primary()); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
	}
	if b.pool != nil {
		if err := PingDB(ctx, b.pool, timeout); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if b.redis != nil {
		if err := b.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every connection. Stores do not own the pools they use.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	if b.chat != nil {
		errs = append(errs, b.chat.Close())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.mongo != nil {
		errs = append(errs, b.mongo.Disconnect(ctx))
	}
	return errors.Join(errs...)
}
