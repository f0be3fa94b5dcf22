package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPresence mirrors presence into Redis.
//
// Keys used:
// - <prefix>:presence:<userID> -> json {status,last_seen}
// - <prefix>:online            -> set of online user ids
type RedisPresence struct {
	client    redis.UniversalClient
	prefix    string
	onlineTTL time.Duration
}

// NewRedisPresence constructs a mirror. onlineTTL bounds how long an "online" record survives
// a crashed instance; offline records do not expire.
func NewRedisPresence(client redis.UniversalClient, prefix string, onlineTTL time.Duration) *RedisPresence {
	if prefix == "" {
		prefix = "layoo"
	}
	if onlineTTL <= 0 {
		onlineTTL = 24 * time.Hour
	}
	return &RedisPresence{client: client, prefix: prefix, onlineTTL: onlineTTL}
}

func (s *RedisPresence) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *RedisPresence) onlineKey() string { return s.prefix + ":online" }

// SetOnline marks userID online.
func (s *RedisPresence) SetOnline(ctx context.Context, userID string, at time.Time) error {
	b, err := json.Marshal(PresenceRecord{Status: presenceOnline, LastSeen: at.UTC()})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.presenceKey(userID), b, s.onlineTTL)
		p.SAdd(ctx, s.onlineKey(), userID)
		return nil
	})
	return err
}

// SetOffline marks userID offline and records last-seen.
func (s *RedisPresence) SetOffline(ctx context.Context, userID string, at time.Time) error {
	b, err := json.Marshal(PresenceRecord{Status: presenceOffline, LastSeen: at.UTC()})
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.presenceKey(userID), b, 0)
		p.SRem(ctx, s.onlineKey(), userID)
		return nil
	})
	return err
}

// Lookup returns the mirrored record of userID.
func (s *RedisPresence) Lookup(ctx context.Context, userID string) (PresenceRecord, bool, error) {
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return PresenceRecord{}, false, nil
	}
	if err != nil {
		return PresenceRecord{}, false, err
	}

	var rec PresenceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return PresenceRecord{}, false, fmt.Errorf("presence record: %w", err)
	}
	return rec, true, nil
}

// OnlineCount returns the number of users marked online across instances.
func (s *RedisPresence) OnlineCount(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, s.onlineKey()).Result()
}
