package realtime

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"layoo/cmd/internal/ids"

	"github.com/redis/go-redis/v9"
)

func TestRedisPresence_RoundTrip(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("LAYOO_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("LAYOO_TEST_REDIS_ADDR not set; skipping Redis integration test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}

	prefix := "layoo-test-" + ids.New()
	p := NewRedisPresence(client, prefix, time.Minute)
	t.Cleanup(func() {
		_ = client.Del(context.Background(), p.presenceKey("u1"), p.onlineKey()).Err()
	})

	if _, ok, err := p.Lookup(ctx, "u1"); err != nil || ok {
		t.Fatalf("lookup before set: ok=%v err=%v", ok, err)
	}

	at := fixedNow()
	if err := p.SetOnline(ctx, "u1", at); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	rec, ok, err := p.Lookup(ctx, "u1")
	if err != nil || !ok || rec.Status != presenceOnline {
		t.Fatalf("after online: rec=%+v ok=%v err=%v", rec, ok, err)
	}
	if n, err := p.OnlineCount(ctx); err != nil || n != 1 {
		t.Fatalf("online count=%d err=%v", n, err)
	}

	if err := p.SetOffline(ctx, "u1", at.Add(time.Minute)); err != nil {
		t.Fatalf("SetOffline: %v", err)
	}
	rec, ok, err = p.Lookup(ctx, "u1")
	if err != nil || !ok || rec.Status != presenceOffline || !rec.LastSeen.Equal(at.Add(time.Minute)) {
		t.Fatalf("after offline: rec=%+v ok=%v err=%v", rec, ok, err)
	}
	if n, err := p.OnlineCount(ctx); err != nil || n != 0 {
		t.Fatalf("online count=%d err=%v", n, err)
	}
}
