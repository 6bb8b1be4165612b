package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"composer/backend/internal/doc"
	"composer/backend/internal/ime"
)

func TestMemorySessions_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemorySessions()
	m.now = func() time.Time { return now }

	s := ime.NewSession()
	s.Start(doc.Span(2, 4, "h1"))
	if err := m.SaveSession(ctx, "d1", 7, s, time.Minute); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := m.LoadSession(ctx, "d1", 7)
	if err != nil || got == nil {
		t.Fatalf("LoadSession() = %v, %v", got, err)
	}
	if got.State != ime.Composing || *got.Range != doc.Span(2, 4, "h1") {
		t.Fatalf("LoadSession() = %+v", got)
	}
	if other, _ := m.LoadSession(ctx, "d1", 8); other != nil {
		t.Fatalf("LoadSession(other user) = %+v, want nil", other)
	}

	now = now.Add(time.Minute)
	if got, _ := m.LoadSession(ctx, "d1", 7); got != nil {
		t.Fatalf("LoadSession() after ttl = %+v, want nil", got)
	}
}

func TestMemorySessions_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemorySessions()
	_ = m.SaveSession(ctx, "d1", 1, ime.NewSession(), 0)
	if err := m.DeleteSession(ctx, "d1", 1); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if got, _ := m.LoadSession(ctx, "d1", 1); got != nil {
		t.Fatalf("LoadSession() after delete = %+v", got)
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	// skip when no local redis
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisSessions(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	r := NewRedisSessions(rdb)
	defer r.DeleteSession(ctx, "test-doc", 42)

	s := ime.NewSession()
	s.Start(doc.Caret(5, ""))
	if err := r.SaveSession(ctx, "test-doc", 42, s, time.Minute); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	got, err := r.LoadSession(ctx, "test-doc", 42)
	if err != nil || got == nil || got.Range.StartOffset != 5 {
		t.Fatalf("LoadSession() = %+v, %v", got, err)
	}
	if ttl := rdb.TTL(ctx, sessionKey("test-doc", 42)).Val(); ttl <= 0 {
		t.Fatalf("TTL = %v, want > 0", ttl)
	}

	_ = r.DeleteSession(ctx, "test-doc", 42)
	if got, err := r.LoadSession(ctx, "test-doc", 42); got != nil || err != nil {
		t.Fatalf("LoadSession() after delete = %+v, %v", got, err)
	}
}
