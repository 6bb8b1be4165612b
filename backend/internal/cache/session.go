package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"composer/backend/internal/ime"
)

// RedisSessions keeps IME composition sessions per document and user, so a
// composition survives a reconnect to another instance.
type RedisSessions struct {
	rdb redis.UniversalClient
}

func NewRedisSessions(rdb redis.UniversalClient) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

// LoadSession returns nil when there is no session.
func (r *RedisSessions) LoadSession(ctx context.Context, docID string, userID uint64) (*ime.Session, error) {
	b, err := r.rdb.Get(ctx, sessionKey(docID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s ime.Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisSessions) SaveSession(ctx context.Context, docID string, userID uint64, s *ime.Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, sessionKey(docID, userID), b, ttl).Err()
}

func (r *RedisSessions) DeleteSession(ctx context.Context, docID string, userID uint64) error {
	return r.rdb.Del(ctx, sessionKey(docID, userID)).Err()
}

type memorySession struct {
	data     []byte
	expireAt time.Time
}

// MemorySessions is the single-instance fallback when no redis is configured.
type MemorySessions struct {
	mu  sync.Mutex
	now func() time.Time
	m   map[string]memorySession
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{now: time.Now, m: make(map[string]memorySession)}
}

func (m *MemorySessions) LoadSession(ctx context.Context, docID string, userID uint64) (*ime.Session, error) {
	key := sessionKey(docID, userID)
	m.mu.Lock()
	e, ok := m.m[key]
	if ok && !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		delete(m.m, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var s ime.Session
	if err := json.Unmarshal(e.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemorySessions) SaveSession(ctx context.Context, docID string, userID uint64, s *ime.Session, ttl time.Duration) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	e := memorySession{data: b}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.m[sessionKey(docID, userID)] = e
	m.mu.Unlock()
	return nil
}

func (m *MemorySessions) DeleteSession(ctx context.Context, docID string, userID uint64) error {
	m.mu.Lock()
	delete(m.m, sessionKey(docID, userID))
	m.mu.Unlock()
	return nil
}
